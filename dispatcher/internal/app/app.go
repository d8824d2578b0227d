package dapp

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

type app struct {
	di *dependencyInjector
}

func New(ctx context.Context) *app {
	di := newDI()
	di.Logger()
	return &app{di: di}
}

func (a *app) Run(ctx context.Context) error {
	pool := a.di.Pool(ctx)
	reaper := a.di.Reaper(ctx)

	slog.Info("dispatcher starting...")

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return pool.Run(egCtx)
	})
	eg.Go(func() error {
		reaper.Run(egCtx)
		return nil
	})

	err := eg.Wait()

	slog.Info("dispatcher shutting down...")
	a.close()
	return err
}

func (a *app) close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.di.Config().ShutdownTimeout)
	defer cancel()

	if err := a.di.FileStore(shutdownCtx).Close(shutdownCtx); err != nil {
		slog.Warn("file store close", slog.String("error", err.Error()))
	}
	if err := a.di.GRPCConnect(shutdownCtx).Close(); err != nil {
		slog.Warn("grpc close", slog.String("error", err.Error()))
	}
	if err := a.di.NATSConn(shutdownCtx).Drain(); err != nil {
		slog.Warn("NATS drain", slog.String("error", err.Error()))
	}
	if err := a.di.RedisClient(shutdownCtx).Close(); err != nil {
		slog.Warn("redis close", slog.String("error", err.Error()))
	}

	slog.Info("dispatcher stopped")
}
