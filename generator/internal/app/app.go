package gapp

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"

	"github.com/you-humble/meshbatch/core/genrpc"
	"github.com/you-humble/meshbatch/generator/internal/service"
)

type app struct {
	di   *dependencyInjector
	addr string
	srv  *grpc.Server
}

func New(ctx context.Context) *app {
	di := newDI()
	l := di.Logger()

	grpcServer := grpc.NewServer(grpc.ChainStreamInterceptor(
		service.RecoveryStreamInterceptor(l),
		service.StreamLoggingInterceptor(l),
	))
	genrpc.Register(grpcServer, di.Service(ctx))

	return &app{
		di:   di,
		addr: di.Config().GRPC.Addr,
		srv:  grpcServer,
	}
}

func (a *app) Run(ctx context.Context) error {
	l := a.di.Logger()
	errCh := make(chan error, 1)

	lis, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.addr, err)
	}

	go func() {
		l.Info("generator gRPC service listening", "addr", a.addr)
		if err := a.srv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("failed to serve: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		l.Info("shutdown signal received, starting graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.di.Config().ShutdownTimeout)
		defer cancel()

		if err := a.shutdown(shutdownCtx); err != nil {
			l.Error("graceful shutdown failed", "err", err)
		} else {
			l.Info("graceful shutdown completed")
		}

	case err := <-errCh:
		l.Error("server exited with error", "err", err)
		return err
	}

	return nil
}

func (a *app) shutdown(ctx context.Context) error {
	l := a.di.Logger()
	done := make(chan struct{})

	go func() {
		l.Info("stopping gRPC server gracefully...")
		a.srv.GracefulStop()
		close(done)
	}()

	select {
	case <-ctx.Done():
		l.Warn("graceful stop timed out, forcing stop")
		a.srv.Stop()
		return fmt.Errorf("shutdown timeout exceeded: %w", ctx.Err())
	case <-done:
		l.Info("gRPC server stopped")
	}

	if err := a.di.FileStore(ctx).Close(ctx); err != nil {
		return fmt.Errorf("close file store: %w", err)
	}
	return nil
}
