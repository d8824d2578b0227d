package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/you-humble/meshbatch/core/domain"
	"github.com/you-humble/meshbatch/core/genrpc"
	"github.com/you-humble/meshbatch/generator/internal/mesh"
)

type Generator interface {
	Generate(ctx context.Context, req genrpc.Request, progress func(percent int) error) ([]string, error)
}

type GeneratorService struct {
	generator Generator
	timeout   time.Duration
}

func NewGeneratorService(generator Generator, timeout time.Duration) *GeneratorService {
	return &GeneratorService{generator: generator, timeout: timeout}
}

func (s *GeneratorService) Generate(
	ctx context.Context,
	req genrpc.Request,
	progress func(percent int) error,
) ([]string, error) {
	l := slog.With(
		slog.String("job_id", req.JobID),
		slog.String("item_key", req.ItemKey),
	)

	if req.JobID == "" || req.ItemKey == "" || req.Input == "" {
		return nil, status.Error(codes.InvalidArgument, "job_id, item_key and input are required")
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	artifacts, err := s.generator.Generate(ctx, req, progress)
	if err != nil {
		l.Error("generate failed",
			slog.String("input", req.Input),
			slog.Bool("transient", domain.IsTransient(err)),
			slog.String("error", err.Error()),
		)
		return nil, toStatus(err)
	}

	l.Info("generate success", slog.Any("artifacts", artifacts))
	return artifacts, nil
}

func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return status.FromContextError(err).Err()
	case errors.Is(err, mesh.ErrInputNotFound):
		return status.Error(codes.InvalidArgument, err.Error())
	case domain.IsTransient(err):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
