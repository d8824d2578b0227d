package gapp

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/you-humble/meshbatch/core/config"
	"github.com/you-humble/meshbatch/core/filestore"
	mio "github.com/you-humble/meshbatch/core/libs/minio"
	gconfig "github.com/you-humble/meshbatch/generator/internal/infra/config"
	"github.com/you-humble/meshbatch/generator/internal/mesh"
	"github.com/you-humble/meshbatch/generator/internal/service"
)

type dependencyInjector struct {
	cfg    *gconfig.Config
	logger *slog.Logger

	generator service.Generator
	fileStore *filestore.Store
	service   *service.GeneratorService
}

func newDI() *dependencyInjector {
	return &dependencyInjector{}
}

func (di *dependencyInjector) Config() *gconfig.Config {
	if di.cfg == nil {
		di.cfg = gconfig.MustLoad(config.Path("generator"))
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		di.logger = slog.New(slog.NewTextHandler(
			os.Stdout,
			&slog.HandlerOptions{
				Level: slog.LevelInfo,
			},
		),
		).With(slog.String("service", "generator"))

		slog.SetDefault(di.logger)
	}

	return di.logger
}

func (di *dependencyInjector) MeshGenerator(ctx context.Context) service.Generator {
	if di.generator == nil {
		opts := di.Config().Mesh
		di.generator = mesh.NewMockGenerator(di.FileStore(ctx), opts)
		di.Logger().Info("mock mesh generator ready",
			slog.Int64("max_parallel", opts.MaxParallel),
			slog.Float64("failure_rate", opts.FailureRate),
		)
	}

	return di.generator
}

func (di *dependencyInjector) FileStore(ctx context.Context) *filestore.Store {
	if di.fileStore == nil {
		cfg := di.Config()

		local, err := filestore.NewLocal(cfg.Files.BaseDir)
		if err != nil {
			log.Fatalf("FileStore local: %+v", err)
		}
		di.Logger().Info("initialized local file store", slog.String("base_dir", cfg.Files.BaseDir))

		remote, err := filestore.NewMinIO(ctx, mio.Config{
			Endpoint:        cfg.MinIO.Endpoint,
			AccessKeyID:     cfg.MinIO.AccessKeyID,
			SecretAccessKey: cfg.MinIO.SecretAccessKey,
			UseSSL:          cfg.MinIO.UseSSL,
			Bucket:          cfg.MinIO.Bucket,
		}, "")
		if err != nil {
			log.Fatalf("FileStore minio: %+v", err)
		}
		di.Logger().Info(
			"initialized MinIO file store",
			slog.String("endpoint", cfg.MinIO.Endpoint),
			slog.String("bucket", cfg.MinIO.Bucket),
		)

		di.fileStore = filestore.New(ctx, local, remote, filestore.Options{
			QueueSize:  cfg.Files.QueueCapacity,
			Workers:    cfg.Files.Workers,
			MaxRetries: cfg.Files.MaxRetries,
		})
		di.Logger().Info(
			"using async file store (local + MinIO)",
			slog.Int("queue_size", cfg.Files.QueueCapacity),
			slog.Int("worker_num", cfg.Files.Workers),
			slog.Int("max_retries", cfg.Files.MaxRetries),
		)
	}

	return di.fileStore
}

func (di *dependencyInjector) Service(ctx context.Context) *service.GeneratorService {
	if di.service == nil {
		di.service = service.NewGeneratorService(di.MeshGenerator(ctx), di.Config().Timeout)
	}

	return di.service
}
