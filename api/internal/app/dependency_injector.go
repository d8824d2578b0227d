package app

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/you-humble/meshbatch/api/internal/infra/config"
	"github.com/you-humble/meshbatch/api/internal/transport"
	"github.com/you-humble/meshbatch/api/internal/usecase"
	"github.com/you-humble/meshbatch/core/aggregator"
	"github.com/you-humble/meshbatch/core/barrier"
	coreconfig "github.com/you-humble/meshbatch/core/config"
	"github.com/you-humble/meshbatch/core/dispatch"
	"github.com/you-humble/meshbatch/core/filestore"
	"github.com/you-humble/meshbatch/core/kv"
	mio "github.com/you-humble/meshbatch/core/libs/minio"
	natsq "github.com/you-humble/meshbatch/core/libs/nats"
	rediscli "github.com/you-humble/meshbatch/core/libs/redis"
	"github.com/you-humble/meshbatch/core/notify"
	"github.com/you-humble/meshbatch/core/ownership"
	"github.com/you-humble/meshbatch/core/progress"
	"github.com/you-humble/meshbatch/core/queue"
	"github.com/you-humble/meshbatch/core/result"
	"github.com/you-humble/meshbatch/core/status"
)

type dependencyInjector struct {
	cfg    *config.Config
	logger *slog.Logger

	redis     redis.UniversalClient
	kv        *kv.Store
	progress  *progress.Store
	results   *result.Store
	ownership *ownership.Store
	barrier   *barrier.Barrier

	fileStore *filestore.Store

	natsConn *nats.Conn
	js       nats.JetStreamContext
	notifier *notify.NATS

	dispatcher *dispatch.Dispatcher
	projector  *status.Projector

	usecase transport.Usecase
	router  http.Handler
}

func newDI() *dependencyInjector {
	return &dependencyInjector{}
}

func (di *dependencyInjector) Config() *config.Config {
	if di.cfg == nil {
		di.cfg = config.MustLoad(coreconfig.Path("api"))
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		di.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})).With(slog.String("service", "api"))

		slog.SetDefault(di.logger)
	}

	return di.logger
}

func (di *dependencyInjector) RedisClient(ctx context.Context) redis.UniversalClient {
	if di.redis == nil {
		cfg := di.Config().Redis
		client, err := rediscli.NewClient(ctx, rediscli.Config{
			Addrs:    cfg.Addrs,
			User:     cfg.User,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		})
		if err != nil {
			log.Fatalf("RedisClient: %+v", err)
		}

		di.redis = client
		di.Logger().Info("connected to redis", slog.Any("addrs", cfg.Addrs))
	}
	return di.redis
}

func (di *dependencyInjector) KV(ctx context.Context) *kv.Store {
	if di.kv == nil {
		di.kv = kv.New(di.RedisClient(ctx))
	}
	return di.kv
}

func (di *dependencyInjector) ProgressStore(ctx context.Context) *progress.Store {
	if di.progress == nil {
		di.progress = progress.NewStore(di.KV(ctx), di.Config().Retention.ProgressTTL)
	}
	return di.progress
}

func (di *dependencyInjector) ResultStore(ctx context.Context) *result.Store {
	if di.results == nil {
		di.results = result.NewStore(di.KV(ctx), di.Config().Retention.ResultTTL)
	}
	return di.results
}

func (di *dependencyInjector) OwnershipStore(ctx context.Context) *ownership.Store {
	if di.ownership == nil {
		di.ownership = ownership.NewStore(di.KV(ctx), di.Config().Retention.OwnershipTTL)
	}
	return di.ownership
}

// Barrier is needed here because an empty batch, or a batch whose units all
// fail to queue, completes during Dispatch.
func (di *dependencyInjector) Barrier(ctx context.Context) *barrier.Barrier {
	if di.barrier == nil {
		agg := aggregator.New(di.ResultStore(ctx), di.Notifier(ctx), di.Config().ResultRetry)
		di.barrier = barrier.New(di.KV(ctx), di.Config().Retention.ProgressTTL, agg.Collect)
	}
	return di.barrier
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

func (di *dependencyInjector) NATSConn(ctx context.Context) *nats.Conn {
	if di.natsConn == nil {
		cfg := di.Config().NATS
		nc, err := natsq.NewConnect(cfg.URL, natsq.Config{
			Name:          cfg.Name,
			MaxReconnects: cfg.MaxReconnects,
			ReconnectWait: cfg.ReconnectWait,
		})
		if err != nil {
			log.Fatalf("NATS connect: %+v", err)
		}
		di.natsConn = nc
		di.Logger().Info("connected to NATS", slog.String("url", cfg.URL))
	}
	return di.natsConn
}

func (di *dependencyInjector) JetStream(ctx context.Context) nats.JetStreamContext {
	if di.js == nil {
		cfg := di.Config()
		js, err := natsq.NewJetStream(di.NATSConn(ctx),
			queue.StreamConfig(cfg.NATS.Stream, cfg.NATS.Subject, 2*cfg.Retention.ProgressTTL))
		if err != nil {
			log.Fatalf("DI JetStream: %+v", err)
		}

		di.js = js
	}
	return di.js
}

func (di *dependencyInjector) Notifier(ctx context.Context) *notify.NATS {
	if di.notifier == nil {
		di.notifier = notify.NewNATS(di.NATSConn(ctx), di.Config().NATS.NotifyPrefix)
	}
	return di.notifier
}

func (di *dependencyInjector) Dispatcher(ctx context.Context) *dispatch.Dispatcher {
	if di.dispatcher == nil {
		cfg := di.Config()
		di.dispatcher = dispatch.New(
			di.ProgressStore(ctx),
			di.Barrier(ctx),
			queue.New(di.JetStream(ctx), cfg.NATS.Subject),
			di.Notifier(ctx),
			cfg.QueueWait,
		)
	}
	return di.dispatcher
}

func (di *dependencyInjector) Projector(ctx context.Context) *status.Projector {
	if di.projector == nil {
		di.projector = status.New(
			di.ProgressStore(ctx),
			di.ResultStore(ctx),
			di.Notifier(ctx),
			di.Config().StreamInterval,
		)
	}
	return di.projector
}

func (di *dependencyInjector) Usecase(ctx context.Context) transport.Usecase {
	if di.usecase == nil {
		di.usecase = usecase.New(
			di.Config().MaxFiles,
			di.FileStore(ctx),
			di.Dispatcher(ctx),
			di.OwnershipStore(ctx),
			di.Projector(ctx),
			di.ProgressStore(ctx),
		)
	}

	return di.usecase
}

func (di *dependencyInjector) Router(ctx context.Context) http.Handler {
	if di.router == nil {
		cfg := di.Config()
		di.router = transport.NewRouter(
			transport.NewHandler(cfg.MaxUploadBytesMb, di.Usecase(ctx)),
			transport.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.APIKeys),
		)
	}

	return di.router
}
