package dapp

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/you-humble/meshbatch/core/aggregator"
	"github.com/you-humble/meshbatch/core/barrier"
	"github.com/you-humble/meshbatch/core/config"
	"github.com/you-humble/meshbatch/core/dispatch"
	"github.com/you-humble/meshbatch/core/filestore"
	"github.com/you-humble/meshbatch/core/genrpc"
	"github.com/you-humble/meshbatch/core/kv"
	mio "github.com/you-humble/meshbatch/core/libs/minio"
	natsq "github.com/you-humble/meshbatch/core/libs/nats"
	rediscli "github.com/you-humble/meshbatch/core/libs/redis"
	"github.com/you-humble/meshbatch/core/notify"
	"github.com/you-humble/meshbatch/core/progress"
	"github.com/you-humble/meshbatch/core/queue"
	"github.com/you-humble/meshbatch/core/result"
	dconfig "github.com/you-humble/meshbatch/dispatcher/internal/infra/config"
	"github.com/you-humble/meshbatch/dispatcher/internal/worker"
)

type dependencyInjector struct {
	cfg    *dconfig.Config
	logger *slog.Logger

	redis    redis.UniversalClient
	kv       *kv.Store
	progress *progress.Store
	results  *result.Store
	barrier  *barrier.Barrier

	natsConn *nats.Conn
	js       nats.JetStreamContext
	notifier *notify.NATS

	grpcConn  *grpc.ClientConn
	generator *genrpc.Client

	fileStore *filestore.Store

	dispatcher *dispatch.Dispatcher
	runner     *worker.Runner
	pool       *worker.Pool
	reaper     *worker.Reaper
}

func newDI() *dependencyInjector {
	return &dependencyInjector{}
}

func (di *dependencyInjector) Config() *dconfig.Config {
	if di.cfg == nil {
		di.cfg = dconfig.MustLoad(config.Path("dispatcher"))
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		di.logger = slog.New(
			slog.NewTextHandler(
				os.Stdout,
				&slog.HandlerOptions{
					Level: slog.LevelInfo,
				},
			),
		).With(slog.String("service", "dispatcher"))

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

func (di *dependencyInjector) Barrier(ctx context.Context) *barrier.Barrier {
	if di.barrier == nil {
		agg := aggregator.New(di.ResultStore(ctx), di.Notifier(ctx), di.Config().ResultRetry)
		di.barrier = barrier.New(di.KV(ctx), di.Config().Retention.ProgressTTL, agg.Collect)
	}
	return di.barrier
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

func (di *dependencyInjector) GRPCConnect(ctx context.Context) *grpc.ClientConn {
	if di.grpcConn == nil {
		addr := di.Config().Generator.Addr
		conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			log.Fatalf("GRPCConnect: %+v", err)
		}
		di.grpcConn = conn
		di.Logger().Info("generator client ready", slog.String("addr", addr))
	}

	return di.grpcConn
}

func (di *dependencyInjector) Generator(ctx context.Context) *genrpc.Client {
	if di.generator == nil {
		di.generator = genrpc.NewClient(di.GRPCConnect(ctx))
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
	}

	return di.fileStore
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

func (di *dependencyInjector) Runner(ctx context.Context) *worker.Runner {
	if di.runner == nil {
		cfg := di.Config()
		di.runner = worker.NewRunner(
			di.ProgressStore(ctx),
			di.Barrier(ctx),
			di.Generator(ctx),
			di.Notifier(ctx),
			cfg.Limits,
			cfg.Retry,
		)
	}
	return di.runner
}

func (di *dependencyInjector) Pool(ctx context.Context) *worker.Pool {
	if di.pool == nil {
		cfg := di.Config()
		di.pool = worker.NewPool(di.JetStream(ctx), worker.PoolConfig{
			Stream:     cfg.NATS.Stream,
			Subject:    cfg.NATS.Subject,
			Consumer:   cfg.Consumer,
			Size:       cfg.PoolSize,
			AckWait:    cfg.AckWait,
			MaxDeliver: cfg.MaxDeliver,
			Heartbeat:  cfg.Heartbeat,
		}, di.Runner(ctx))
	}
	return di.pool
}

func (di *dependencyInjector) Reaper(ctx context.Context) *worker.Reaper {
	if di.reaper == nil {
		cfg := di.Config()
		di.reaper = worker.NewReaper(
			di.Barrier(ctx),
			di.Dispatcher(ctx),
			di.FileStore(ctx),
			cfg.ReaperInterval,
			cfg.FileMaxAge,
		)
	}
	return di.reaper
}
