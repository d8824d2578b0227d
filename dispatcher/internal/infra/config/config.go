package config

import (
	"log"
	"time"

	core "github.com/you-humble/meshbatch/core/config"
	"github.com/you-humble/meshbatch/core/libs/backoff"
	"github.com/you-humble/meshbatch/dispatcher/internal/worker"
)

type Config struct {
	PoolSize   int           `yaml:"pool_size"`
	Consumer   string        `yaml:"consumer"`
	AckWait    time.Duration `yaml:"ack_wait"`
	MaxDeliver int           `yaml:"max_deliver"`
	Heartbeat  time.Duration `yaml:"heartbeat"`

	Limits worker.Limits `yaml:"limits"`
	// QueueWait bounds how long a unit may wait for a worker before the
	// reaper counts it as lost.
	QueueWait      time.Duration `yaml:"max_queue_wait"`
	ReaperInterval time.Duration `yaml:"reaper_interval"`
	// FileMaxAge bounds how long uploads and artifacts are kept.
	FileMaxAge time.Duration `yaml:"file_max_age"`

	Retry       backoff.Policy `yaml:"retry"`
	ResultRetry backoff.Policy `yaml:"result_retry"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Generator core.GRPC      `yaml:"generator"`
	Redis     core.Redis     `yaml:"redis"`
	NATS      core.NATS      `yaml:"nats"`
	MinIO     core.MinIO     `yaml:"minio"`
	Files     core.Files     `yaml:"files"`
	Retention core.Retention `yaml:"retention"`
}

func MustLoad(path string) *Config {
	var cfg Config
	core.MustRead(path, &cfg)

	cfg.Redis.Check()
	cfg.NATS.Check()
	cfg.Files.Check()
	cfg.Retention.Check()
	core.CheckRetry(&cfg.Retry)
	core.CheckRetry(&cfg.ResultRetry)

	if cfg.Generator.Addr == "" {
		log.Fatalf("config: generator.addr is empty")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "mesh-units-consumer"
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 5
	}
	if cfg.Limits.Hard <= 0 {
		log.Fatalf("config: limits.hard must be positive, got %s", cfg.Limits.Hard)
	}
	if cfg.Limits.Liveness <= cfg.Limits.Hard {
		log.Fatalf("config: limits.liveness (%s) must exceed limits.hard (%s)", cfg.Limits.Liveness, cfg.Limits.Hard)
	}
	if cfg.QueueWait <= 0 {
		cfg.QueueWait = time.Hour
	}
	if cfg.QueueWait <= cfg.Limits.Liveness {
		log.Fatalf("config: max_queue_wait (%s) must exceed limits.liveness (%s)", cfg.QueueWait, cfg.Limits.Liveness)
	}
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = 30 * time.Second
	}
	if cfg.FileMaxAge <= 0 {
		cfg.FileMaxAge = 2 * cfg.Retention.ResultTTL
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}

	return &cfg
}
