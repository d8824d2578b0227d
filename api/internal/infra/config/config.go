package config

import (
	"log"
	"time"

	core "github.com/you-humble/meshbatch/core/config"
	"github.com/you-humble/meshbatch/core/libs/backoff"
)

type Config struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	MaxFiles         int   `yaml:"max_files"`
	MaxUploadBytesMb int64 `yaml:"max_upload_mb"`

	// StreamInterval is the polling fallback of status streams.
	StreamInterval time.Duration `yaml:"stream_interval"`
	// QueueWait is the first reaper deadline of a queued unit. The
	// dispatcher's own max_queue_wait decides when a unit is given up.
	QueueWait time.Duration `yaml:"max_queue_wait"`

	Auth        Auth           `yaml:"auth"`
	ResultRetry backoff.Policy `yaml:"result_retry"`

	Redis     core.Redis     `yaml:"redis"`
	NATS      core.NATS      `yaml:"nats"`
	MinIO     core.MinIO     `yaml:"minio"`
	Files     core.Files     `yaml:"files"`
	Retention core.Retention `yaml:"retention"`
}

type Auth struct {
	// JWTSecret enables HS256 bearer tokens; without it bearer tokens are
	// treated as opaque keys.
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`

	// APIKeys restricts X-API-Key to these values. With a JWT secret and no
	// keys, X-API-Key is refused.
	APIKeys []string `yaml:"api_keys"`
}

func MustLoad(path string) *Config {
	var cfg Config
	core.MustRead(path, &cfg)

	if cfg.Addr == "" {
		log.Fatalf("config: addr is empty")
	}
	cfg.Redis.Check()
	cfg.NATS.Check()
	cfg.Files.Check()
	cfg.Retention.Check()
	core.CheckRetry(&cfg.ResultRetry)

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 20
	}
	if cfg.MaxUploadBytesMb <= 0 {
		cfg.MaxUploadBytesMb = 50
	}
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = 2 * time.Second
	}
	if cfg.QueueWait <= 0 {
		cfg.QueueWait = time.Hour
	}

	return &cfg
}
