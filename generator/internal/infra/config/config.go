package config

import (
	"log"
	"time"

	core "github.com/you-humble/meshbatch/core/config"
	"github.com/you-humble/meshbatch/generator/internal/mesh"
)

type Config struct {
	GRPC core.GRPC `yaml:"grpc"`
	// Timeout bounds a single Generate call on the server side.
	Timeout         time.Duration `yaml:"timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Mesh mesh.Options `yaml:"mesh"`

	MinIO core.MinIO `yaml:"minio"`
	Files core.Files `yaml:"files"`
}

func MustLoad(path string) *Config {
	var cfg Config
	core.MustRead(path, &cfg)

	cfg.Files.Check()

	if cfg.GRPC.Addr == "" {
		cfg.GRPC.Addr = ":50051"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Mesh.MaxParallel <= 0 {
		cfg.Mesh.MaxParallel = 16
	}
	if cfg.Mesh.FailureRate < 0 || cfg.Mesh.FailureRate > 1 {
		log.Fatalf("config: mesh.failure_rate must be within [0, 1], got %v", cfg.Mesh.FailureRate)
	}

	return &cfg
}
