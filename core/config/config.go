// Package config holds the YAML sections shared by the services and the
// loader they use.
package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/you-humble/meshbatch/core/libs/backoff"
)

type Redis struct {
	Addrs    []string `yaml:"addrs"`
	User     string   `yaml:"user"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	PoolSize int      `yaml:"pool_size"`
}

type NATS struct {
	URL           string        `yaml:"url"`
	Name          string        `yaml:"name"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	Stream        string        `yaml:"stream"`
	Subject       string        `yaml:"subject"`
	// NotifyPrefix is the subject prefix of job change signals.
	NotifyPrefix string `yaml:"notify_prefix"`
}

type MinIO struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	Bucket          string `yaml:"bucket"`
}

type Files struct {
	BaseDir       string `yaml:"base_dir"`
	QueueCapacity int    `yaml:"queue_capacity"`
	Workers       int    `yaml:"workers"`
	MaxRetries    int    `yaml:"max_retries"`
}

type Retention struct {
	ProgressTTL  time.Duration `yaml:"progress_ttl"`
	OwnershipTTL time.Duration `yaml:"ownership_ttl"`
	ResultTTL    time.Duration `yaml:"result_ttl"`
}

type GRPC struct {
	Addr string `yaml:"addr"`
}

// Path returns $CONFIG_PATH or the default file of service svc.
func Path(svc string) string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "./configs/" + svc + ".yaml"
}

// MustRead unmarshals the YAML file at path into v or stops the process.
func MustRead(path string, v any) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("config: cannot read file %q: %v", path, err)
	}

	if err := yaml.Unmarshal(data, v); err != nil {
		log.Fatalf("config: cannot unmarshal yaml: %v", err)
	}
}

func (r *Redis) Check() {
	if len(r.Addrs) == 0 {
		log.Fatalf("config: redis.addrs is empty")
	}
}

func (n *NATS) Check() {
	if n.URL == "" {
		log.Fatalf("config: nats.url is empty")
	}
	if n.Stream == "" {
		n.Stream = "MESH_UNITS"
	}
	if n.Subject == "" {
		n.Subject = "mesh.units"
	}
	if n.NotifyPrefix == "" {
		n.NotifyPrefix = "mesh.changes"
	}
}

func (f *Files) Check() {
	if f.BaseDir == "" {
		log.Fatalf("config: files.base_dir is empty")
	}
	if f.QueueCapacity <= 0 {
		f.QueueCapacity = 100
	}
	if f.Workers <= 0 {
		f.Workers = 2
	}
	if f.MaxRetries < 0 {
		f.MaxRetries = 3
	}
}

func (r *Retention) Check() {
	if r.ProgressTTL <= 0 {
		log.Fatalf("config: retention.progress_ttl must be positive, got %s", r.ProgressTTL)
	}
	if r.OwnershipTTL <= 0 {
		r.OwnershipTTL = r.ProgressTTL
	}
	if r.ResultTTL <= 0 {
		r.ResultTTL = r.ProgressTTL
	}
}

// CheckRetry fills in the defaults of a retry policy.
func CheckRetry(p *backoff.Policy) {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Initial <= 0 {
		p.Initial = 500 * time.Millisecond
	}
	if p.Max <= 0 {
		p.Max = 10 * time.Second
	}
}
