package config

import "time"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Policy    PolicyConfig    `yaml:"policy"`
	Failover  FailoverConfig  `yaml:"failover"`
	Consensus ConsensusConfig `yaml:"consensus"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + itoa(d.Port) + "/" + d.Name + "?sslmode=disable"
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	s := ""
	for i > 0 {
		s = string(rune('0'+i%10)) + s
		i /= 10
	}
	return s
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

// CatalogConfig points at the model catalog and band criteria files. Both are
// loaded at startup and atomically swapped on change.
type CatalogConfig struct {
	Path         string `yaml:"path"`
	CriteriaPath string `yaml:"criteria_path"`
}

type PolicyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

// FailoverConfig controls candidate iteration and the availability cache.
// PaidRetryThenSkip selects how a transient failure on a non-free candidate
// is handled: retry the same candidate with backoff (true) or skip straight
// to the next candidate (false).
type FailoverConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	AvailabilityTTL   time.Duration `yaml:"availability_ttl"`
	PaidRetryLimit    int           `yaml:"paid_retry_limit"`
	BackoffBase       time.Duration `yaml:"backoff_base"`
	PaidRetryThenSkip bool          `yaml:"paid_retry_then_skip"`
	AlertWebhookURL   string        `yaml:"alert_webhook_url"`
}

// ConsensusConfig controls session execution and synthesis.
type ConsensusConfig struct {
	MaxSlotConcurrency  int            `yaml:"max_slot_concurrency"`
	DefaultDeadline     time.Duration  `yaml:"default_deadline"`
	EstOutputTokens     int            `yaml:"est_output_tokens"`
	SimilarityThreshold float64        `yaml:"similarity_threshold"`
	TargetCounts        map[string]int `yaml:"target_counts"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     300 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "quorum",
			User:            "quorum",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
		},
		Catalog: CatalogConfig{
			Path:         "configs/catalog.yaml",
			CriteriaPath: "configs/criteria.yaml",
		},
		Policy: PolicyConfig{
			Enabled:           false,
			BundlePath:        "/etc/quorum/policies",
			EvaluationTimeout: 100 * time.Millisecond,
		},
		Failover: FailoverConfig{
			MaxAttempts:       5,
			AvailabilityTTL:   300 * time.Second,
			PaidRetryLimit:    2,
			BackoffBase:       200 * time.Millisecond,
			PaidRetryThenSkip: true,
		},
		Consensus: ConsensusConfig{
			MaxSlotConcurrency:  8,
			DefaultDeadline:     120 * time.Second,
			EstOutputTokens:     1024,
			SimilarityThreshold: 0.5,
			TargetCounts:        map[string]int{"free": 3, "economy": 2, "premium": 2},
		},
	}
}
