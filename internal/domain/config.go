package domain

import "time"

// Config holds the complete service configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Subsystem tuning
	Prediction PredictionConfig `json:"prediction"`
	Risk       RiskThresholds   `json:"risk"`
	Scan       ScanConfig       `json:"scan"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// PredictionConfig tunes the ensemble predictor. The blend weights and match
// threshold are reference defaults, not proven-optimal values.
type PredictionConfig struct {
	// PatternMatchThreshold is the minimum weighted match fraction for a
	// pattern to contribute to the adjustment term.
	PatternMatchThreshold float64 `json:"patternMatchThreshold"`

	// Validity is how long a prediction may be reused before callers must
	// recompute.
	Validity time.Duration `json:"validity"`

	// HistoryCap bounds the per-instruction prediction history.
	HistoryCap int `json:"historyCap"`
}

// ScanConfig tunes the timeline tracker's periodic scan.
type ScanConfig struct {
	// Interval between scans. The scan runs independently of
	// request-handling goroutines.
	Interval time.Duration `json:"interval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// DefaultConfig returns the in-process reference configuration: SQLite audit
// store, local LRU cache, channel event bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./settlecore.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Prediction: PredictionConfig{
			PatternMatchThreshold: 0.5,
			Validity:              4 * time.Hour,
			HistoryCap:            50,
		},
		Risk: DefaultRiskThresholds(),
		Scan: ScanConfig{
			Interval: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "settlecore",
		},
	}
}

// DistributedConfig returns a configuration for multi-node deployments:
// PostgreSQL audit store, Redis two-phase cache, NATS event bus.
func DistributedConfig() *Config {
	cfg := DefaultConfig()
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "settlecore",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
