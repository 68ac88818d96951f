package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds the complete application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Elasticsearch ElasticsearchConfig `koanf:"elasticsearch"`
	Source        SourceConfig        `koanf:"source"`
	Indexing      IndexingConfig      `koanf:"indexing"`
	Dispatch      DispatchConfig      `koanf:"dispatch"`
	Search        SearchConfig        `koanf:"search"`
	Logging       LoggingConfig       `koanf:"logging"`
}

type ServerConfig struct {
	Listen string `koanf:"listen"`
}

type ElasticsearchConfig struct {
	URL      string    `koanf:"url"`
	Username string    `koanf:"username"`
	Password string    `koanf:"password"`
	TLS      TLSConfig `koanf:"tls"`
}

type TLSConfig struct {
	SkipVerify bool   `koanf:"skip_verify"`
	CACert     string `koanf:"ca_cert"`
}

type SourceConfig struct {
	Driver       string `koanf:"driver"` // postgres, mysql or sqlite.
	DSN          string `koanf:"dsn"`
	Schema       string `koanf:"schema"` // Schema holding the chado tables, empty for none.
	MaxOpenConns int    `koanf:"max_open_conns"`
}

type IndexingConfig struct {
	Index            string        `koanf:"index"`
	Type             string        `koanf:"type"`
	ChunkSize        int           `koanf:"chunk_size"`
	WriteStrategy    string        `koanf:"write_strategy"`   // single or bulk.
	CheckpointStore  string        `koanf:"checkpoint_store"` // local or engine.
	CheckpointDir    string        `koanf:"checkpoint_dir"`
	ProgressInterval time.Duration `koanf:"progress_interval"`
	UseLock          bool          `koanf:"use_lock"`
	LockTTL          time.Duration `koanf:"lock_ttl"`
}

type DispatchConfig struct {
	Backend       string      `koanf:"backend"` // memory or redis.
	Workers       int         `koanf:"workers"`
	MaxAttempts   int         `koanf:"max_attempts"`
	MaxRowsPerJob int         `koanf:"max_rows_per_job"` // 0 means one job per partition.
	Schedule      string      `koanf:"schedule"`
	Redis         RedisConfig `koanf:"redis"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Queue    string `koanf:"queue"`
}

type SearchConfig struct {
	CapabilityTTL  time.Duration `koanf:"capability_ttl"`
	DefaultPerPage int           `koanf:"default_per_page"`
}

type LoggingConfig struct {
	Level string `koanf:"level"`
}

// Load reads configuration from the given YAML file path.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Source.Driver == "" {
		cfg.Source.Driver = "postgres"
	}
	if cfg.Source.MaxOpenConns <= 0 {
		cfg.Source.MaxOpenConns = 4
	}
	if cfg.Indexing.Index == "" {
		cfg.Indexing.Index = "gene_search_index"
	}
	if cfg.Indexing.ChunkSize <= 0 {
		cfg.Indexing.ChunkSize = 500
	}
	if cfg.Indexing.WriteStrategy == "" {
		cfg.Indexing.WriteStrategy = "single"
	}
	if cfg.Indexing.CheckpointStore == "" {
		cfg.Indexing.CheckpointStore = "local"
	}
	if cfg.Indexing.CheckpointDir == "" {
		cfg.Indexing.CheckpointDir = "/var/lib/esgate"
	}
	if cfg.Indexing.ProgressInterval <= 0 {
		cfg.Indexing.ProgressInterval = 30 * time.Second
	}
	if cfg.Indexing.LockTTL <= 0 {
		cfg.Indexing.LockTTL = 2 * time.Hour
	}
	if cfg.Dispatch.Backend == "" {
		cfg.Dispatch.Backend = "memory"
	}
	if cfg.Dispatch.Workers <= 0 {
		cfg.Dispatch.Workers = 2
	}
	if cfg.Dispatch.MaxAttempts <= 0 {
		cfg.Dispatch.MaxAttempts = 3
	}
	if cfg.Dispatch.Redis.Queue == "" {
		cfg.Dispatch.Redis.Queue = "esgate:jobs"
	}
	if cfg.Search.CapabilityTTL <= 0 {
		cfg.Search.CapabilityTTL = time.Minute
	}
	if cfg.Search.DefaultPerPage <= 0 {
		cfg.Search.DefaultPerPage = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func validate(cfg *Config) error {
	if cfg.Elasticsearch.URL == "" {
		return fmt.Errorf("elasticsearch.url is required")
	}
	if _, err := url.Parse(cfg.Elasticsearch.URL); err != nil {
		return fmt.Errorf("invalid elasticsearch.url: %w", err)
	}

	switch cfg.Source.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("source.driver must be postgres, mysql or sqlite, got %q", cfg.Source.Driver)
	}
	switch cfg.Indexing.WriteStrategy {
	case "single", "bulk":
	default:
		return fmt.Errorf("indexing.write_strategy must be single or bulk, got %q", cfg.Indexing.WriteStrategy)
	}
	switch cfg.Indexing.CheckpointStore {
	case "local", "engine":
	default:
		return fmt.Errorf("indexing.checkpoint_store must be local or engine, got %q", cfg.Indexing.CheckpointStore)
	}
	switch cfg.Dispatch.Backend {
	case "memory":
	case "redis":
		if cfg.Dispatch.Redis.Addr == "" {
			return fmt.Errorf("dispatch.redis.addr is required when dispatch.backend is redis")
		}
	default:
		return fmt.Errorf("dispatch.backend must be memory or redis, got %q", cfg.Dispatch.Backend)
	}
	if cfg.Dispatch.MaxRowsPerJob < 0 {
		return fmt.Errorf("dispatch.max_rows_per_job must not be negative")
	}

	return nil
}
