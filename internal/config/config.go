package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the dedup service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Dedup      DedupSettings    `yaml:"dedup"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls the HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// DedupSettings holds the initial deduplication configuration and the bounds
// of the in-memory recency index.
type DedupSettings struct {
	Strategy            string        `yaml:"strategy"`
	SimilarityThreshold float64       `yaml:"similarityThreshold"`
	TimeWindow          time.Duration `yaml:"timeWindow"`
	Enabled             bool          `yaml:"enabled"`
	ImportantTagKeys    []string      `yaml:"importantTagKeys"`
	MaxIndexEntries     int           `yaml:"maxIndexEntries"`
	SweepInterval       time.Duration `yaml:"sweepInterval"`
}

// SimilarityConfig tunes the weighted similarity scorer. The weights must sum
// to 1.0; that is enforced at engine construction, not here.
type SimilarityConfig struct {
	TitleWeight       float64 `yaml:"titleWeight"`
	DescriptionWeight float64 `yaml:"descriptionWeight"`
	HostWeight        float64 `yaml:"hostWeight"`
	ServiceWeight     float64 `yaml:"serviceWeight"`
	TagsWeight        float64 `yaml:"tagsWeight"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls the Valkey-backed shared recency index. When disabled
// the engine runs on its in-process index instead.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("ALARM_DEDUP_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Dedup: DedupSettings{
			Strategy:            "normal",
			SimilarityThreshold: 0.85,
			TimeWindow:          60 * time.Minute,
			Enabled:             true,
			ImportantTagKeys:    []string{"cluster", "env", "region"},
			MaxIndexEntries:     10000,
			SweepInterval:       5 * time.Minute,
		},
		Similarity: SimilarityConfig{
			TitleWeight:       0.40,
			DescriptionWeight: 0.20,
			HostWeight:        0.15,
			ServiceWeight:     0.15,
			TagsWeight:        0.10,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ALARM_DEDUP_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("ALARM_DEDUP_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("ALARM_DEDUP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ALARM_DEDUP_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("ALARM_DEDUP_STRATEGY"); v != "" {
		cfg.Dedup.Strategy = v
	}
	if v := os.Getenv("ALARM_DEDUP_SIMILARITY_THRESHOLD"); v != "" {
		if threshold, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Dedup.SimilarityThreshold = threshold
		}
	}
	if v := os.Getenv("ALARM_DEDUP_TIME_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Dedup.TimeWindow = d
		}
	}
	if v := os.Getenv("ALARM_DEDUP_ENABLED"); v != "" {
		cfg.Dedup.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("ALARM_DEDUP_IMPORTANT_TAGS"); v != "" {
		keys := make([]string, 0)
		for _, key := range strings.Split(v, ",") {
			if key = strings.TrimSpace(key); key != "" {
				keys = append(keys, key)
			}
		}
		cfg.Dedup.ImportantTagKeys = keys
	}
	if v := os.Getenv("ALARM_DEDUP_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("ALARM_DEDUP_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("ALARM_DEDUP_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("ALARM_DEDUP_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("ALARM_DEDUP_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("ALARM_DEDUP_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("ALARM_DEDUP_CACHE_DIAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DialTimeout = d
		}
	}
	if v := os.Getenv("ALARM_DEDUP_CACHE_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ReadTimeout = d
		}
	}
	if v := os.Getenv("ALARM_DEDUP_CACHE_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.WriteTimeout = d
		}
	}
	if v := os.Getenv("ALARM_DEDUP_CACHE_MAX_RETRIES"); v != "" {
		if retry, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxRetries = retry
		}
	}
}
