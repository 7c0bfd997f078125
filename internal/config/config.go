package config

import (
	"time"

	"github.com/rickgao/candled/internal/model"
)

// Config is the root configuration for the ingester.
type Config struct {
	API      APIConfig     `yaml:"api"`
	Database DBConfig      `yaml:"database"`
	History  HistoryConfig `yaml:"history"`
	Log      LogConfig     `yaml:"log"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// APIConfig holds history archive API settings.
type APIConfig struct {
	HistoryURL  string        `yaml:"history_url"`
	Token       string        `yaml:"token"`        // Bearer token
	Timeout     time.Duration `yaml:"timeout"`      // Whole request, including the archive body
	RequestRate float64       `yaml:"request_rate"` // Max requests per second, 0 = header throttling only
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Name           string        `yaml:"name"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	SSLMode        string        `yaml:"ssl_mode"`
	MaxConns       int           `yaml:"max_conns"`
	MinConns       int           `yaml:"min_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"` // Total time to keep retrying the initial connection
}

// HistoryConfig holds scheduler and pipeline settings.
type HistoryConfig struct {
	AssetTypes     []model.AssetType `yaml:"asset_types"`      // Asset types with downloadable history
	PipeBufferSize int               `yaml:"pipe_buffer_size"` // Decompressed bytes per pipe write
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}
