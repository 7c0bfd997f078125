package config

import (
	"time"

	"github.com/rickgao/candled/internal/model"
)

// Default values for optional configuration fields.
const (
	DefaultHistoryURL     = "https://invest-public-api.tinkoff.ru/history-data"
	DefaultAPITimeout     = 5 * time.Minute
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "prefer"
	DefaultMaxConns       = 4
	DefaultMinConns       = 1
	DefaultConnectTimeout = time.Minute
	DefaultPipeBufferSize = 64 * 1024
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultMetricsPort    = 9090
	DefaultMetricsPath    = "/metrics"
)

// DefaultAssetTypes are the asset types the history archive serves one-minute candles for.
var DefaultAssetTypes = []model.AssetType{
	model.AssetTypeBond,
	model.AssetTypeCurrency,
	model.AssetTypeShare,
	model.AssetTypeETF,
}

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	// API defaults
	if c.API.HistoryURL == "" {
		c.API.HistoryURL = DefaultHistoryURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}
	if c.Database.ConnectTimeout == 0 {
		c.Database.ConnectTimeout = DefaultConnectTimeout
	}

	// History defaults
	if len(c.History.AssetTypes) == 0 {
		c.History.AssetTypes = append([]model.AssetType(nil), DefaultAssetTypes...)
	}
	if c.History.PipeBufferSize == 0 {
		c.History.PipeBufferSize = DefaultPipeBufferSize
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
