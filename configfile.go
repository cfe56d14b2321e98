package analytics

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the YAML configuration file schema. Durations use the
// millisecond fields the wire-level options are named after.
type fileConfig struct {
	APIKey               string `yaml:"api_key"`
	ServerURL            string `yaml:"server_url"`
	ServerZone           string `yaml:"server_zone"`
	UseBatch             bool   `yaml:"use_batch"`
	FlushQueueSize       int    `yaml:"flush_queue_size"`
	FlushIntervalMillis  int    `yaml:"flush_interval_millis"`
	MaxRetries           int    `yaml:"max_retries"`
	MinIDLength          int    `yaml:"min_id_length"`
	MaxBufferCapacity    int    `yaml:"max_buffer_capacity"`
	RetryBaseDelayMillis int    `yaml:"retry_base_delay_millis"`
	RetryMaxDelayMillis  int    `yaml:"retry_max_delay_millis"`
	TimeoutMillis        int    `yaml:"timeout_millis"`
	Debug                bool   `yaml:"debug"`
}

// LoadConfigFile reads a YAML configuration file and returns the
// corresponding Config. Fields absent from the file keep their zero value
// and pick up defaults at client construction.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("analytics: failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("analytics: failed to parse config file: %w", err)
	}

	cfg := &Config{
		APIKey:            fc.APIKey,
		ServerURL:         fc.ServerURL,
		ServerZone:        ServerZone(fc.ServerZone),
		UseBatch:          fc.UseBatch,
		FlushQueueSize:    fc.FlushQueueSize,
		MaxRetries:        fc.MaxRetries,
		MinIDLength:       fc.MinIDLength,
		MaxBufferCapacity: fc.MaxBufferCapacity,
		Debug:             fc.Debug,
	}
	if fc.FlushIntervalMillis > 0 {
		cfg.FlushInterval = time.Duration(fc.FlushIntervalMillis) * time.Millisecond
	}
	if fc.RetryBaseDelayMillis > 0 {
		cfg.RetryBaseDelay = time.Duration(fc.RetryBaseDelayMillis) * time.Millisecond
	}
	if fc.RetryMaxDelayMillis > 0 {
		cfg.RetryMaxDelay = time.Duration(fc.RetryMaxDelayMillis) * time.Millisecond
	}
	if fc.TimeoutMillis > 0 {
		cfg.Timeout = time.Duration(fc.TimeoutMillis) * time.Millisecond
	}
	return cfg, nil
}
