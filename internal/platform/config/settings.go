package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings is the resolved server configuration. Durations are in ms.
type Settings struct {
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`

	ManifestTimeWindowMs int64 `yaml:"manifestTimeWindowMs"`
	TimestampToleranceMs int64 `yaml:"timestampToleranceMs"`
	ClipDurationMs       int64 `yaml:"clipDurationMs"`
	StrictAssertions     bool  `yaml:"strictAssertions"`

	StoreBackend string `yaml:"storeBackend"`
	StorePath    string `yaml:"storePath"`
	RedisAddr    string `yaml:"redisAddr"`

	// IngestRateLimit is requests per second per client IP; 0 disables it.
	IngestRateLimit int `yaml:"ingestRateLimit"`
}

// Defaults returns the settings used when neither a file nor the
// environment says otherwise.
func Defaults() Settings {
	return Settings{
		Port:                 "8080",
		LogLevel:             "info",
		LogFormat:            "json",
		ManifestTimeWindowMs: 60000,
		TimestampToleranceMs: 100,
		ClipDurationMs:       10000,
		StoreBackend:         "memory",
		StorePath:            "data",
		RedisAddr:            "localhost:6379",
	}
}

// LoadFile decodes a YAML settings file over s. Unknown keys are an error.
func LoadFile(path string, s *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

// Resolve builds Settings from the defaults, the optional CONFIG_FILE and
// the environment, in increasing priority.
func Resolve() (Settings, error) {
	s := Defaults()
	if path := GetEnv("CONFIG_FILE", ""); path != "" {
		if err := LoadFile(path, &s); err != nil {
			return s, err
		}
	}

	s.Port = GetEnv("PORT", s.Port)
	s.LogLevel = GetEnv("LOG_LEVEL", s.LogLevel)
	s.LogFormat = GetEnv("LOG_FORMAT", s.LogFormat)
	s.ManifestTimeWindowMs = GetEnvInt64("MANIFEST_TIME_WINDOW_MS", s.ManifestTimeWindowMs)
	s.TimestampToleranceMs = GetEnvInt64("TIMESTAMP_TOLERANCE_MS", s.TimestampToleranceMs)
	s.ClipDurationMs = GetEnvInt64("CLIP_DURATION_MS", s.ClipDurationMs)
	s.StrictAssertions = GetEnvBool("STRICT_ASSERTIONS", s.StrictAssertions)
	s.StoreBackend = GetEnv("STORE_BACKEND", s.StoreBackend)
	s.StorePath = GetEnv("STORE_PATH", s.StorePath)
	s.RedisAddr = GetEnv("REDIS_ADDR", s.RedisAddr)
	s.IngestRateLimit = GetEnvInt("INGEST_RATE_LIMIT", s.IngestRateLimit)

	if s.ManifestTimeWindowMs < 0 || s.TimestampToleranceMs < 0 || s.ClipDurationMs <= 0 {
		return s, fmt.Errorf("invalid timing settings: window=%d tolerance=%d clip=%d",
			s.ManifestTimeWindowMs, s.TimestampToleranceMs, s.ClipDurationMs)
	}
	return s, nil
}
