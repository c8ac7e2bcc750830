// Package config loads server settings from the environment, optionally
// layered over a YAML file.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Cluster modes.
const (
	ClusterLocal  = "local"
	ClusterRemote = "remote"
	ClusterNone   = "none"
)

// HTTPWriteTimeout bounds every response, submissions included.
const HTTPWriteTimeout = 10 * time.Second

var (
	ErrClusterMode    = errors.New("config: CLUSTER_MODE must be local, remote or none")
	ErrClusterURL     = errors.New("config: CLUSTER_URL is required in remote mode")
	ErrClusterTimeout = errors.New("config: CLUSTER_TIMEOUT must be positive and below the HTTP write timeout")
)

// Config holds every runtime setting of the server.
type Config struct {
	Port        string
	PublicURL   string
	DatabaseURL string
	RedisURL    string
	RedisStream string
	StreamLen   int64
	CacheTTL    time.Duration

	ClusterMode      string
	ClusterURL       string
	// ClusterTimeout bounds one hand-off to a remote cluster, retries
	// included.
	ClusterTimeout   time.Duration
	ClusterWorkers   int
	ClusterQueueSize int
	// ClusterSecret seeds the local cluster's key material.
	ClusterSecret []byte

	CallbackSecret   []byte
	CallbackTokenTTL time.Duration

	SubmitRPS   float64
	SubmitBurst int

	MonitorSpec   string
	StaleJobAfter time.Duration
}

func defaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("public_url", "http://localhost:8080")
	v.SetDefault("redis_stream", "sentinel:events")
	v.SetDefault("redis_stream_maxlen", 10000)
	v.SetDefault("cache_ttl", 30*time.Second)
	v.SetDefault("cluster_mode", ClusterLocal)
	v.SetDefault("cluster_timeout", 5*time.Second)
	v.SetDefault("cluster_workers", 8)
	v.SetDefault("cluster_queue_size", 256)
	v.SetDefault("callback_token_ttl", 15*time.Minute)
	v.SetDefault("submit_rps", 50.0)
	v.SetDefault("submit_burst", 100)
	v.SetDefault("monitor_spec", "*/30 * * * * *")
	v.SetDefault("stale_job_after", 5*time.Minute)
}

// Load reads settings from the environment (PORT, DATABASE_URL, ...). When
// file is non-empty it is read first and the environment overrides it.
func Load(file string) (*Config, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := &Config{
		Port:             v.GetString("port"),
		PublicURL:        v.GetString("public_url"),
		DatabaseURL:      v.GetString("database_url"),
		RedisURL:         v.GetString("redis_url"),
		RedisStream:      v.GetString("redis_stream"),
		StreamLen:        v.GetInt64("redis_stream_maxlen"),
		CacheTTL:         v.GetDuration("cache_ttl"),
		ClusterMode:      strings.ToLower(v.GetString("cluster_mode")),
		ClusterURL:       v.GetString("cluster_url"),
		ClusterTimeout:   v.GetDuration("cluster_timeout"),
		ClusterWorkers:   v.GetInt("cluster_workers"),
		ClusterQueueSize: v.GetInt("cluster_queue_size"),
		CallbackTokenTTL: v.GetDuration("callback_token_ttl"),
		SubmitRPS:        v.GetFloat64("submit_rps"),
		SubmitBurst:      v.GetInt("submit_burst"),
		MonitorSpec:      v.GetString("monitor_spec"),
		StaleJobAfter:    v.GetDuration("stale_job_after"),
	}

	switch cfg.ClusterMode {
	case ClusterLocal, ClusterNone:
	case ClusterRemote:
		if cfg.ClusterURL == "" {
			return nil, ErrClusterURL
		}
	default:
		return nil, fmt.Errorf("%w, got %q", ErrClusterMode, cfg.ClusterMode)
	}
	if cfg.ClusterTimeout <= 0 || cfg.ClusterTimeout >= HTTPWriteTimeout {
		return nil, fmt.Errorf("%w, got %s", ErrClusterTimeout, cfg.ClusterTimeout)
	}

	var err error
	if cfg.ClusterSecret, err = secret(v, "cluster_secret"); err != nil {
		return nil, err
	}
	if cfg.CallbackSecret, err = secret(v, "callback_secret"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// secret decodes a hex secret. A missing secret is generated, which means
// sealed records and issued tokens do not survive a restart.
func secret(v *viper.Viper, key string) ([]byte, error) {
	raw := v.GetString(key)
	if raw == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate %s: %w", key, err)
		}
		slog.Warn("secret not set, generated an ephemeral one", "key", strings.ToUpper(key))
		return b, nil
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s must be hex: %w", strings.ToUpper(key), err)
	}
	if len(b) < 32 {
		return nil, fmt.Errorf("config: %s must be at least 32 bytes, got %d", strings.ToUpper(key), len(b))
	}
	return b, nil
}
