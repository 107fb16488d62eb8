// Package config loads monitor configuration.
//
// Values are layered in this order, later sources winning:
//   - built-in defaults
//   - a YAML file (--config)
//   - environment variables, after loading an optional .env file
//   - command line flags that were explicitly set
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"solana-tx-monitor/internal/domain"
	"solana-tx-monitor/internal/geyser"
)

// Environment variable names.
const (
	EnvEndpoint       = "GEYSER_ENDPOINT"
	EnvXToken         = "GEYSER_X_TOKEN"
	EnvTargetAccounts = "TARGET_ACCOUNTS"
	EnvRedisURL       = "REDIS_URL"
)

// Defaults.
const (
	DefaultEndpoint      = "https://solana-yellowstone-grpc.publicnode.com:443"
	DefaultTargetAccount = "9YwtWKdNczTzJHMbVdh1J3ZFWAVmYPpCPR7FwoMvZkVx"
	DefaultBusCapacity   = 512
	DefaultPingID        = 1
	DefaultListenAddr    = ":9090"
	DefaultRedisChannel  = "solana:transactions"
	DefaultLogLevel      = "info"
)

// Config is the full monitor configuration. It is not modified after Load.
type Config struct {
	// Endpoint is the geyser gRPC URI.
	Endpoint string `yaml:"endpoint"`

	// XToken is sent as the x-token header when set.
	XToken string `yaml:"x_token"`

	// CACertificate is a PEM file added to the system trust roots.
	CACertificate string `yaml:"ca_certificate"`

	// TargetAccounts are the accounts a transaction must touch (any of).
	TargetAccounts []string `yaml:"target_accounts"`

	// RequiredProgram must appear in every matched transaction.
	RequiredProgram string `yaml:"required_program"`

	ExcludeFailed bool  `yaml:"exclude_failed"`
	Commitment    int32 `yaml:"commitment"`

	// BusCapacity is the fanout ring size.
	BusCapacity int `yaml:"bus_capacity"`

	// PingID is sent in every ping reply.
	PingID int32 `yaml:"ping_id"`

	// ListenAddr serves /metrics, /health, /transactions and /ws. Empty disables it.
	ListenAddr string `yaml:"listen_addr"`

	// RedisURL enables the relay when set.
	RedisURL     string `yaml:"redis_url"`
	RedisChannel string `yaml:"redis_channel"`

	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`

	Connection Connection `yaml:"connection"`
}

// Connection holds transport tuning. Nil fields keep the transport default.
type Connection struct {
	MaxDecodingMessageSize      int            `yaml:"max_decoding_message_size"`
	BufferSize                  *int           `yaml:"buffer_size"`
	ConnectTimeout              *time.Duration `yaml:"connect_timeout"`
	Timeout                     *time.Duration `yaml:"timeout"`
	HTTP2AdaptiveWindow         *bool          `yaml:"http2_adaptive_window"`
	HTTP2KeepAliveInterval      *time.Duration `yaml:"http2_keep_alive_interval"`
	InitialConnectionWindowSize *int32         `yaml:"initial_connection_window_size"`
	InitialStreamWindowSize     *int32         `yaml:"initial_stream_window_size"`
	KeepAliveTimeout            *time.Duration `yaml:"keep_alive_timeout"`
	KeepAliveWhileIdle          *bool          `yaml:"keep_alive_while_idle"`
	TCPKeepAlive                *time.Duration `yaml:"tcp_keepalive"`
	TCPNoDelay                  *bool          `yaml:"tcp_nodelay"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Endpoint:        DefaultEndpoint,
		TargetAccounts:  []string{DefaultTargetAccount},
		RequiredProgram: domain.PumpFun,
		ExcludeFailed:   true,
		Commitment:      int32(geyser.CommitmentProcessed),
		BusCapacity:     DefaultBusCapacity,
		PingID:          DefaultPingID,
		ListenAddr:      DefaultListenAddr,
		RedisChannel:    DefaultRedisChannel,
		LogLevel:        DefaultLogLevel,
		Connection: Connection{
			MaxDecodingMessageSize: geyser.DefaultMaxDecodingMessageSize,
		},
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the file
// keep their current values.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg using lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvEndpoint); ok && v != "" {
		cfg.Endpoint = v
	}
	if v, ok := lookup(EnvXToken); ok && v != "" {
		cfg.XToken = v
	}
	if v, ok := lookup(EnvTargetAccounts); ok && v != "" {
		cfg.TargetAccounts = SplitList(v)
	}
	if v, ok := lookup(EnvRedisURL); ok && v != "" {
		cfg.RedisURL = v
	}
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ConnectionConfig converts cfg into the connector's configuration.
func (c Config) ConnectionConfig() geyser.ConnectionConfig {
	out := geyser.DefaultConnectionConfig(c.Endpoint)
	if c.XToken != "" {
		tok := c.XToken
		out.XToken = &tok
	}
	if c.CACertificate != "" {
		ca := c.CACertificate
		out.CACertificate = &ca
	}

	conn := c.Connection
	if conn.MaxDecodingMessageSize > 0 {
		out.MaxDecodingMessageSize = conn.MaxDecodingMessageSize
	}
	out.BufferSize = conn.BufferSize
	out.ConnectTimeout = conn.ConnectTimeout
	out.Timeout = conn.Timeout
	out.HTTP2AdaptiveWindow = conn.HTTP2AdaptiveWindow
	out.HTTP2KeepAliveInterval = conn.HTTP2KeepAliveInterval
	out.InitialConnectionWindowSize = conn.InitialConnectionWindowSize
	out.InitialStreamWindowSize = conn.InitialStreamWindowSize
	out.KeepAliveTimeout = conn.KeepAliveTimeout
	out.KeepAliveWhileIdle = conn.KeepAliveWhileIdle
	out.TCPKeepAlive = conn.TCPKeepAlive
	out.TCPNoDelay = conn.TCPNoDelay
	return out
}

// Subscription builds the subscription request described by cfg.
func (c Config) Subscription() geyser.SubscriptionRequest {
	return geyser.BuildSubscription(c.TargetAccounts, c.RequiredProgram, c.ExcludeFailed).
		WithCommitment(geyser.CommitmentLevel(c.Commitment))
}
