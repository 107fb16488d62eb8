package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Flags binds command line flags to configuration fields.
type Flags struct {
	ConfigPath string
	EnvFile    string

	endpoint        string
	xToken          string
	caCertificate   string
	targets         []string
	requiredProgram string
	excludeFailed   bool
	commitment      int32
	busCapacity     int
	pingID          int32
	listenAddr      string
	redisURL        string
	redisChannel    string
	logFile         string
	logLevel        string
	connectTimeout  time.Duration
	timeout         time.Duration
}

// AddFlags registers every flag on fs. Defaults shown in help are the
// built-in defaults; only flags set explicitly override other sources.
func (f *Flags) AddFlags(fs *pflag.FlagSet) {
	def := Default()

	fs.StringVar(&f.ConfigPath, "config", "", "path to YAML config file")
	fs.StringVar(&f.EnvFile, "env-file", ".env", "path to .env file (ignored if missing)")
	fs.StringVar(&f.endpoint, "endpoint", def.Endpoint, "geyser gRPC endpoint")
	fs.StringVar(&f.xToken, "x-token", "", "geyser x-token")
	fs.StringVar(&f.caCertificate, "ca-cert", "", "PEM file added to system trust roots")
	fs.StringSliceVar(&f.targets, "target", def.TargetAccounts, "target account (repeatable or comma separated)")
	fs.StringVar(&f.requiredProgram, "required-program", def.RequiredProgram, "program every transaction must invoke")
	fs.BoolVar(&f.excludeFailed, "exclude-failed", def.ExcludeFailed, "drop failed transactions")
	fs.Int32Var(&f.commitment, "commitment", def.Commitment, "commitment level (0=processed, 1=confirmed, 2=finalized)")
	fs.IntVar(&f.busCapacity, "bus-capacity", def.BusCapacity, "fanout buffer size")
	fs.Int32Var(&f.pingID, "ping-id", def.PingID, "id sent in ping replies")
	fs.StringVar(&f.listenAddr, "listen", def.ListenAddr, "HTTP listen address (empty disables)")
	fs.StringVar(&f.redisURL, "redis-url", "", "redis URL for the signature relay")
	fs.StringVar(&f.redisChannel, "redis-channel", def.RedisChannel, "redis channel for the signature relay")
	fs.StringVar(&f.logFile, "log-file", "", "rotating log file path")
	fs.StringVar(&f.logLevel, "log-level", def.LogLevel, "log level (debug, info, warn, error)")
	fs.DurationVar(&f.connectTimeout, "connect-timeout", 0, "connection handshake timeout")
	fs.DurationVar(&f.timeout, "timeout", 0, "per-call timeout")
}

// Apply overlays the flags that were set on fs onto cfg.
func (f *Flags) Apply(cfg *Config, fs *pflag.FlagSet) {
	fs.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "endpoint":
			cfg.Endpoint = f.endpoint
		case "x-token":
			cfg.XToken = f.xToken
		case "ca-cert":
			cfg.CACertificate = f.caCertificate
		case "target":
			cfg.TargetAccounts = append([]string(nil), f.targets...)
		case "required-program":
			cfg.RequiredProgram = f.requiredProgram
		case "exclude-failed":
			cfg.ExcludeFailed = f.excludeFailed
		case "commitment":
			cfg.Commitment = f.commitment
		case "bus-capacity":
			cfg.BusCapacity = f.busCapacity
		case "ping-id":
			cfg.PingID = f.pingID
		case "listen":
			cfg.ListenAddr = f.listenAddr
		case "redis-url":
			cfg.RedisURL = f.redisURL
		case "redis-channel":
			cfg.RedisChannel = f.redisChannel
		case "log-file":
			cfg.LogFile = f.logFile
		case "log-level":
			cfg.LogLevel = f.logLevel
		case "connect-timeout":
			d := f.connectTimeout
			cfg.Connection.ConnectTimeout = &d
		case "timeout":
			d := f.timeout
			cfg.Connection.Timeout = &d
		}
	})
}

// Load builds the configuration from every source. fs must already be parsed.
func (f *Flags) Load(fs *pflag.FlagSet, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if f.ConfigPath != "" {
		if err := LoadFile(&cfg, f.ConfigPath); err != nil {
			return Config{}, err
		}
	}

	if f.EnvFile != "" {
		if err := LoadDotEnv(f.EnvFile); err != nil {
			return Config{}, err
		}
	}
	ApplyEnv(&cfg, lookup)

	f.Apply(&cfg, fs)
	return cfg, nil
}
