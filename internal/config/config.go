// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every flag name to form its environment variable.
const EnvPrefix = "THREES"

// Config holds the settings shared by the threes binaries.
type Config struct {
	Bind string
	Port int

	DatabaseURL string
	RedisAddr   string
	RedisDB     int
	ActionQueue string

	IdleTimeout   time.Duration
	SweepInterval time.Duration
	TurnDelay     time.Duration
	PingInterval  time.Duration

	MessagesPerSecond float64
	MessageBurst      int

	LogLevel string
	LogJSON  bool

	PublicURL string
}

// Default returns the configuration used when no flag or env var is set.
func Default() *Config {
	return &Config{
		Bind:              "0.0.0.0",
		Port:              8080,
		RedisDB:           0,
		ActionQueue:       "threes_actions",
		IdleTimeout:       30 * time.Minute,
		SweepInterval:     5 * time.Minute,
		TurnDelay:         3 * time.Second,
		PingInterval:      30 * time.Second,
		MessagesPerSecond: 20,
		MessageBurst:      40,
		LogLevel:          "info",
		PublicURL:         "http://localhost:8080",
	}
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	durations := map[string]time.Duration{
		"idle-timeout":   c.IdleTimeout,
		"sweep-interval": c.SweepInterval,
		"turn-delay":     c.TurnDelay,
		"ping-interval":  c.PingInterval,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("--%s must be positive, got %s", name, d)
		}
	}
	if c.MessagesPerSecond <= 0 || c.MessageBurst < 1 {
		return errors.New("--max-messages-per-second and --message-burst must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	return nil
}

// Bind registers the persistent flags of cmd onto cfg. Each flag can also be
// set through THREES_<FLAG_NAME>, with dashes replaced by underscores. Values
// from the environment are applied when the command runs, so flags given on
// the command line take precedence.
func Bind(cmd *cobra.Command, cfg *Config) {
	fs := cmd.PersistentFlags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	d := Default()
	fs.StringVarP(&cfg.Bind, "bind", "b", d.Bind, "address to bind to (env: THREES_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", d.Port, "port to listen on (env: THREES_PORT)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", d.DatabaseURL, "postgres connection string; history is disabled when empty (env: THREES_DATABASE_URL)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", d.RedisAddr, "redis address for the action log; disabled when empty (env: THREES_REDIS_ADDR)")
	fs.IntVar(&cfg.RedisDB, "redis-db", d.RedisDB, "redis database number (env: THREES_REDIS_DB)")
	fs.StringVar(&cfg.ActionQueue, "action-queue", d.ActionQueue, "redis list that carries room actions (env: THREES_ACTION_QUEUE)")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", d.IdleTimeout, "time before inactive rooms are closed (env: THREES_IDLE_TIMEOUT)")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", d.SweepInterval, "how often inactive rooms are looked for (env: THREES_SWEEP_INTERVAL)")
	fs.DurationVar(&cfg.TurnDelay, "turn-delay", d.TurnDelay, "pause between a finished turn and the next (env: THREES_TURN_DELAY)")
	fs.DurationVar(&cfg.PingInterval, "ping-interval", d.PingInterval, "websocket keepalive interval (env: THREES_PING_INTERVAL)")
	fs.Float64Var(&cfg.MessagesPerSecond, "max-messages-per-second", d.MessagesPerSecond, "inbound messages allowed per connection per second (env: THREES_MAX_MESSAGES_PER_SECOND)")
	fs.IntVar(&cfg.MessageBurst, "message-burst", d.MessageBurst, "inbound message burst per connection (env: THREES_MESSAGE_BURST)")
	fs.StringVar(&cfg.LogLevel, "log-level", d.LogLevel, "log level: trace, debug, info, warn, error (env: THREES_LOG_LEVEL)")
	fs.BoolVar(&cfg.LogJSON, "log-json", d.LogJSON, "emit logs as JSON (env: THREES_LOG_JSON)")
	fs.StringVar(&cfg.PublicURL, "public-url", d.PublicURL, "base URL used in room join links (env: THREES_PUBLIC_URL)")

	prev := cmd.PersistentPreRunE
	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		if err := applyEnv(fs); err != nil {
			return err
		}
		if prev != nil {
			return prev(c, args)
		}
		return nil
	}
}

// applyEnv copies THREES_* values onto flags that were not set explicitly.
func applyEnv(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			if setErr := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); setErr != nil && err == nil {
				err = fmt.Errorf("invalid value for %s_%s: %w", EnvPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), setErr)
			}
		}
	})
	return err
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg *Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.LogJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
