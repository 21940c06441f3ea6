package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v7"
	"github.com/joho/godotenv"

	"github.com/jdelaire/botpoll/core"
)

// Config holds runtime settings read from the environment.
type Config struct {
	Token          string        `env:"BOTPOLL_TOKEN"`
	APIURL         string        `env:"BOTPOLL_API_URL"          envDefault:"https://api.telegram.org"`
	PollTimeout    time.Duration `env:"BOTPOLL_POLL_TIMEOUT"     envDefault:"30s"`
	PollLimit      int           `env:"BOTPOLL_POLL_LIMIT"       envDefault:"100"`
	Offset         int64         `env:"BOTPOLL_OFFSET"`
	AllowedUpdates []string      `env:"BOTPOLL_ALLOWED_UPDATES"  envSeparator:","`
	AllowedChats   []int64       `env:"BOTPOLL_ALLOWED_CHATS"    envSeparator:","`
	MaxInFlight    int           `env:"BOTPOLL_MAX_IN_FLIGHT"    envDefault:"0"`
	HandlerTimeout time.Duration `env:"BOTPOLL_HANDLER_TIMEOUT"  envDefault:"30s"`
	ShutdownGrace  time.Duration `env:"BOTPOLL_SHUTDOWN_GRACE"   envDefault:"10s"`
	LogLevel       string        `env:"BOTPOLL_LOG_LEVEL"        envDefault:"info"`
	LogFormat      string        `env:"BOTPOLL_LOG_FORMAT"       envDefault:"text"`
	LogFile        string        `env:"BOTPOLL_LOG_FILE"`
	MetricsAddr    string        `env:"BOTPOLL_METRICS_ADDR"     envDefault:":9464"`
	ReloadDelay    time.Duration `env:"BOTPOLL_RELOAD_DELAY"     envDefault:"500ms"`
}

// chatSettings is the subset of Config that can change while running.
type chatSettings struct {
	AllowedChats []int64 `env:"BOTPOLL_ALLOWED_CHATS" envSeparator:","`
}

var validKinds = map[core.UpdateKind]bool{
	core.KindMessage:            true,
	core.KindEditedMessage:      true,
	core.KindChannelPost:        true,
	core.KindEditedChannelPost:  true,
	core.KindInlineQuery:        true,
	core.KindChosenInlineResult: true,
	core.KindCallbackQuery:      true,
}

// Load reads an optional dotenv file, then parses the environment. A missing
// dotenv file is not an error.
func Load(dotenvPath string) (Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", dotenvPath, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ReadAllowedChats re-reads BOTPOLL_ALLOWED_CHATS with values in the dotenv
// file taking precedence over the process environment.
func ReadAllowedChats(dotenvPath string) ([]int64, error) {
	fileVars, err := godotenv.Read(dotenvPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dotenvPath, err)
	}

	environ := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			environ[k] = v
		}
	}
	for k, v := range fileVars {
		environ[k] = v
	}

	var s chatSettings
	if err := env.Parse(&s, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse %s: %w", dotenvPath, err)
	}
	return s.AllowedChats, nil
}

// Validate checks value ranges that the env tags cannot express.
func (c Config) Validate() error {
	if c.PollTimeout < 0 {
		return fmt.Errorf("poll timeout must not be negative: %s", c.PollTimeout)
	}
	if c.PollLimit < 0 || c.PollLimit > 100 {
		return fmt.Errorf("poll limit must be between 0 and 100: %d", c.PollLimit)
	}
	if c.Offset < 0 {
		return fmt.Errorf("offset must not be negative: %d", c.Offset)
	}
	for _, k := range c.AllowedUpdates {
		if !validKinds[core.UpdateKind(k)] {
			return fmt.Errorf("unknown update kind %q", k)
		}
	}
	if c.ReloadDelay < 0 {
		return fmt.Errorf("reload delay must not be negative: %s", c.ReloadDelay)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json: %q", c.LogFormat)
	}
	return nil
}

// UpdateKinds returns AllowedUpdates as core kinds, or nil when unset.
func (c Config) UpdateKinds() []core.UpdateKind {
	if len(c.AllowedUpdates) == 0 {
		return nil
	}
	kinds := make([]core.UpdateKind, len(c.AllowedUpdates))
	for i, k := range c.AllowedUpdates {
		kinds[i] = core.UpdateKind(k)
	}
	return kinds
}
