package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/courseai/courseai/backend/internal/widget"
)

// Config aggregates every setting of the service.
type Config struct {
	Server  ServerConfig
	Widget  WidgetConfig
	Session SessionConfig
	Limits  LimitConfig
	Log     LogConfig
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port        string   `env:"PORT" envDefault:"8080"`
	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
	Addr        string
}

// WidgetConfig drives every chat widget controller.
type WidgetConfig struct {
	ReplyDelay time.Duration `env:"REPLY_DELAY" envDefault:"1500ms"`
	BusyPolicy string        `env:"BUSY_POLICY" envDefault:"reject"`
	QueueLimit int           `env:"QUEUE_LIMIT" envDefault:"8"`
	RulesFile  string        `env:"RULES_FILE"`
	TimeFormat string        `env:"TIME_FORMAT" envDefault:"03:04 PM"`
	Welcome    string        `env:"WELCOME_MESSAGE"`

	Policy widget.BusyPolicy
}

// SessionConfig controls how long idle page sessions are kept.
type SessionConfig struct {
	TTL           time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1m"`
}

// LimitConfig bounds how fast a single client may submit messages.
type LimitConfig struct {
	SubmitRate  float64 `env:"SUBMIT_RATE" envDefault:"2"`
	SubmitBurst int     `env:"SUBMIT_BURST" envDefault:"5"`
}

// LogConfig selects logger verbosity and output.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads configuration from the supplied variables only.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	addr, err := listenAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	policy, err := widget.ParseBusyPolicy(cfg.Widget.BusyPolicy)
	if err != nil {
		return nil, fmt.Errorf("invalid BUSY_POLICY: %w", err)
	}
	cfg.Widget.Policy = policy

	if cfg.Widget.ReplyDelay < 0 {
		return nil, fmt.Errorf("invalid REPLY_DELAY %s: must not be negative", cfg.Widget.ReplyDelay)
	}
	if cfg.Widget.QueueLimit < 1 {
		return nil, fmt.Errorf("invalid QUEUE_LIMIT %d: must be positive", cfg.Widget.QueueLimit)
	}
	if cfg.Session.TTL <= 0 || cfg.Session.SweepInterval <= 0 {
		return nil, fmt.Errorf("SESSION_TTL and SESSION_SWEEP_INTERVAL must be positive")
	}
	if cfg.Limits.SubmitRate <= 0 || cfg.Limits.SubmitBurst < 1 {
		return nil, fmt.Errorf("SUBMIT_RATE and SUBMIT_BURST must be positive")
	}

	origins := cfg.Server.CORSOrigins[:0]
	for _, o := range cfg.Server.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.Server.CORSOrigins = origins

	return &cfg, nil
}

// listenAddr turns PORT into a listen address.
func listenAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// ControllerConfig maps widget settings onto a controller config.
func (c WidgetConfig) ControllerConfig() widget.Config {
	return widget.Config{
		ReplyDelay: c.ReplyDelay,
		Policy:     c.Policy,
		QueueLimit: c.QueueLimit,
		TimeFormat: c.TimeFormat,
		Welcome:    c.Welcome,
	}
}
