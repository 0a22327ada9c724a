// Package config reads server settings from CODEX_* environment variables.
// Command line flags override the loaded values.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/gosuda/codex-sync/codex/liveness"
	"github.com/gosuda/codex-sync/codex/transport"
)

const (
	StoreDir    = "dir"
	StorePebble = "pebble"
	StoreNone   = "none"
)

type Config struct {
	// Empty addresses disable the listener.
	SocketAddr string `env:"CODEX_SOCKET_ADDR" envDefault:":50001"`
	RPCAddr    string `env:"CODEX_RPC_ADDR" envDefault:":50002"`
	// Negative disables the local HTTP gateway.
	HTTPPort int `env:"CODEX_HTTP_PORT" envDefault:"8080"`

	Store    string `env:"CODEX_STORE" envDefault:"dir"`
	DataDir  string `env:"CODEX_DATA_DIR" envDefault:"codex-data"`
	AutoSave bool   `env:"CODEX_AUTOSAVE" envDefault:"true"`

	HeartbeatInterval time.Duration `env:"CODEX_HEARTBEAT_INTERVAL" envDefault:"2s"`
	HeartbeatTimeout  time.Duration `env:"CODEX_HEARTBEAT_TIMEOUT" envDefault:"5s"`
	SendQueue         int           `env:"CODEX_SEND_QUEUE" envDefault:"64"`
	MaxFrame          int           `env:"CODEX_MAX_FRAME" envDefault:"1048576"`
	// SocketProbe is how long a socket writer may idle before it writes the
	// keepalive token. Zero disables probing.
	SocketProbe time.Duration `env:"CODEX_SOCKET_PROBE" envDefault:"1s"`

	RelayServers []string `env:"CODEX_RELAY" envSeparator:","`
	RelayName    string   `env:"CODEX_RELAY_NAME" envDefault:"codex"`
	RelayCredKey string   `env:"CODEX_RELAY_CRED_KEY"`

	// Seed fixes deck shuffles; zero picks one from the clock.
	Seed uint64 `env:"CODEX_SEED"`

	LogLevel  string `env:"CODEX_LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"CODEX_LOG_PRETTY"`
}

// Load parses the process environment.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}

// LoadFrom parses an explicit environment instead of the process one.
func LoadFrom(environ map[string]string) (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Environment: environ}); err != nil {
		return c, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Errorf("heartbeat interval must be positive, got %s", c.HeartbeatInterval))
	}
	if c.HeartbeatTimeout <= 0 {
		errs = append(errs, fmt.Errorf("heartbeat timeout must be positive, got %s", c.HeartbeatTimeout))
	}
	if c.HeartbeatInterval > 0 && c.HeartbeatTimeout <= c.HeartbeatInterval {
		errs = append(errs, fmt.Errorf("heartbeat timeout %s must exceed the interval %s", c.HeartbeatTimeout, c.HeartbeatInterval))
	}
	if c.SocketProbe < 0 {
		errs = append(errs, fmt.Errorf("socket probe must not be negative, got %s", c.SocketProbe))
	}
	if c.SendQueue <= 0 {
		errs = append(errs, fmt.Errorf("send queue must be positive, got %d", c.SendQueue))
	}
	if c.MaxFrame < 1024 {
		errs = append(errs, fmt.Errorf("max frame must be at least 1024 bytes, got %d", c.MaxFrame))
	}
	switch c.Store {
	case StoreDir, StorePebble:
		if c.DataDir == "" {
			errs = append(errs, fmt.Errorf("store %q needs a data directory", c.Store))
		}
	case StoreNone:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q (want %s, %s or %s)", c.Store, StoreDir, StorePebble, StoreNone))
	}
	if c.SocketAddr == "" && c.RPCAddr == "" && c.HTTPPort < 0 && len(c.RelayServers) == 0 {
		errs = append(errs, errors.New("every listener is disabled"))
	}
	return errors.Join(errs...)
}

// Socket returns the options of the stream socket transport.
func (c Config) Socket() transport.SocketOptions {
	return transport.SocketOptions{SendQueue: c.SendQueue, MaxFrame: c.MaxFrame, ProbeInterval: c.SocketProbe}
}

// Liveness returns the heartbeat settings for both ends of a connection.
func (c Config) Liveness() liveness.Config {
	return liveness.Config{Interval: c.HeartbeatInterval, Timeout: c.HeartbeatTimeout}
}
