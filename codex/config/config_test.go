package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	c, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatal(err)
	}
	if c.SocketAddr != ":50001" || c.RPCAddr != ":50002" || c.HTTPPort != 8080 {
		t.Fatalf("listeners = %q %q %d", c.SocketAddr, c.RPCAddr, c.HTTPPort)
	}
	if c.HeartbeatInterval != 2*time.Second || c.HeartbeatTimeout != 5*time.Second {
		t.Fatalf("heartbeat = %s/%s", c.HeartbeatInterval, c.HeartbeatTimeout)
	}
	if c.Store != StoreDir || !c.AutoSave || c.MaxFrame != 1<<20 || c.SendQueue != 64 {
		t.Fatalf("defaults = %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	lc := c.Liveness()
	if lc.Interval != 2*time.Second || lc.Timeout != 5*time.Second {
		t.Fatalf("liveness = %+v", lc)
	}
	so := c.Socket()
	if so.ProbeInterval != time.Second || so.SendQueue != 64 || so.MaxFrame != 1<<20 {
		t.Fatalf("socket = %+v", so)
	}
}

func TestOverrides(t *testing.T) {
	c, err := LoadFrom(map[string]string{
		"CODEX_HEARTBEAT_INTERVAL": "250ms",
		"CODEX_SOCKET_PROBE":       "0s",
		"CODEX_STORE":              "pebble",
		"CODEX_RELAY":              "https://a.example,https://b.example",
		"CODEX_SEED":               "7",
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.HeartbeatInterval != 250*time.Millisecond || c.Store != StorePebble || c.Seed != 7 {
		t.Fatalf("overrides = %+v", c)
	}
	if c.Socket().ProbeInterval != 0 {
		t.Fatalf("overrides = %+v", c)
	}
	if !reflect.DeepEqual(c.RelayServers, []string{"https://a.example", "https://b.example"}) {
		t.Fatalf("relays = %v", c.RelayServers)
	}
}

func TestParseError(t *testing.T) {
	_, err := LoadFrom(map[string]string{"CODEX_SEND_QUEUE": "many"})
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	base, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"interval", func(c *Config) { c.HeartbeatInterval = 0 }, "heartbeat interval"},
		{"timeout", func(c *Config) { c.HeartbeatTimeout = -time.Second }, "heartbeat timeout"},
		{"timeout equals interval", func(c *Config) { c.HeartbeatInterval, c.HeartbeatTimeout = 5*time.Second, 5*time.Second }, "must exceed the interval"},
		{"timeout below interval", func(c *Config) { c.HeartbeatTimeout = time.Second }, "must exceed the interval"},
		{"probe", func(c *Config) { c.SocketProbe = -time.Second }, "socket probe"},
		{"queue", func(c *Config) { c.SendQueue = 0 }, "send queue"},
		{"frame", func(c *Config) { c.MaxFrame = 10 }, "max frame"},
		{"store", func(c *Config) { c.Store = "s3" }, "unknown store"},
		{"data dir", func(c *Config) { c.DataDir = "" }, "data directory"},
		{"listeners", func(c *Config) { c.SocketAddr, c.RPCAddr, c.HTTPPort = "", "", -1 }, "every listener"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
	none := base
	none.Store, none.DataDir = StoreNone, ""
	if err := none.Validate(); err != nil {
		t.Fatalf("store none: %v", err)
	}
}
