package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadClientDefaults(t *testing.T) {
	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.Transport != TransportUDP || cfg.ServerAddr != "127.0.0.1:7373" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.InterpolationDelay != 100*time.Millisecond || !cfg.ShowHUD {
		t.Fatalf("cfg = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadClientFromEnv(t *testing.T) {
	t.Setenv("DOOMERANG_TRANSPORT", "ws")
	t.Setenv("DOOMERANG_WS_URL", "ws://example.test/ws")
	t.Setenv("DOOMERANG_INTERP_DELAY", "150ms")
	t.Setenv("DOOMERANG_HUD", "false")

	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.Transport != TransportWebSocket || cfg.WebSocketURL != "ws://example.test/ws" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.InterpolationDelay != 150*time.Millisecond || cfg.ShowHUD {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadServerRejectsBadDuration(t *testing.T) {
	t.Setenv("DOOMERANG_SESSION_TIMEOUT", "soon")
	if _, err := LoadServer(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestClientValidate(t *testing.T) {
	base, err := LoadClient()
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name   string
		mutate func(*ClientConfig)
	}{
		{"unknown transport", func(c *ClientConfig) { c.Transport = "carrier-pigeon" }},
		{"missing udp address", func(c *ClientConfig) { c.ServerAddr = "" }},
		{"missing ws url", func(c *ClientConfig) {
			c.Transport = TransportWebSocket
			c.WebSocketURL = ""
		}},
		{"negative delay", func(c *ClientConfig) { c.InterpolationDelay = -time.Millisecond }},
		{"huge delay", func(c *ClientConfig) { c.InterpolationDelay = 2 * time.Second }},
		{"zero scale", func(c *ClientConfig) { c.WindowScale = 0 }},
	}
	for _, tc := range cases {
		cfg := base
		tc.mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: Validate = %v", tc.name, err)
		}
	}
}

func TestServerValidate(t *testing.T) {
	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	bad := cfg
	bad.NPCCount = -1
	if err := bad.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("negative npcs: %v", err)
	}
	bad = cfg
	bad.UDPAddr, bad.HTTPAddr = "", ""
	if err := bad.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("no listeners: %v", err)
	}
	bad = cfg
	bad.MaxPlayers, bad.NPCCount = 32, 40
	if err := bad.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("world larger than one snapshot: %v", err)
	}
	bad = cfg
	bad.SessionTimeout = 0
	if err := bad.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("zero timeout: %v", err)
	}
}
