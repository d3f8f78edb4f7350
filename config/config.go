// Package config holds the runtime configuration of the client and the
// reference server. Values come from the environment first; mains then
// apply command-line flags on top.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/automoto/doomerang-netsync/shared/netconfig"
	"github.com/automoto/doomerang-netsync/shared/protocol"
	"github.com/caarlos0/env/v11"
)

const (
	TransportUDP       = "udp"
	TransportWebSocket = "ws"
)

// ClientConfig configures the desktop client.
type ClientConfig struct {
	ServerAddr     string        `env:"DOOMERANG_SERVER_ADDR"     envDefault:"127.0.0.1:7373"`
	Transport      string        `env:"DOOMERANG_TRANSPORT"       envDefault:"udp"`
	WebSocketURL   string        `env:"DOOMERANG_WS_URL"          envDefault:"ws://127.0.0.1:7374/ws"`
	ConnectTimeout time.Duration `env:"DOOMERANG_CONNECT_TIMEOUT" envDefault:"5s"`

	InterpolationDelay time.Duration `env:"DOOMERANG_INTERP_DELAY" envDefault:"100ms"`
	ShowHUD            bool          `env:"DOOMERANG_HUD"          envDefault:"true"`
	WindowScale        int           `env:"DOOMERANG_WINDOW_SCALE" envDefault:"2"`

	Character  string `env:"DOOMERANG_CHARACTER"`
	ProfileApp string `env:"DOOMERANG_PROFILE_APP" envDefault:"doomerang-netsync"`

	LogLevel string `env:"DOOMERANG_LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"DOOMERANG_LOG_FILE"`
}

// ServerConfig configures the reference server.
type ServerConfig struct {
	UDPAddr  string `env:"DOOMERANG_UDP_ADDR"  envDefault:":7373"`
	HTTPAddr string `env:"DOOMERANG_HTTP_ADDR" envDefault:":7374"`
	MapPath  string `env:"DOOMERANG_MAP"`

	NPCCount       int           `env:"DOOMERANG_NPCS"            envDefault:"4"`
	SessionTimeout time.Duration `env:"DOOMERANG_SESSION_TIMEOUT" envDefault:"10s"`
	MaxPlayers     int           `env:"DOOMERANG_MAX_PLAYERS"     envDefault:"32"`

	LogLevel string `env:"DOOMERANG_LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"DOOMERANG_LOG_FILE"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadClient returns the client configuration from the environment.
func LoadClient() (ClientConfig, error) {
	var cfg ClientConfig
	if err := ParseEnv(&cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// LoadServer returns the server configuration from the environment.
func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	if err := ParseEnv(&cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

var ErrInvalid = errors.New("invalid config")

// Validate checks the client configuration.
func (c ClientConfig) Validate() error {
	switch c.Transport {
	case TransportUDP:
		if c.ServerAddr == "" {
			return fmt.Errorf("%w: server address is required for udp", ErrInvalid)
		}
	case TransportWebSocket:
		if c.WebSocketURL == "" {
			return fmt.Errorf("%w: websocket url is required for ws", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalid, c.Transport)
	}
	if c.InterpolationDelay < 0 || c.InterpolationDelay > time.Second {
		return fmt.Errorf("%w: interpolation delay %s out of range [0,1s]", ErrInvalid, c.InterpolationDelay)
	}
	if c.WindowScale < 1 {
		return fmt.Errorf("%w: window scale must be at least 1", ErrInvalid)
	}
	return nil
}

// Validate checks the server configuration.
func (c ServerConfig) Validate() error {
	if c.UDPAddr == "" && c.HTTPAddr == "" {
		return fmt.Errorf("%w: at least one listener is required", ErrInvalid)
	}
	if c.NPCCount < 0 {
		return fmt.Errorf("%w: npc count %d is negative", ErrInvalid, c.NPCCount)
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("%w: session timeout must be positive", ErrInvalid)
	}
	if c.MaxPlayers < 1 {
		return fmt.Errorf("%w: max players must be at least 1", ErrInvalid)
	}
	// Map loot is checked again by the server once the level is loaded.
	if size := protocol.SnapshotSize(c.MaxPlayers+c.NPCCount, c.MaxPlayers*netconfig.AbilitySlots); size > netconfig.MaxDatagramSize {
		return fmt.Errorf("%w: %d players and %d npcs need a %d byte snapshot, limit is %d",
			ErrInvalid, c.MaxPlayers, c.NPCCount, size, netconfig.MaxDatagramSize)
	}
	return nil
}
