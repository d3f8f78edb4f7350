package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/automoto/doomerang-netsync/config"
	"github.com/automoto/doomerang-netsync/logging"
	"github.com/automoto/doomerang-netsync/network"
	"github.com/automoto/doomerang-netsync/scenes"
	"github.com/automoto/doomerang-netsync/shared/messages"
	"github.com/hajimehoshi/ebiten/v2"
	"go.uber.org/zap"
)

type Game struct {
	scene  *scenes.NetworkedScene
	render *frameRenderer
	errc   <-chan error
}

func (g *Game) Update() error {
	if ebiten.IsKeyPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	select {
	case err := <-g.errc:
		if err != nil {
			return err
		}
		return ebiten.Termination
	default:
	}
	g.scene.Update()
	if g.scene.Done() {
		return ebiten.Termination
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	g.scene.Render()
	g.render.Draw(screen)
}

func (g *Game) Layout(_, _ int) (int, int) {
	return screenWidth, screenHeight
}

func dial(ctx context.Context, cfg config.ClientConfig) (network.Transport, string, error) {
	if cfg.Transport == config.TransportWebSocket {
		ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		t, err := network.DialWebSocket(ctx, cfg.WebSocketURL)
		if err != nil {
			return nil, "", err
		}
		return t, cfg.WebSocketURL, nil
	}
	t, err := network.DialUDP(cfg.ServerAddr)
	if err != nil {
		return nil, "", err
	}
	return t, cfg.ServerAddr, nil
}

// loadProfile reads the saved profile and records the server about to be used.
func loadProfile(cfg config.ClientConfig, server string, log *zap.Logger) config.Profile {
	store, err := config.OpenProfileStore(cfg.ProfileApp)
	if err != nil {
		log.Warn("profile storage unavailable", zap.Error(err))
		p := config.DefaultProfile()
		if cfg.Character != "" {
			p.CharacterName = cfg.Character
		}
		return p
	}
	p, err := store.Load()
	if err != nil {
		log.Warn("could not load profile", zap.Error(err))
		p = config.DefaultProfile()
	}
	if cfg.Character != "" {
		p.CharacterName = cfg.Character
	}
	p.LastServer = server
	if err := store.Save(p); err != nil {
		log.Warn("could not save profile", zap.Error(err))
	}
	return p
}

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	flag.StringVar(&cfg.ServerAddr, "server", cfg.ServerAddr, "UDP server address")
	flag.StringVar(&cfg.Transport, "transport", cfg.Transport, "udp or ws")
	flag.StringVar(&cfg.WebSocketURL, "ws", cfg.WebSocketURL, "WebSocket server URL")
	flag.StringVar(&cfg.Character, "name", cfg.Character, "Character name")
	flag.BoolVar(&cfg.ShowHUD, "hud", cfg.ShowHUD, "Show the network overlay")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport, server, err := dial(ctx, cfg)
	if err != nil {
		logger.Fatal("connect", zap.String("transport", cfg.Transport), zap.Error(err))
	}
	profile := loadProfile(cfg, server, logger)

	client := network.NewClient(transport, logger)
	errc := make(chan error, 1)
	go func() { errc <- client.Run(ctx) }()

	renderer := &frameRenderer{showHUD: cfg.ShowHUD}
	scene := scenes.NewNetworkedScene(client, &deviceInput{}, scenes.SystemClock{}, renderer, scenes.SceneConfig{
		Join:               profile.JoinRequest(),
		Nonce:              rand.Uint32(),
		InterpolationDelay: cfg.InterpolationDelay,
	}, logger)

	ebiten.SetWindowSize(screenWidth*cfg.WindowScale, screenHeight*cfg.WindowScale)
	ebiten.SetWindowTitle("Doomerang")

	logger.Info("connecting",
		zap.String("transport", cfg.Transport),
		zap.String("server", server),
		zap.String("character", profile.CharacterName))
	err = ebiten.RunGame(&Game{scene: scene, render: renderer, errc: errc})
	client.Close(messages.ReasonClientQuit)
	cancel()
	if err != nil && !errors.Is(err, network.ErrClosed) {
		logger.Error("game stopped", zap.Error(err))
	}
}
