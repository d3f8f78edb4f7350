package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// GameLoop owns the world and all sessions. Inbound packets and ticks are
// serialized through one goroutine.
type GameLoop struct {
	server   *Server
	tickRate int
}

func NewGameLoop(server *Server, tickRate int) *GameLoop {
	return &GameLoop{server: server, tickRate: tickRate}
}

// Run processes packets and ticks until ctx is done.
func (g *GameLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(g.tickRate))
	defer ticker.Stop()

	log := g.server.log.Named("loop")
	log.Info("game loop started", zap.Int("ticksPerSecond", g.tickRate))

	for {
		select {
		case <-ctx.Done():
			g.server.shutdown()
			log.Info("game loop stopped")
			return nil
		case pkt := <-g.server.inbound:
			g.server.handle(pkt, time.Now())
		case now := <-ticker.C:
			start := time.Now()
			g.server.step(now)
			g.server.metrics.Ticks.Add(1)
			g.server.metrics.TotalTickNs.Add(time.Since(start).Nanoseconds())
		}
	}
}
