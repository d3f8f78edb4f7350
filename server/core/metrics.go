package core

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics are the server's runtime counters. Written by the game loop and
// the listeners, read by the HTTP handlers.
type Metrics struct {
	Ticks              atomic.Int64
	TotalTickNs        atomic.Int64
	Datagrams          atomic.Int64
	Malformed          atomic.Int64
	InboundDropped     atomic.Int64 // listener queue full
	InputsApplied      atomic.Int64
	InputsStale        atomic.Int64 // sequence at or below the last processed one
	InputsOverflow     atomic.Int64 // per-session input queue full
	SnapshotsSent      atomic.Int64
	SnapshotErrors     atomic.Int64
	SnapshotFailStreak atomic.Int64 // consecutive broadcasts that could not encode
	SendErrors         atomic.Int64
	Joins              atomic.Int64
	Rejected           atomic.Int64 // version mismatch or server full
	Timeouts           atomic.Int64
	Disconnects        atomic.Int64
	Sessions           atomic.Int64
}

// Snapshot returns a read-only copy for HTTP output.
func (m *Metrics) Snapshot() map[string]any {
	ticks := m.Ticks.Load()
	var avgMs float64
	if ticks > 0 {
		avgMs = float64(m.TotalTickNs.Load()) / float64(ticks) / 1e6
	}
	return map[string]any{
		"tick_count":       ticks,
		"avg_tick_ms":      avgMs,
		"datagrams":        m.Datagrams.Load(),
		"malformed":        m.Malformed.Load(),
		"inbound_dropped":  m.InboundDropped.Load(),
		"inputs_applied":   m.InputsApplied.Load(),
		"inputs_stale":     m.InputsStale.Load(),
		"inputs_overflow":  m.InputsOverflow.Load(),
		"snapshots_sent":   m.SnapshotsSent.Load(),
		"snapshot_errors":  m.SnapshotErrors.Load(),
		"snapshot_failing": m.SnapshotFailStreak.Load(),
		"send_errors":      m.SendErrors.Load(),
		"joins":            m.Joins.Load(),
		"rejected":         m.Rejected.Load(),
		"timeouts":         m.Timeouts.Load(),
		"disconnects":      m.Disconnects.Load(),
		"sessions":         m.Sessions.Load(),
	}
}

// HandleMetrics serves the counters as JSON.
func (m *Metrics) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Snapshot())
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
}
