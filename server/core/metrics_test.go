package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleMetrics(t *testing.T) {
	m := &Metrics{}
	m.Ticks.Add(4)
	m.TotalTickNs.Add(8_000_000)
	m.Joins.Add(1)

	rec := httptest.NewRecorder()
	m.HandleMetrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	var got map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["tick_count"] != float64(4) || got["avg_tick_ms"] != float64(2) || got["joins"] != float64(1) {
		t.Fatalf("metrics = %v", got)
	}

	rec = httptest.NewRecorder()
	m.HandleMetrics(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST status = %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
