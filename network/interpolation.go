package network

import (
	"time"

	"github.com/tanema/gween/ease"
)

// SnapshotSample is one received position of a remote entity.
type SnapshotSample struct {
	ServerTick uint32
	ReceivedAt time.Time
	X, Y       float32
}

// SnapshotBuffer holds the most recent samples of one remote entity and
// renders it slightly in the past. Brackets are chosen by receive time, not
// server tick, so reordered snapshots only cause jitter.
type SnapshotBuffer struct {
	samples  []SnapshotSample
	capacity int
	blend    ease.TweenFunc
}

// NewSnapshotBuffer creates a buffer keeping at most capacity samples,
// blending linearly.
func NewSnapshotBuffer(capacity int) *SnapshotBuffer {
	if capacity < 2 {
		capacity = 2
	}
	return &SnapshotBuffer{
		samples:  make([]SnapshotSample, 0, capacity),
		capacity: capacity,
		blend:    ease.Linear,
	}
}

// SetBlend replaces the blend function. It must map t=0 to the older sample
// and t=1 to the newer one.
func (b *SnapshotBuffer) SetBlend(fn ease.TweenFunc) {
	if fn != nil {
		b.blend = fn
	}
}

// Push appends a sample, evicting the oldest when full.
func (b *SnapshotBuffer) Push(s SnapshotSample) {
	if len(b.samples) == b.capacity {
		copy(b.samples, b.samples[1:])
		b.samples = b.samples[:len(b.samples)-1]
	}
	b.samples = append(b.samples, s)
}

// Len returns the number of buffered samples.
func (b *SnapshotBuffer) Len() int {
	return len(b.samples)
}

// Latest returns the most recently pushed sample.
func (b *SnapshotBuffer) Latest() (SnapshotSample, bool) {
	if len(b.samples) == 0 {
		return SnapshotSample{}, false
	}
	return b.samples[len(b.samples)-1], true
}

// Sample returns the render position at target (now minus the interpolation
// delay). Samples older than the active bracket are discarded. With a single
// sample it is returned as-is; nothing is extrapolated.
func (b *SnapshotBuffer) Sample(target time.Time) (x, y float32, ok bool) {
	drop := 0
	for len(b.samples)-drop >= 2 && !b.samples[drop+1].ReceivedAt.After(target) {
		drop++
	}
	if drop > 0 {
		n := copy(b.samples, b.samples[drop:])
		b.samples = b.samples[:n]
	}

	switch len(b.samples) {
	case 0:
		return 0, 0, false
	case 1:
		return b.samples[0].X, b.samples[0].Y, true
	}

	older, newer := b.samples[0], b.samples[1]
	t := float32(1)
	if span := newer.ReceivedAt.Sub(older.ReceivedAt); span > 0 {
		t = clamp01(float32(target.Sub(older.ReceivedAt)) / float32(span))
	}
	x = b.blend(t, older.X, newer.X-older.X, 1)
	y = b.blend(t, older.Y, newer.Y-older.Y, 1)
	return x, y, true
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
