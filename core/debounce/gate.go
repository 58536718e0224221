// Package debounce turns high-frequency signals into sparse events.
//
// A Gate remembers, per key, when it last let a signal through and rejects
// anything arriving sooner than the requested interval after that. Keys are
// independent: a "presence" cooldown never delays an "emotion" one.
package debounce

import (
	"sync"
	"time"
)

// Gate is a per-key cooldown filter. It is not safe for concurrent use and
// is meant to be owned by a single producer goroutine; share a SyncGate
// instead.
type Gate struct {
	last map[string]time.Time
}

func NewGate() *Gate {
	return &Gate{last: map[string]time.Time{}}
}

// Allow reports whether a signal for key at now passes the gate. It passes
// when key was never accepted or at least minInterval has elapsed since the
// last accepted signal; only then is now recorded.
func (g *Gate) Allow(key string, now time.Time, minInterval time.Duration) bool {
	if g.last == nil {
		g.last = map[string]time.Time{}
	}

	if last, ok := g.last[key]; ok && now.Sub(last) < minInterval {
		return false
	}

	g.last[key] = now
	return true
}

// Last returns the last accepted time for key.
func (g *Gate) Last(key string) (time.Time, bool) {
	last, ok := g.last[key]
	return last, ok
}

// Reset forgets key so the next signal passes.
func (g *Gate) Reset(key string) {
	delete(g.last, key)
}

// SyncGate is a Gate guarded for use from several goroutines.
type SyncGate struct {
	mu   sync.Mutex
	gate Gate
}

func NewSyncGate() *SyncGate {
	return &SyncGate{gate: Gate{last: map[string]time.Time{}}}
}

func (g *SyncGate) Allow(key string, now time.Time, minInterval time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gate.Allow(key, now, minInterval)
}

func (g *SyncGate) Last(key string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gate.Last(key)
}

func (g *SyncGate) Reset(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gate.Reset(key)
}

// Threshold reports whether score is strictly above minimum.
func Threshold(score, minimum float64) bool {
	return score > minimum
}
