package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return epoch.Add(time.Duration(seconds * float64(time.Second)))
}

func TestGateInclusiveBoundary(t *testing.T) {
	gate := NewGate()

	testCases := []struct {
		at       float64
		expected bool
	}{
		{at: 0, expected: true},
		{at: 2, expected: false},
		{at: 5, expected: true},
		{at: 6, expected: false},
		{at: 10, expected: true},
	}

	for _, testCase := range testCases {
		assert.Equal(t, testCase.expected, gate.Allow("presence", at(testCase.at), 5*time.Second), "t=%v", testCase.at)
	}
}

func TestRejectedSignalDoesNotMoveWindow(t *testing.T) {
	gate := NewGate()

	require.True(t, gate.Allow("presence", at(0), 5*time.Second))
	require.False(t, gate.Allow("presence", at(4.9), 5*time.Second))

	last, ok := gate.Last("presence")
	require.True(t, ok)
	assert.Equal(t, at(0), last)
	assert.True(t, gate.Allow("presence", at(5), 5*time.Second))
}

func TestKeysAreIndependent(t *testing.T) {
	gate := NewGate()

	assert.True(t, gate.Allow("presence", at(0), 5*time.Second))
	assert.True(t, gate.Allow("emotion", at(1), 3*time.Second))
	assert.False(t, gate.Allow("presence", at(1), 5*time.Second))
	assert.True(t, gate.Allow("emotion", at(4), 3*time.Second))
}

func TestResetForgetsKey(t *testing.T) {
	gate := NewGate()

	require.True(t, gate.Allow("presence", at(0), 5*time.Second))
	gate.Reset("presence")

	_, ok := gate.Last("presence")
	assert.False(t, ok)
	assert.True(t, gate.Allow("presence", at(1), 5*time.Second))
}

func TestZeroValueGateIsUsable(t *testing.T) {
	var gate Gate
	assert.True(t, gate.Allow("presence", at(0), time.Second))
	assert.False(t, gate.Allow("presence", at(0.5), time.Second))
}

func TestThresholdComposesWithGate(t *testing.T) {
	gate := NewGate()
	emit := func(score float64, seconds float64) bool {
		return Threshold(score, 0.4) && gate.Allow("emotion", at(seconds), 3*time.Second)
	}

	assert.False(t, emit(0.3, 0))
	assert.False(t, emit(0.3, 100))
	assert.False(t, emit(0.4, 200))
	assert.True(t, emit(0.5, 300))
	assert.False(t, emit(0.5, 301))
	assert.False(t, emit(0.3, 304))
	assert.True(t, emit(0.5, 303))
}

func TestSyncGateAcceptsOncePerWindowAcrossGoroutines(t *testing.T) {
	gate := NewSyncGate()

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if gate.Allow("presence", at(0), 5*time.Second) {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	last, ok := gate.Last("presence")
	require.True(t, ok)
	assert.Equal(t, at(0), last)

	gate.Reset("presence")
	assert.True(t, gate.Allow("presence", at(1), 5*time.Second))
}
