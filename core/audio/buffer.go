package audio

import (
	"context"
	"sync"
)

// PlaybackBuffer queues audio for a device callback and tracks marks, points
// in the queued stream that fire once everything before them has been read.
type PlaybackBuffer struct {
	mu    sync.Mutex
	audio []byte
	marks []playbackMark
}

type playbackMark struct {
	position int
	reached  chan struct{}
}

func (b *PlaybackBuffer) Write(audio []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.audio = append(b.audio, audio...)
}

// Read fills out with queued audio and returns how many bytes were copied.
// The rest of out is left untouched.
func (b *PlaybackBuffer) Read(out []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := copy(out, b.audio)
	b.audio = b.audio[n:]
	if len(b.audio) == 0 {
		b.audio = nil
	}
	b.advanceMarks(n)
	return n
}

func (b *PlaybackBuffer) advanceMarks(consumed int) {
	passed := 0
	for i := range b.marks {
		b.marks[i].position -= consumed
		if b.marks[i].position <= 0 {
			close(b.marks[i].reached)
			passed++
		}
	}
	// Marks are appended in position order, so the passed ones are a prefix.
	b.marks = b.marks[passed:]
}

// Mark returns a channel closed once everything written so far has been read.
func (b *PlaybackBuffer) Mark() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	reached := make(chan struct{})
	if len(b.audio) == 0 {
		close(reached)
		return reached
	}
	b.marks = append(b.marks, playbackMark{position: len(b.audio), reached: reached})
	return reached
}

// AwaitMark blocks until the audio written so far has been read or ctx ends.
func (b *PlaybackBuffer) AwaitMark(ctx context.Context) error {
	select {
	case <-b.Mark():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clear drops queued audio. Pending marks are released.
func (b *PlaybackBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.audio = nil
	for _, mark := range b.marks {
		close(mark.reached)
	}
	b.marks = nil
}

func (b *PlaybackBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.audio)
}
