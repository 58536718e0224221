package deepgram

import (
	"context"
	"time"

	"github.com/koscakluka/ema-sense/core/speechtotext"
)

const (
	silenceChunk      = 50 * time.Millisecond
	silenceAfterAudio = 50 * time.Millisecond
	silenceWindow     = time.Second
	keepAliveInterval = 5 * time.Second

	keepAliveMessage = "KeepAlive"
)

// keepAlive fills short gaps in the audio with silence so endpointing still
// fires, then falls back to KeepAlive messages so the socket is not closed
// for inactivity.
func (c *TranscriptionClient) keepAlive(ctx context.Context, options speechtotext.TranscriptionOptions) {
	ticker := time.NewTicker(silenceChunk)
	defer ticker.Stop()

	silence := options.EncodingInfo.Silence(silenceChunk)
	var lastKeepAlive time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			idle := now.Sub(time.Unix(0, c.lastAudio.Load()))
			switch {
			case idle < silenceAfterAudio:
				lastKeepAlive = time.Time{}
			case idle < silenceAfterAudio+silenceWindow:
				if err := c.writeSilence(silence); err != nil {
					logger.DebugContext(ctx, "failed to send silence", "error", err)
				}
			case now.Sub(lastKeepAlive) >= keepAliveInterval:
				lastKeepAlive = now
				if err := c.writeControl(keepAliveMessage); err != nil {
					logger.DebugContext(ctx, "failed to send keepalive", "error", err)
				}
			}
		}
	}
}
