package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-sense/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
)

const closeTimeout = 2 * time.Second

type controlMessage struct {
	Type string `json:"type"`
}

// Transcribe opens the websocket and starts reporting transcripts. Audio is
// fed with SendAudio; Close ends the stream.
func (c *TranscriptionClient) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	ctx, span := tracer.Start(ctx, "open transcription stream")
	defer span.End()

	options := speechtotext.NewTranscriptionOptions(opts...)
	if err := checkEncoding(options.EncodingInfo); err != nil {
		span.RecordError(err)
		return fmt.Errorf("invalid encoding: %w", err)
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		return ErrAlreadyStreaming
	}

	listenURL, err := c.listenURL(options)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.String("request.model", c.model))

	conn, _, err := c.dialer.DialContext(ctx, listenURL, http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.conn = conn
	c.done = make(chan struct{})
	c.stop = cancel
	c.lastAudio.Store(time.Now().UnixNano())

	go c.keepAlive(streamCtx, options)
	go c.readMessages(streamCtx, conn, newTranscript(options), c.done)

	logger.InfoContext(ctx, "transcription stream opened", "model", c.model, "sample_rate", options.EncodingInfo.SampleRate)
	return nil
}

func (c *TranscriptionClient) listenURL(options speechtotext.TranscriptionOptions) (string, error) {
	listenURL, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("invalid listen url: %w", err)
	}

	wantsSpeechEnd := options.TranscriptionCallback != nil || options.SpeechEndedCallback != nil

	query := listenURL.Query()
	query.Set("encoding", options.EncodingInfo.Format.Name())
	query.Set("sample_rate", strconv.Itoa(options.EncodingInfo.SampleRate))
	query.Set("channels", "1")
	query.Set("model", c.model)
	query.Set("language", c.language)
	query.Set("smart_format", "true")
	query.Set("endpointing", "300")
	if wantsSpeechEnd {
		query.Set("utterance_end_ms", "1000")
	}
	if wantsSpeechEnd || options.InterimTranscriptionCallback != nil {
		query.Set("interim_results", "true")
	}
	if wantsSpeechEnd || options.SpeechStartedCallback != nil {
		query.Set("vad_events", "true")
	}
	listenURL.RawQuery = query.Encode()

	return listenURL.String(), nil
}

func (c *TranscriptionClient) SendAudio(audio []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return ErrNotTranscribing
	}
	c.lastAudio.Store(time.Now().UnixNano())
	if err := c.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (c *TranscriptionClient) writeControl(messageType string) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return ErrNotTranscribing
	}
	return c.conn.WriteJSON(controlMessage{Type: messageType})
}

func (c *TranscriptionClient) writeSilence(audio []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return ErrNotTranscribing
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, audio)
}

// Close asks Deepgram to flush what it has, waits briefly for the final
// results and closes the connection. Closing a client that is not
// transcribing is a no-op.
func (c *TranscriptionClient) Close() error {
	c.connMu.Lock()
	conn, done, stop := c.conn, c.done, c.stop
	c.connMu.Unlock()
	if conn == nil {
		return nil
	}

	if err := c.writeControl(string(api.TypeCloseStreamResponse)); err != nil {
		logger.Warn("failed to request stream close", "error", err)
	}

	select {
	case <-done:
	case <-time.After(closeTimeout):
		logger.Warn("deepgram did not close the stream in time")
	}
	stop()

	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.conn = nil
	if err := conn.Close(); err != nil && !isNormalClose(err) {
		return fmt.Errorf("failed to close deepgram connection: %w", err)
	}
	return nil
}

func (c *TranscriptionClient) readMessages(ctx context.Context, conn *websocket.Conn, t *transcript, done chan struct{}) {
	defer close(done)

	for ctx.Err() == nil {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if !isNormalClose(err) && ctx.Err() == nil {
				logger.WarnContext(ctx, "failed to read deepgram websocket message", "error", err)
			}
			return
		}
		if messageType == websocket.BinaryMessage {
			continue
		}
		if err := t.handle(message); err != nil {
			logger.WarnContext(ctx, "failed to process deepgram message", "error", err)
		}
	}
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure) ||
		errors.Is(err, websocket.ErrCloseSent) ||
		errors.Is(err, net.ErrClosed)
}
