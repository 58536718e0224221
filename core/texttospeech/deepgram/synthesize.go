package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-sense/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type websocketMessage struct {
	Type string `json:"type"`
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	clearMsg = websocketMessage{Type: "Clear"}
	closeMsg = websocketMessage{Type: "Close"}
)

func sendTextMsg(text string) speakMessage {
	return speakMessage{Type: "Speak", Text: text}
}

var errStreamClosed = errors.New("speak stream closed before flush")

// Synthesize speaks text and hands every audio chunk to onAudio as it
// arrives. It returns once Deepgram confirms the text is flushed, or with
// ctx.Err() when ctx ends first.
func (c *TextToSpeechClient) Synthesize(ctx context.Context, text string, onAudio func([]byte), opts ...texttospeech.SynthesisOption) error {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.voice", string(c.voice)),
		attribute.Int("request.text_length", len(text)),
	)

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	options := texttospeech.NewSynthesisOptions(opts...)

	conn, err := c.connect(ctx, options)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(sendTextMsg(text)); err != nil {
		return fmt.Errorf("failed to send text to deepgram: %w", err)
	}
	if err := conn.WriteJSON(flushMsg); err != nil {
		return fmt.Errorf("failed to flush deepgram buffer: %w", err)
	}

	result := make(chan error, 1)
	go func() {
		result <- readUntilFlushed(conn, onAudio)
	}()

	var audioErr error
	select {
	case audioErr = <-result:
	case <-ctx.Done():
		_ = conn.WriteJSON(clearMsg)
		_ = conn.WriteJSON(closeMsg)
		conn.Close()
		<-result
		return ctx.Err()
	}

	if audioErr != nil {
		span.RecordError(audioErr)
		span.SetStatus(codes.Error, audioErr.Error())
		return audioErr
	}

	if options.MarkCallback != nil {
		options.MarkCallback(text)
	}
	if err := conn.WriteJSON(closeMsg); err != nil {
		logger.DebugContext(ctx, "failed to close speak stream", "error", err)
	}
	return nil
}

func (c *TextToSpeechClient) connect(ctx context.Context, options texttospeech.SynthesisOptions) (*websocket.Conn, error) {
	speakURL, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("invalid speak url: %w", err)
	}

	query := speakURL.Query()
	query.Set("encoding", options.EncodingInfo.Format.Name())
	query.Set("sample_rate", strconv.Itoa(options.EncodingInfo.SampleRate))
	query.Set("model", string(c.voice))
	query.Set("container", "none")
	speakURL.RawQuery = query.Encode()

	conn, _, err := c.dialer.DialContext(ctx, speakURL.String(), http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

func readUntilFlushed(conn *websocket.Conn, onAudio func([]byte)) error {
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errStreamClosed
			}
			return fmt.Errorf("failed to read speak stream: %w", err)
		}

		switch messageType {
		case websocket.BinaryMessage:
			if onAudio != nil {
				onAudio(message)
			}
		case websocket.TextMessage:
			var parsed struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			}
			if err := json.Unmarshal(message, &parsed); err != nil {
				logger.Debug("skipping malformed speak message", "error", err)
				continue
			}
			switch parsed.Type {
			case "Flushed":
				return nil
			case "Warning", "Error":
				logger.Warn("deepgram speak message", "type", parsed.Type, "description", parsed.Description)
				if parsed.Type == "Error" {
					return fmt.Errorf("deepgram speak error: %s", parsed.Description)
				}
			}
		}
	}
}
