// Package deepgram streams microphone audio to Deepgram's live transcription
// websocket and reports transcripts through speechtotext callbacks.
package deepgram

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

const (
	defaultURL      = "wss://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
	defaultLanguage = "en-US"
)

var (
	ErrMissingAPIKey    = errors.New("deepgram api key is not set")
	ErrNotTranscribing  = errors.New("transcription is not running")
	ErrAlreadyStreaming = errors.New("transcription already running")
)

type TranscriptionClient struct {
	apiKey   string
	url      string
	model    string
	language string
	dialer   *websocket.Dialer

	connMu sync.Mutex
	conn   *websocket.Conn
	done   chan struct{}
	stop   func()

	lastAudio atomic.Int64
}

type ClientOption func(*TranscriptionClient)

func WithURL(url string) ClientOption {
	return func(c *TranscriptionClient) {
		if url != "" {
			c.url = url
		}
	}
}

func WithModel(model string) ClientOption {
	return func(c *TranscriptionClient) {
		if model != "" {
			c.model = model
		}
	}
}

func WithLanguage(language string) ClientOption {
	return func(c *TranscriptionClient) {
		if language != "" {
			c.language = language
		}
	}
}

func NewTranscriptionClient(apiKey string, opts ...ClientOption) (*TranscriptionClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	c := &TranscriptionClient{
		apiKey:   apiKey,
		url:      defaultURL,
		model:    defaultModel,
		language: defaultLanguage,
		dialer:   websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}
