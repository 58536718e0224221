// Package deepgram synthesizes speech through Deepgram's speak websocket.
package deepgram

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/koscakluka/ema-sense/core/texttospeech/deepgram"

var (
	tracer = otel.Tracer(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

const defaultURL = "wss://api.deepgram.com/v1/speak"

type Voice string

const (
	VoiceThalia    Voice = "aura-2-thalia-en"
	VoiceAndromeda Voice = "aura-2-andromeda-en"
	VoiceApollo    Voice = "aura-2-apollo-en"
	VoiceArcas     Voice = "aura-2-arcas-en"
	VoiceOrion     Voice = "aura-2-orion-en"

	DefaultVoice = VoiceOrion
)

func AvailableVoices() []Voice {
	return []Voice{VoiceThalia, VoiceAndromeda, VoiceApollo, VoiceArcas, VoiceOrion}
}

var (
	ErrMissingAPIKey = errors.New("deepgram api key is not set")
	ErrInvalidVoice  = errors.New("invalid voice")
)

type TextToSpeechClient struct {
	apiKey string
	url    string
	voice  Voice
	dialer *websocket.Dialer
}

type ClientOption func(*TextToSpeechClient)

func WithURL(url string) ClientOption {
	return func(c *TextToSpeechClient) {
		if url != "" {
			c.url = url
		}
	}
}

func WithVoice(voice Voice) ClientOption {
	return func(c *TextToSpeechClient) {
		c.voice = voice
	}
}

func NewTextToSpeechClient(apiKey string, opts ...ClientOption) (*TextToSpeechClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	client := &TextToSpeechClient{
		apiKey: apiKey,
		url:    defaultURL,
		voice:  DefaultVoice,
		dialer: websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(client)
	}

	if !slices.Contains(AvailableVoices(), client.voice) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidVoice, client.voice)
	}
	return client, nil
}

func (c *TextToSpeechClient) Voice() Voice {
	return c.voice
}
