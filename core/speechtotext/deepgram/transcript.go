package deepgram

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/koscakluka/ema-sense/core/speechtotext"
)

// transcript assembles Deepgram results into utterances. It is driven by a
// single reader goroutine.
type transcript struct {
	options speechtotext.TranscriptionOptions

	accumulated    []string
	unendedSegment bool
}

func newTranscript(options speechtotext.TranscriptionOptions) *transcript {
	return &transcript{options: options}
}

func (t *transcript) handle(message []byte) error {
	var envelope controlMessage
	if err := json.Unmarshal(message, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal deepgram message: %w", err)
	}

	switch api.TypeResponse(envelope.Type) {
	case api.TypeMessageResponse:
		var result api.MessageResponse
		if err := json.Unmarshal(message, &result); err != nil {
			return fmt.Errorf("failed to unmarshal deepgram result: %w", err)
		}
		t.onResult(result)

	case api.TypeSpeechStartedResponse:
		t.unendedSegment = true
		if t.options.SpeechStartedCallback != nil {
			t.options.SpeechStartedCallback()
		}

	case api.TypeUtteranceEndResponse:
		if t.unendedSegment || len(t.accumulated) > 0 {
			t.onSpeechEnded()
		}
	}
	return nil
}

func (t *transcript) onResult(result api.MessageResponse) {
	var text string
	if len(result.Channel.Alternatives) > 0 {
		text = strings.TrimSpace(result.Channel.Alternatives[0].Transcript)
	}

	if !result.IsFinal {
		if text != "" && t.options.InterimTranscriptionCallback != nil {
			interim := append(slices.Clone(t.accumulated), text)
			t.options.InterimTranscriptionCallback(strings.Join(interim, " "))
		}
		return
	}

	if text != "" {
		t.accumulated = append(t.accumulated, text)
		t.unendedSegment = true
		if t.options.PartialTranscriptionCallback != nil {
			t.options.PartialTranscriptionCallback(text)
		}
	}
	if result.SpeechFinal {
		t.onSpeechEnded()
	}
}

func (t *transcript) onSpeechEnded() {
	t.unendedSegment = false
	utterance := strings.Join(t.accumulated, " ")
	t.accumulated = nil

	if utterance != "" && t.options.TranscriptionCallback != nil {
		t.options.TranscriptionCallback(utterance)
	}
	if t.options.SpeechEndedCallback != nil {
		t.options.SpeechEndedCallback()
	}
}
