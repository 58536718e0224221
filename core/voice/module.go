// Package voice turns microphone audio into voice command events. Capture
// feeds a streaming transcriber; every completed utterance becomes one
// sense.voice.command.
package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/koscakluka/ema-sense/core/audio"
	"github.com/koscakluka/ema-sense/core/dispatch"
	"github.com/koscakluka/ema-sense/core/events"
	"github.com/koscakluka/ema-sense/core/speechtotext"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

var logger = otelslog.NewLogger("github.com/koscakluka/ema-sense/core/voice")

type AudioInput interface {
	StartCapture(ctx context.Context, onAudio func([]byte)) error
	StopCapture() error
	EncodingInfo() audio.EncodingInfo
}

type SpeechToText interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
	Close() error
}

type Module struct {
	submitter dispatch.Submitter
	input     AudioInput
	stt       SpeechToText

	mu        sync.Mutex
	listening bool
}

func New(submitter dispatch.Submitter, input AudioInput, stt SpeechToText) *Module {
	return &Module{
		submitter: submitter,
		input:     input,
		stt:       stt,
	}
}

func (m *Module) Register(subscriber dispatch.Subscriber) {
	subscriber.Subscribe(events.KindSystemStartup, func(ctx context.Context, _ events.Event) error {
		return m.Start(ctx)
	}, dispatch.WithName("voice.start"))
	subscriber.Subscribe(events.KindSystemShutdown, func(context.Context, events.Event) error {
		return m.Stop()
	}, dispatch.WithName("voice.stop"))
}

// Start opens the transcription stream and begins capture. Both outlive ctx
// cancellation; Stop ends them.
func (m *Module) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listening {
		return nil
	}
	if m.input == nil || m.stt == nil {
		return fmt.Errorf("voice module needs an audio input and a transcriber")
	}

	streamCtx := context.WithoutCancel(ctx)
	if err := m.stt.Transcribe(streamCtx,
		speechtotext.WithEncodingInfo(m.input.EncodingInfo()),
		speechtotext.WithTranscriptionCallback(m.onTranscript),
	); err != nil {
		return fmt.Errorf("failed to start transcription: %w", err)
	}

	if err := m.input.StartCapture(streamCtx, m.forward); err != nil {
		closeErr := m.stt.Close()
		return errors.Join(fmt.Errorf("failed to start capture: %w", err), closeErr)
	}

	m.listening = true
	logger.InfoContext(ctx, "listening for voice commands")
	return nil
}

func (m *Module) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.listening {
		return nil
	}
	m.listening = false

	var errs []error
	if err := m.input.StopCapture(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop capture: %w", err))
	}
	if err := m.stt.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close transcription: %w", err))
	}
	logger.Info("stopped listening")
	return errors.Join(errs...)
}

func (m *Module) Listening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listening
}

func (m *Module) forward(audio []byte) {
	if err := m.stt.SendAudio(audio); err != nil {
		logger.Debug("failed to forward audio", "error", err)
	}
}

func (m *Module) onTranscript(transcript string) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return
	}

	logger.Info("voice command heard", "text", transcript)
	if err := m.submitter.Submit(events.NewVoiceCommandDetected(transcript)); err != nil {
		logger.Warn("dropped voice command", "error", err)
	}
}
