// Package speech voices generated responses and reports when speaking starts
// and ends.
package speech

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/koscakluka/ema-sense/core/audio"
	"github.com/koscakluka/ema-sense/core/dispatch"
	"github.com/koscakluka/ema-sense/core/events"
	"github.com/koscakluka/ema-sense/core/texttospeech"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/koscakluka/ema-sense/core/speech"

var (
	tracer = otel.Tracer(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

const defaultBacklog = 16

var (
	ErrNotRunning = errors.New("speech is not running")
	ErrBusy       = errors.New("speech backlog is full")
)

type TextToSpeech interface {
	Synthesize(ctx context.Context, text string, onAudio func([]byte), opts ...texttospeech.SynthesisOption) error
}

type AudioOutput interface {
	SendAudio(audio []byte) error
	AwaitMark() error
	EncodingInfo() audio.EncodingInfo
}

// Module speaks one response at a time, in the order they were generated.
// Without a synthesizer it only reports the speaking window.
type Module struct {
	submitter dispatch.Submitter
	tts       TextToSpeech
	output    AudioOutput
	backlog   int

	mu      sync.Mutex
	queue   chan string
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

type Option func(*Module)

func WithTextToSpeech(tts TextToSpeech) Option {
	return func(m *Module) {
		m.tts = tts
	}
}

func WithAudioOutput(output AudioOutput) Option {
	return func(m *Module) {
		m.output = output
	}
}

func WithBacklog(size int) Option {
	return func(m *Module) {
		if size > 0 {
			m.backlog = size
		}
	}
}

func New(submitter dispatch.Submitter, opts ...Option) *Module {
	m := &Module{
		submitter: submitter,
		backlog:   defaultBacklog,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Module) Register(subscriber dispatch.Subscriber) {
	subscriber.Subscribe(events.KindSystemStartup, func(ctx context.Context, _ events.Event) error {
		return m.Start(ctx)
	}, dispatch.WithName("speech.start"))
	subscriber.Subscribe(events.KindSystemShutdown, func(context.Context, events.Event) error {
		m.Stop()
		return nil
	}, dispatch.WithName("speech.stop"))
	subscriber.Subscribe(events.KindResponseGenerated, func(_ context.Context, event events.Event) error {
		return m.Say(event.Text(events.KeyText))
	}, dispatch.WithName("speech.say"))
}

func (m *Module) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.queue = make(chan string, m.backlog)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.work(workerCtx, m.queue, m.done)
	return nil
}

// Stop interrupts the utterance in progress, skips the backlog and waits for
// the worker to exit.
func (m *Module) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false
	m.cancel()
	close(m.queue)
	<-m.done
}

// Say queues text to be spoken after everything queued before it.
func (m *Module) Say(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return ErrNotRunning
	}
	select {
	case m.queue <- text:
		return nil
	default:
		logger.Warn("speech backlog full, dropping response", "text", text)
		return ErrBusy
	}
}

func (m *Module) work(ctx context.Context, queue <-chan string, done chan struct{}) {
	defer close(done)
	for text := range queue {
		if ctx.Err() != nil {
			continue
		}
		m.speak(ctx, text)
	}
}

func (m *Module) speak(ctx context.Context, text string) {
	ctx, span := tracer.Start(ctx, "speak", trace.WithAttributes(attribute.Int("speech.text_length", len(text))))
	defer span.End()

	m.submit(ctx, events.NewSpeakingStarted(text))
	defer m.submit(ctx, events.NewSpeakingEnded(text))

	logger.InfoContext(ctx, "speaking", "text", text)
	if m.tts == nil {
		return
	}

	var opts []texttospeech.SynthesisOption
	if m.output != nil {
		opts = append(opts, texttospeech.WithEncodingInfo(m.output.EncodingInfo()))
	}

	err := m.tts.Synthesize(ctx, text, func(chunk []byte) {
		if m.output == nil {
			return
		}
		if err := m.output.SendAudio(chunk); err != nil {
			logger.DebugContext(ctx, "failed to play audio", "error", err)
		}
	}, opts...)
	if err != nil {
		span.RecordError(err)
		logger.ErrorContext(ctx, "speech synthesis failed", "error", err)
		return
	}

	if m.output != nil {
		if err := m.output.AwaitMark(); err != nil {
			logger.WarnContext(ctx, "failed waiting for playback", "error", err)
		}
	}
}

func (m *Module) submit(ctx context.Context, event events.Event) {
	if err := m.submitter.Submit(event); err != nil {
		logger.DebugContext(ctx, "dropped speech event", "kind", event.Kind(), "error", err)
	}
}
