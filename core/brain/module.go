// Package brain decides what to say. It listens for commands, identities and
// emotions, asks an LLM for a reply when one is configured, and falls back to
// canned answers when it is not.
package brain

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/koscakluka/ema-sense/core/dispatch"
	"github.com/koscakluka/ema-sense/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultBacklog = 16

var (
	ErrNotRunning = errors.New("brain is not running")
	ErrBusy       = errors.New("brain backlog is full")
)

// LLM produces a reply to a single prompt.
type LLM interface {
	Prompt(ctx context.Context, prompt string) (string, error)
}

type Module struct {
	submitter dispatch.Submitter
	llm       LLM
	backlog   int

	emotionMu sync.RWMutex
	emotion   string

	mu      sync.Mutex
	jobs    chan job
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

type job struct {
	name string
	run  func(ctx context.Context)
}

type Option func(*Module)

// WithLLM enables model replies. Without it every reply is canned.
func WithLLM(llm LLM) Option {
	return func(m *Module) {
		m.llm = llm
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
		emotion:   defaultEmotion,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register wires the module to the events it reacts to. The worker follows
// the system lifecycle.
func (m *Module) Register(subscriber dispatch.Subscriber) {
	subscriber.Subscribe(events.KindSystemStartup, func(ctx context.Context, _ events.Event) error {
		return m.Start(ctx)
	}, dispatch.WithName("brain.start"))
	subscriber.Subscribe(events.KindSystemShutdown, func(context.Context, events.Event) error {
		m.Stop()
		return nil
	}, dispatch.WithName("brain.stop"))

	subscriber.Subscribe(events.KindVoiceCommandDetected, m.handleCommand, dispatch.WithName("brain.command"))
	subscriber.Subscribe(events.KindUserIdentified, m.handleIdentified, dispatch.WithName("brain.greet"))
	subscriber.Subscribe(events.KindUserEmotionDetected, m.handleEmotion, dispatch.WithName("brain.emotion"))
}

// Start launches the worker that talks to the LLM. It keeps ctx values but
// not its cancellation. Starting a running module is a no-op.
func (m *Module) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.jobs = make(chan job, m.backlog)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.work(workerCtx, m.jobs, m.done)
	logger.InfoContext(ctx, "brain online", "llm", m.llm != nil)
	return nil
}

// Stop cancels in-flight LLM calls and waits for the worker to exit. Jobs
// still queued are skipped.
func (m *Module) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false
	m.cancel()
	close(m.jobs)
	<-m.done
	logger.Info("brain offline")
}

func (m *Module) work(ctx context.Context, jobs <-chan job, done chan struct{}) {
	defer close(done)
	for j := range jobs {
		if ctx.Err() != nil {
			logger.Debug("skipping brain job during shutdown", "job", j.name)
			continue
		}
		jobCtx, span := tracer.Start(ctx, "brain job", trace.WithAttributes(attribute.String("brain.job", j.name)))
		j.run(jobCtx)
		span.End()
	}
}

func (m *Module) enqueue(name string, run func(ctx context.Context)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return ErrNotRunning
	}
	select {
	case m.jobs <- job{name: name, run: run}:
		return nil
	default:
		return ErrBusy
	}
}

// Emotion returns the most recent emotion context.
func (m *Module) Emotion() string {
	m.emotionMu.RLock()
	defer m.emotionMu.RUnlock()
	return m.emotion
}

func (m *Module) handleEmotion(ctx context.Context, event events.Event) error {
	emotion := event.Text(events.KeyEmotion)
	if emotion == "" {
		return nil
	}

	m.emotionMu.Lock()
	m.emotion = emotion
	m.emotionMu.Unlock()

	logger.DebugContext(ctx, "emotion context updated", "emotion", emotion)
	return nil
}

func (m *Module) handleCommand(ctx context.Context, event events.Event) error {
	text := strings.TrimSpace(event.Text(events.KeyText))
	if text == "" {
		return nil
	}
	emotion := m.Emotion()

	return m.enqueue("command", func(ctx context.Context) {
		intent := ClassifyIntent(text)
		m.submit(ctx, events.NewIntentRecognized(intent, text))
		response := m.reply(ctx, intent, emotion, text)
		if ctx.Err() != nil {
			return
		}
		m.submit(ctx, events.NewResponseGenerated(response))
	})
}

func (m *Module) handleIdentified(ctx context.Context, event events.Event) error {
	user := strings.TrimSpace(event.Text(events.KeyUser))
	if user == "" {
		user = defaultAddress
	}

	return m.enqueue("greet", func(ctx context.Context) {
		greeting := m.greet(ctx, user)
		if ctx.Err() != nil {
			return
		}
		m.submit(ctx, events.NewResponseGenerated(greeting))
	})
}

func (m *Module) reply(ctx context.Context, intent, emotion, text string) string {
	if m.llm == nil {
		return offlineReply(intent)
	}

	response, err := m.llm.Prompt(ctx, commandPrompt(emotion, strings.ToLower(text)))
	if err != nil {
		logger.ErrorContext(ctx, "llm failed to answer command", "error", err)
		return replyLLMFailure
	}
	return response
}

func (m *Module) greet(ctx context.Context, user string) string {
	if m.llm == nil {
		return offlineGreeting(user)
	}

	response, err := m.llm.Prompt(ctx, greetingPrompt(user))
	if err != nil {
		logger.ErrorContext(ctx, "llm failed to greet user", "error", err, "user", user)
		return offlineGreeting(user)
	}
	return response
}

func (m *Module) submit(ctx context.Context, event events.Event) {
	if err := m.submitter.Submit(event); err != nil {
		logger.WarnContext(ctx, "dropped brain event", "kind", event.Kind(), "error", err)
		return
	}
}
