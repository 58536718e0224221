// Package vision samples a camera and turns per-frame detections into
// presence, identity and emotion events.
//
// Sampling runs on its own goroutine at roughly ten frames per second.
// Raw detections are debounced before anything is submitted: presence at
// most once per PresenceInterval, emotion readings only above
// EmotionThreshold and at most once per EmotionInterval.
package vision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/koscakluka/ema-sense/core/debounce"
	"github.com/koscakluka/ema-sense/core/dispatch"
	"github.com/koscakluka/ema-sense/core/events"
)

const (
	PresenceInterval = 5 * time.Second
	EmotionInterval  = 3 * time.Second
	EmotionThreshold = 0.4

	DefaultSampleInterval = 100 * time.Millisecond
	DefaultUserName       = "Master"

	defaultReadRetryDelay = time.Second
)

const (
	gateKeyPresence = "presence"
	gateKeyEmotion  = "emotion"
)

var errAlreadySampling = errors.New("vision sampling already running")

type Module struct {
	submitter  dispatch.Submitter
	openSource FrameSourceFactory
	faces      FaceDetector
	emotions   EmotionDetector

	userName       string
	sampleInterval time.Duration
	readRetryDelay time.Duration
	now            func() time.Time

	mu      sync.Mutex
	source  FrameSource
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

type Option func(*Module)

func WithEmotionDetector(detector EmotionDetector) Option {
	return func(m *Module) {
		m.emotions = detector
	}
}

func WithSampleInterval(interval time.Duration) Option {
	return func(m *Module) {
		if interval > 0 {
			m.sampleInterval = interval
		}
	}
}

func WithReadRetryDelay(delay time.Duration) Option {
	return func(m *Module) {
		if delay > 0 {
			m.readRetryDelay = delay
		}
	}
}

// WithUserName sets the identity reported when a face is recognised.
func WithUserName(name string) Option {
	return func(m *Module) {
		if name != "" {
			m.userName = name
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Module) {
		if now != nil {
			m.now = now
		}
	}
}

func New(submitter dispatch.Submitter, openSource FrameSourceFactory, faces FaceDetector, opts ...Option) *Module {
	m := &Module{
		submitter:      submitter,
		openSource:     openSource,
		faces:          faces,
		userName:       DefaultUserName,
		sampleInterval: DefaultSampleInterval,
		readRetryDelay: defaultReadRetryDelay,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register starts sampling on system startup and stops it on shutdown.
func (m *Module) Register(subscriber dispatch.Subscriber) {
	subscriber.Subscribe(events.KindSystemStartup, func(ctx context.Context, _ events.Event) error {
		return m.Start(ctx)
	}, dispatch.WithName("vision.start"))
	subscriber.Subscribe(events.KindSystemShutdown, func(context.Context, events.Event) error {
		return m.Stop()
	}, dispatch.WithName("vision.stop"))
}

// Start opens the frame source and launches the sampling goroutine. The
// goroutine does not inherit ctx cancellation, only its values; Stop ends
// it.
func (m *Module) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return errAlreadySampling
	}
	if m.openSource == nil || m.faces == nil {
		return fmt.Errorf("vision module needs a frame source and a face detector")
	}

	source, err := m.openSource()
	if err != nil {
		return fmt.Errorf("failed to open frame source: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.source = source
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	logger.InfoContext(ctx, "vision sampling started", "interval", m.sampleInterval)
	go m.sample(loopCtx, source, m.done)
	return nil
}

// Stop ends sampling and releases the frame source. Stopping a module that
// is not sampling is a no-op.
func (m *Module) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.cancel()
	<-m.done
	m.running = false

	err := m.source.Close()
	m.source = nil
	if err != nil {
		return fmt.Errorf("failed to release frame source: %w", err)
	}

	logger.Info("vision sampling stopped")
	return nil
}

// Running reports whether the sampling goroutine is active.
func (m *Module) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// sampler holds the state owned by the sampling goroutine.
type sampler struct {
	gate     *debounce.Gate
	present  bool
	lastSeen time.Time
}

func (m *Module) sample(ctx context.Context, source FrameSource, done chan struct{}) {
	defer close(done)

	state := sampler{gate: debounce.NewGate()}
	ticker := time.NewTicker(m.sampleInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		frame, err := source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WarnContext(ctx, "failed to read frame", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.readRetryDelay):
			}
			continue
		}

		m.process(ctx, &state, frame)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Module) process(ctx context.Context, state *sampler, frame Frame) {
	faces, err := m.faces.DetectFaces(frame)
	if err != nil {
		logger.WarnContext(ctx, "face detection failed", "error", err)
		return
	}

	now := m.now()
	if faces == 0 {
		if state.present && now.Sub(state.lastSeen) >= PresenceInterval {
			state.present = false
			m.submit(ctx, events.NewUserLost())
		}
		return
	}

	state.lastSeen = now
	if state.gate.Allow(gateKeyPresence, now, PresenceInterval) {
		state.present = true
		logger.InfoContext(ctx, "user face detected", "faces", faces)
		m.submit(ctx, events.NewUserPresenceDetected())
		m.submit(ctx, events.NewUserIdentified(m.userName))
	}

	if m.emotions == nil {
		return
	}

	emotion, score, ok, err := m.emotions.TopEmotion(frame)
	switch {
	case err != nil:
		logger.WarnContext(ctx, "emotion detection failed", "error", err)
	case !ok || emotion == "":
	case !debounce.Threshold(score, EmotionThreshold):
	case state.gate.Allow(gateKeyEmotion, now, EmotionInterval):
		logger.InfoContext(ctx, "emotion detected", "emotion", emotion, "score", score)
		m.submit(ctx, events.NewUserEmotionDetected(emotion, score))
	}
}

// submit drops the event when the dispatch loop is unavailable; the next
// sample will produce a fresh one.
func (m *Module) submit(ctx context.Context, event events.Event) {
	if err := m.submitter.Submit(event); err != nil {
		logger.DebugContext(ctx, "dropped vision event", "kind", event.Kind(), "error", err)
	}
}
