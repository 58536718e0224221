// Package orchestration assembles the dispatcher, the bridge and the sense,
// brain and feedback modules into one process and drives their lifecycle
// through system.startup and system.shutdown.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/koscakluka/ema-sense/core/brain"
	"github.com/koscakluka/ema-sense/core/dispatch"
	"github.com/koscakluka/ema-sense/core/events"
	"github.com/koscakluka/ema-sense/core/speech"
	"github.com/koscakluka/ema-sense/core/vision"
	"github.com/koscakluka/ema-sense/core/voice"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrAlreadyOrchestrating = errors.New("orchestrator already started")
	ErrClosed               = errors.New("orchestrator closed")
)

type module interface {
	Register(subscriber dispatch.Subscriber)
}

type broadcasterRegistration struct {
	broadcaster Broadcaster
	kinds       []events.Kind
}

type Orchestrator struct {
	dispatcher *dispatch.Dispatcher
	bridge     *dispatch.Bridge

	dispatcherOptions []dispatch.Option
	bridgeOptions     []dispatch.BridgeOption

	userName        string
	llm             brain.LLM
	openFrameSource vision.FrameSourceFactory
	faces           vision.FaceDetector
	emotions        vision.EmotionDetector
	audioInput      voice.AudioInput
	speechToText    voice.SpeechToText
	textToSpeech    speech.TextToSpeech
	audioOutput     speech.AudioOutput
	broadcasters    []broadcasterRegistration

	vision  *vision.Module
	voice   *voice.Module
	brain   *brain.Module
	speech  *speech.Module
	modules []module

	mu          sync.Mutex
	started     bool
	closed      bool
	baseContext context.Context
	closeErr    error
	done        chan struct{}

	// startedUp is closed once system.startup has been published, or
	// Orchestrate gave up before publishing it.
	startedUp chan struct{}
}

// NewOrchestrator wires the modules the options allow for. Vision needs a
// frame source and a face detector, voice needs audio input and a speech to
// text client; the brain and speech modules are always present and fall
// back to offline replies and silent feedback.
func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		baseContext: context.Background(),
		done:        make(chan struct{}),
		startedUp:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.dispatcher = dispatch.New(o.dispatcherOptions...)
	o.bridge = dispatch.NewBridge(o.dispatcher, o.bridgeOptions...)

	if o.openFrameSource != nil && o.faces != nil {
		visionOpts := []vision.Option{vision.WithUserName(o.userName)}
		if o.emotions != nil {
			visionOpts = append(visionOpts, vision.WithEmotionDetector(o.emotions))
		}
		o.vision = vision.New(o.bridge, o.openFrameSource, o.faces, visionOpts...)
		o.modules = append(o.modules, o.vision)
	}

	if o.audioInput != nil && o.speechToText != nil {
		o.voice = voice.New(o.bridge, o.audioInput, o.speechToText)
		o.modules = append(o.modules, o.voice)
	}

	var brainOpts []brain.Option
	if o.llm != nil {
		brainOpts = append(brainOpts, brain.WithLLM(o.llm))
	}
	o.brain = brain.New(o.bridge, brainOpts...)
	o.modules = append(o.modules, o.brain)

	var speechOpts []speech.Option
	if o.textToSpeech != nil {
		speechOpts = append(speechOpts, speech.WithTextToSpeech(o.textToSpeech))
	}
	if o.audioOutput != nil {
		speechOpts = append(speechOpts, speech.WithAudioOutput(o.audioOutput))
	}
	o.speech = speech.New(o.bridge, speechOpts...)
	o.modules = append(o.modules, o.speech)

	return o
}

func (o *Orchestrator) Dispatcher() *dispatch.Dispatcher {
	return o.dispatcher
}

// Bridge is the submitter for producers outside the dispatch loop, such as
// websocket clients.
func (o *Orchestrator) Bridge() *dispatch.Bridge {
	return o.bridge
}

// Orchestrate registers every module, starts the dispatch loop and publishes
// system.startup. It returns once startup handlers finished; the orchestrator
// keeps running until ctx is done or Close is called. A module that fails to
// start is logged and the rest keep running.
//
// Orchestrate can be called once per orchestrator.
func (o *Orchestrator) Orchestrate(ctx context.Context) error {
	o.mu.Lock()
	switch {
	case o.closed:
		o.mu.Unlock()
		return ErrClosed
	case o.started:
		o.mu.Unlock()
		return ErrAlreadyOrchestrating
	}
	o.started = true
	o.baseContext = ctx
	o.mu.Unlock()

	startup := sync.OnceFunc(func() { close(o.startedUp) })
	defer startup()

	ctx, span := tracer.Start(ctx, "orchestrate", trace.WithAttributes(
		attribute.Int("orchestrator.modules", len(o.modules)),
		attribute.Int("orchestrator.broadcasters", len(o.broadcasters)),
	))
	defer span.End()

	for _, m := range o.modules {
		m.Register(o.dispatcher)
	}
	for _, registration := range o.broadcasters {
		registration.broadcaster.Register(o.dispatcher, registration.kinds...)
	}

	if err := o.bridge.Start(context.WithoutCancel(ctx)); err != nil {
		err = fmt.Errorf("failed to start dispatch loop: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	outcome := o.dispatcher.Publish(ctx, events.NewSystemStartup())
	startup()
	if err := outcome.Err(); err != nil {
		span.RecordError(err)
		logger.WarnContext(ctx, "some modules failed to start", "failed", outcome.Failed, "timed_out", outcome.TimedOut, "error", err)
	}
	logger.InfoContext(ctx, "orchestrator started",
		"vision", o.vision != nil, "voice", o.voice != nil, "modules", len(o.modules))

	go func() {
		select {
		case <-ctx.Done():
			if err := o.Close(); err != nil {
				logger.Error("orchestrator closed with errors", "error", err)
			}
		case <-o.done:
		}
	}()

	return nil
}

// SendCommand injects a command as if it had been heard by the voice
// module.
func (o *Orchestrator) SendCommand(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return o.bridge.Submit(events.NewVoiceCommandDetected(text))
}

// Close publishes system.shutdown, then stops the dispatch loop once every
// accepted event was published. A Close racing Orchestrate waits for
// system.startup to finish first. Module shutdown errors are collected and
// returned; repeated calls return the result of the first.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return o.closeErr
	}
	o.closed = true
	defer close(o.done)

	ctx, span := tracer.Start(context.WithoutCancel(o.baseContext), "close orchestrator")
	defer span.End()

	var result *multierror.Error
	if o.started {
		<-o.startedUp
		outcome := o.dispatcher.Publish(ctx, events.NewSystemShutdown())
		if outcome.Errors != nil {
			result = multierror.Append(result, outcome.Errors...)
		}
	}

	o.bridge.Stop()
	o.bridge.AwaitDone()

	o.closeErr = result.ErrorOrNil()
	if o.closeErr != nil {
		span.RecordError(o.closeErr)
		span.SetStatus(codes.Error, "failed to shut down cleanly")
	}
	logger.InfoContext(ctx, "orchestrator closed")

	return o.closeErr
}
