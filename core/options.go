package orchestration

import (
	"time"

	"github.com/koscakluka/ema-sense/core/brain"
	"github.com/koscakluka/ema-sense/core/dispatch"
	"github.com/koscakluka/ema-sense/core/events"
	"github.com/koscakluka/ema-sense/core/speech"
	"github.com/koscakluka/ema-sense/core/vision"
	"github.com/koscakluka/ema-sense/core/voice"
)

type OrchestratorOption func(*Orchestrator)

// Broadcaster forwards published events to something outside the process.
type Broadcaster interface {
	Register(subscriber dispatch.Subscriber, kinds ...events.Kind)
}

func WithLLM(client brain.LLM) OrchestratorOption {
	return func(o *Orchestrator) {
		o.llm = client
	}
}

// WithFrameSource enables vision. It takes effect only together with
// WithFaceDetector.
func WithFrameSource(open vision.FrameSourceFactory) OrchestratorOption {
	return func(o *Orchestrator) {
		o.openFrameSource = open
	}
}

func WithFaceDetector(detector vision.FaceDetector) OrchestratorOption {
	return func(o *Orchestrator) {
		o.faces = detector
	}
}

func WithEmotionDetector(detector vision.EmotionDetector) OrchestratorOption {
	return func(o *Orchestrator) {
		o.emotions = detector
	}
}

// WithAudioInput enables voice commands. It takes effect only together with
// WithSpeechToTextClient.
func WithAudioInput(input voice.AudioInput) OrchestratorOption {
	return func(o *Orchestrator) {
		o.audioInput = input
	}
}

func WithSpeechToTextClient(client voice.SpeechToText) OrchestratorOption {
	return func(o *Orchestrator) {
		o.speechToText = client
	}
}

func WithTextToSpeechClient(client speech.TextToSpeech) OrchestratorOption {
	return func(o *Orchestrator) {
		o.textToSpeech = client
	}
}

func WithAudioOutput(output speech.AudioOutput) OrchestratorOption {
	return func(o *Orchestrator) {
		o.audioOutput = output
	}
}

// WithHandlerTimeout bounds how long one publish waits for its handlers.
func WithHandlerTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.dispatcherOptions = append(o.dispatcherOptions, dispatch.WithHandlerTimeout(timeout))
	}
}

// WithQueueCapacity sizes the queue between producers and the dispatch loop.
func WithQueueCapacity(capacity int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.bridgeOptions = append(o.bridgeOptions, dispatch.WithQueueCapacity(capacity))
	}
}

// WithUserName sets the identity vision reports for a recognised face.
func WithUserName(name string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.userName = name
	}
}

// WithBroadcaster subscribes broadcaster when orchestration starts. kinds
// defaults to whatever the broadcaster picks.
func WithBroadcaster(broadcaster Broadcaster, kinds ...events.Kind) OrchestratorOption {
	return func(o *Orchestrator) {
		o.broadcasters = append(o.broadcasters, broadcasterRegistration{
			broadcaster: broadcaster,
			kinds:       kinds,
		})
	}
}
