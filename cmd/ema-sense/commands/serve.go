package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	orchestration "github.com/koscakluka/ema-sense/core"
	"github.com/koscakluka/ema-sense/core/audio/miniaudio"
	"github.com/koscakluka/ema-sense/core/audio/portaudio"
	"github.com/koscakluka/ema-sense/core/broadcast"
	"github.com/koscakluka/ema-sense/core/config"
	"github.com/koscakluka/ema-sense/core/llms/groq"
	"github.com/koscakluka/ema-sense/core/server"
	"github.com/koscakluka/ema-sense/core/speech"
	sttdeepgram "github.com/koscakluka/ema-sense/core/speechtotext/deepgram"
	"github.com/koscakluka/ema-sense/core/telemetry"
	ttsdeepgram "github.com/koscakluka/ema-sense/core/texttospeech/deepgram"
	"github.com/koscakluka/ema-sense/core/voice"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var (
	serveAddr     string
	serveEnvFiles []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant and its websocket server",
	Long: `Run the assistant and its websocket server.

Settings come from the environment, optionally seeded from .env files.
Without GROQ_API_KEY the assistant answers with canned replies; without
DEEPGRAM_API_KEY it neither listens nor speaks. EMA_SYSTEM_PROMPT replaces
the assistant persona.

No camera backend ships with this command. Vision, presence and emotion
detection run only when a program embedding the orchestrator supplies a
frame source and face detector through WithFrameSource and WithFaceDetector.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on, overrides EMA_ADDR")
	serveCmd.Flags().StringSliceVar(&serveEnvFiles, "env-file", nil, "Env files to load (default .env)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(serveEnvFiles...)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}

	shutdownTelemetry, err := telemetry.Setup(os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, release, err := orchestratorOptions(cfg)
	if err != nil {
		return err
	}
	defer release()

	hub := broadcast.NewHub()
	orchestrator := orchestration.NewOrchestrator(append(opts, orchestration.WithBroadcaster(hub))...)
	srv := server.New(server.Config{Addr: cfg.Addr}, hub, orchestrator)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		return orchestrator.Orchestrate(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), orchestrator.Close())
	})

	return g.Wait()
}

type audioDevice interface {
	voice.AudioInput
	speech.AudioOutput
	Close() error
}

// orchestratorOptions picks the clients cfg allows for. release frees the
// audio device and is safe to call when none was opened.
func orchestratorOptions(cfg config.Config) (opts []orchestration.OrchestratorOption, release func(), err error) {
	release = func() {}
	opts = []orchestration.OrchestratorOption{
		orchestration.WithHandlerTimeout(cfg.HandlerTimeout),
		orchestration.WithQueueCapacity(cfg.QueueCapacity),
		orchestration.WithUserName(cfg.UserName),
	}

	if cfg.ReasoningEnabled() {
		llm, err := groq.NewClient(cfg.GroqAPIKey, cfg.GroqModel, groq.WithSystemPrompt(cfg.SystemPrompt))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, orchestration.WithLLM(llm))
	} else {
		logger.Warn("GROQ_API_KEY not set, reasoning core offline")
	}

	if !cfg.AudioEnabled() {
		logger.Warn("audio disabled", "backend", cfg.AudioBackend, "deepgram_configured", cfg.DeepgramAPIKey != "")
		return opts, release, nil
	}

	device, err := openAudioDevice(cfg.AudioBackend)
	if err != nil {
		return nil, nil, err
	}
	release = func() {
		if err := device.Close(); err != nil {
			logger.Warn("failed to release audio device", "error", err)
		}
	}

	stt, err := sttdeepgram.NewTranscriptionClient(cfg.DeepgramAPIKey)
	if err != nil {
		release()
		return nil, nil, err
	}
	tts, err := ttsdeepgram.NewTextToSpeechClient(cfg.DeepgramAPIKey)
	if err != nil {
		release()
		return nil, nil, err
	}

	opts = append(opts,
		orchestration.WithAudioInput(device),
		orchestration.WithSpeechToTextClient(stt),
		orchestration.WithTextToSpeechClient(tts),
		orchestration.WithAudioOutput(device),
	)
	return opts, release, nil
}

func openAudioDevice(backend config.AudioBackend) (audioDevice, error) {
	switch backend {
	case config.AudioBackendPortaudio:
		device, err := portaudio.NewClient(portaudio.DefaultBufferSize)
		if err != nil {
			return nil, fmt.Errorf("failed to open portaudio device: %w", err)
		}
		return device, nil
	case config.AudioBackendMiniaudio:
		device, err := miniaudio.NewClient()
		if err != nil {
			return nil, fmt.Errorf("failed to open miniaudio device: %w", err)
		}
		return device, nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", backend)
	}
}
