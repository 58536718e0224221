package commands

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	orchestration "github.com/koscakluka/ema-sense/core"
	"github.com/koscakluka/ema-sense/core/broadcast"
	"github.com/koscakluka/ema-sense/core/config"
	"github.com/koscakluka/ema-sense/core/events"
	"github.com/koscakluka/ema-sense/core/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offlineConfig() config.Config {
	return config.Config{
		Addr:           ":0",
		GroqModel:      "llama-3.1-8b-instant",
		AudioBackend:   config.AudioBackendNone,
		HandlerTimeout: time.Second,
		QueueCapacity:  8,
		UserName:       "Master",
	}
}

func TestOfflineOptionsSkipClients(t *testing.T) {
	opts, release, err := orchestratorOptions(offlineConfig())
	require.NoError(t, err)
	require.NotNil(t, release)
	release()

	assert.Len(t, opts, 3)
}

func TestGroqKeyEnablesReasoning(t *testing.T) {
	cfg := offlineConfig()
	cfg.GroqAPIKey = "gsk_test"

	opts, release, err := orchestratorOptions(cfg)
	require.NoError(t, err)
	release()

	assert.Len(t, opts, 4)
}

func TestServeHelpExplainsVisionWiring(t *testing.T) {
	assert.Contains(t, serveCmd.Long, "No camera backend ships")
	assert.Contains(t, serveCmd.Long, "WithFaceDetector")
}

func TestUnknownAudioBackend(t *testing.T) {
	_, err := openAudioDevice(config.AudioBackend("alsa"))
	assert.ErrorContains(t, err, "alsa")
}

func TestCommandsAreRegistered(t *testing.T) {
	for _, name := range []string{"serve", "console"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}

	flag := consoleCmd.Flags().Lookup("addr")
	require.NotNil(t, flag)
	assert.Equal(t, "localhost:8000", flag.DefValue)
}

func TestWebsocketCommandsReachOrchestrator(t *testing.T) {
	hub := broadcast.NewHub()
	orchestrator := orchestration.NewOrchestrator(orchestration.WithBroadcaster(hub))
	require.NoError(t, orchestrator.Orchestrate(context.Background()))
	defer orchestrator.Close()

	ts := httptest.NewServer(server.New(server.DefaultConfig(), hub, orchestrator).Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, conn.WriteJSON(broadcast.Control{Type: "command", Text: "hello"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var message broadcast.Message
		require.NoError(t, conn.ReadJSON(&message))
		if message.Kind == events.KindResponseGenerated.String() {
			assert.Equal(t, "Greetings, Sir.", message.Payload[events.KeyText])
			return
		}
	}
}
