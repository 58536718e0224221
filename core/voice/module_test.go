package voice

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/koscakluka/ema-sense/core/audio"
	"github.com/koscakluka/ema-sense/core/dispatch"
	"github.com/koscakluka/ema-sense/core/events"
	"github.com/koscakluka/ema-sense/core/speechtotext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubmitter struct {
	mu        sync.Mutex
	submitted []events.Event
}

func (s *recordingSubmitter) Submit(event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, event)
	return nil
}

type fakeInput struct {
	onAudio  func([]byte)
	startErr error
	stopped  bool
}

func (i *fakeInput) StartCapture(_ context.Context, onAudio func([]byte)) error {
	if i.startErr != nil {
		return i.startErr
	}
	i.onAudio = onAudio
	return nil
}

func (i *fakeInput) StopCapture() error {
	i.stopped = true
	i.onAudio = nil
	return nil
}

func (i *fakeInput) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: 48000, Format: audio.EncodingLinear16}
}

type fakeTranscriber struct {
	options speechtotext.TranscriptionOptions
	audio   [][]byte
	closed  bool
}

func (s *fakeTranscriber) Transcribe(_ context.Context, opts ...speechtotext.TranscriptionOption) error {
	s.options = speechtotext.NewTranscriptionOptions(opts...)
	return nil
}

func (s *fakeTranscriber) SendAudio(audio []byte) error {
	s.audio = append(s.audio, audio)
	return nil
}

func (s *fakeTranscriber) Close() error {
	s.closed = true
	return nil
}

func TestTranscriptsBecomeVoiceCommands(t *testing.T) {
	submitter := &recordingSubmitter{}
	input := &fakeInput{}
	stt := &fakeTranscriber{}
	module := New(submitter, input, stt)

	require.NoError(t, module.Start(context.Background()))
	assert.True(t, module.Listening())
	assert.Equal(t, 48000, stt.options.EncodingInfo.SampleRate)

	input.onAudio([]byte{1, 2})
	assert.Equal(t, [][]byte{{1, 2}}, stt.audio)

	stt.options.TranscriptionCallback("  system status ")
	stt.options.TranscriptionCallback("   ")

	require.Len(t, submitter.submitted, 1)
	assert.Equal(t, events.KindVoiceCommandDetected, submitter.submitted[0].Kind())
	assert.Equal(t, "system status", submitter.submitted[0].Text(events.KeyText))

	require.NoError(t, module.Stop())
	assert.True(t, input.stopped)
	assert.True(t, stt.closed)
	assert.False(t, module.Listening())
}

func TestCaptureFailureClosesTranscription(t *testing.T) {
	stt := &fakeTranscriber{}
	module := New(&recordingSubmitter{}, &fakeInput{startErr: errors.New("no microphone")}, stt)

	err := module.Start(context.Background())
	assert.ErrorContains(t, err, "no microphone")
	assert.True(t, stt.closed)
	assert.False(t, module.Listening())
}

func TestLifecycleFollowsSystemEvents(t *testing.T) {
	d := dispatch.New()
	input := &fakeInput{}
	stt := &fakeTranscriber{}
	module := New(&recordingSubmitter{}, input, stt)
	module.Register(d)

	require.Zero(t, d.Publish(context.Background(), events.NewSystemStartup()).Failed)
	assert.True(t, module.Listening())

	require.Zero(t, d.Publish(context.Background(), events.NewSystemShutdown()).Failed)
	assert.False(t, module.Listening())
	assert.True(t, stt.closed)
}
