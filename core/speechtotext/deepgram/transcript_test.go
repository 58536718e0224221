package deepgram

import (
	"fmt"
	"testing"

	"github.com/koscakluka/ema-sense/core/speechtotext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(text string, isFinal, speechFinal bool) []byte {
	return fmt.Appendf(nil,
		`{"type":"Results","is_final":%t,"speech_final":%t,"channel":{"alternatives":[{"transcript":%q}]}}`,
		isFinal, speechFinal, text)
}

type recorded struct {
	interim []string
	partial []string
	full    []string
	started int
	ended   int
}

func recordingOptions(r *recorded) speechtotext.TranscriptionOptions {
	return speechtotext.NewTranscriptionOptions(
		speechtotext.WithInterimTranscriptionCallback(func(s string) { r.interim = append(r.interim, s) }),
		speechtotext.WithPartialTranscriptionCallback(func(s string) { r.partial = append(r.partial, s) }),
		speechtotext.WithTranscriptionCallback(func(s string) { r.full = append(r.full, s) }),
		speechtotext.WithSpeechStartedCallback(func() { r.started++ }),
		speechtotext.WithSpeechEndedCallback(func() { r.ended++ }),
	)
}

func TestTranscriptJoinsFinalSegmentsIntoUtterance(t *testing.T) {
	var r recorded
	tr := newTranscript(recordingOptions(&r))

	for _, message := range [][]byte{
		[]byte(`{"type":"SpeechStarted"}`),
		result("system", false, false),
		result("system status", true, false),
		result("please", false, false),
		result("please", true, true),
	} {
		require.NoError(t, tr.handle(message))
	}

	assert.Equal(t, 1, r.started)
	assert.Equal(t, []string{"system", "system status please"}, r.interim)
	assert.Equal(t, []string{"system status", "please"}, r.partial)
	assert.Equal(t, []string{"system status please"}, r.full)
	assert.Equal(t, 1, r.ended)
}

func TestUtteranceEndFlushesPendingSegments(t *testing.T) {
	var r recorded
	tr := newTranscript(recordingOptions(&r))

	require.NoError(t, tr.handle(result("hello", true, false)))
	require.NoError(t, tr.handle([]byte(`{"type":"UtteranceEnd","last_word_end":1.2}`)))
	require.NoError(t, tr.handle([]byte(`{"type":"UtteranceEnd","last_word_end":2.4}`)))

	assert.Equal(t, []string{"hello"}, r.full)
	assert.Equal(t, 1, r.ended)
}

func TestEmptyFinalResultsDoNotProduceTranscripts(t *testing.T) {
	var r recorded
	tr := newTranscript(recordingOptions(&r))

	require.NoError(t, tr.handle(result("", true, true)))

	assert.Empty(t, r.full)
	assert.Empty(t, r.partial)
	assert.Equal(t, 1, r.ended)
}

func TestMalformedMessageIsReported(t *testing.T) {
	tr := newTranscript(speechtotext.NewTranscriptionOptions())
	assert.Error(t, tr.handle([]byte("not json")))
	assert.NoError(t, tr.handle([]byte(`{"type":"Metadata"}`)))
}
