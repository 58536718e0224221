// Package texttospeech defines the options shared by speech synthesizers.
package texttospeech

import "github.com/koscakluka/ema-sense/core/audio"

type SynthesisOptions struct {
	EncodingInfo audio.EncodingInfo
	// MarkCallback is called once the text has been fully synthesized, before
	// Synthesize returns.
	MarkCallback func(text string)
}

type SynthesisOption func(*SynthesisOptions)

func NewSynthesisOptions(opts ...SynthesisOption) SynthesisOptions {
	options := SynthesisOptions{EncodingInfo: audio.DefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// WithEncodingInfo ignores incomplete encodings.
func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesisOption {
	return func(o *SynthesisOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}

func WithMarkCallback(callback func(text string)) SynthesisOption {
	return func(o *SynthesisOptions) {
		o.MarkCallback = callback
	}
}
