package deepgram

import (
	"errors"
	"fmt"

	"github.com/koscakluka/ema-sense/core/audio"
)

var errUnsupportedEncoding = errors.New("unsupported encoding")

// checkEncoding rejects combinations the listen endpoint does not accept.
func checkEncoding(encoding audio.EncodingInfo) error {
	switch encoding.SampleRate {
	case 8000, 16000, 24000, 32000, 48000:
	default:
		return fmt.Errorf("%w: sample rate %d", errUnsupportedEncoding, encoding.SampleRate)
	}

	switch encoding.Format {
	case audio.EncodingLinear16:
	case audio.EncodingALaw, audio.EncodingMulaw:
		if encoding.SampleRate != 8000 {
			return fmt.Errorf("%w: %s needs 8000 Hz", errUnsupportedEncoding, encoding.Format.Name())
		}
	default:
		return fmt.Errorf("%w: format %q", errUnsupportedEncoding, encoding.Format.Name())
	}
	return nil
}
