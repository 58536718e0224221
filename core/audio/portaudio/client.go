// Package portaudio is the PortAudio capture and playback backend. It opens
// one duplex stream at the default sample rate.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-sense/core/audio"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const (
	scopeName = "github.com/koscakluka/ema-sense/core/audio/portaudio"

	DefaultBufferSize = 1024
)

var logger = otelslog.NewLogger(scopeName)

var errCaptureRunning = errors.New("capture already running")

type Client struct {
	bufferSize int
	stream     *portaudio.Stream

	in  []int16
	out []int16

	writeMu  sync.Mutex
	leftover []byte

	captureMu     sync.Mutex
	cancelCapture context.CancelFunc
	captureDone   chan struct{}
}

func NewClient(bufferSize int) (*Client, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, audio.DefaultSampleRate, bufferSize, in, out)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start PortAudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
		out:        out,
	}, nil
}

// StartCapture reads the input side of the stream on its own goroutine until
// StopCapture.
func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()

	if c.cancelCapture != nil {
		return errCaptureRunning
	}

	captureCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancelCapture = cancel
	c.captureDone = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		for captureCtx.Err() == nil {
			if err := c.stream.Read(); err != nil {
				logger.Warn("failed to read from PortAudio stream", "error", err)
				continue
			}

			var frame bytes.Buffer
			if err := binary.Write(&frame, binary.LittleEndian, c.in); err != nil {
				logger.Warn("failed to encode captured audio", "error", err)
				continue
			}
			onAudio(frame.Bytes())
		}
	}(c.captureDone)

	logger.InfoContext(ctx, "microphone capture started")
	return nil
}

func (c *Client) StopCapture() error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()

	if c.cancelCapture == nil {
		return nil
	}
	c.cancelCapture()
	<-c.captureDone
	c.cancelCapture = nil
	return nil
}

// SendAudio plays whole buffers immediately and keeps the remainder until
// more audio arrives or AwaitMark flushes it.
func (c *Client) SendAudio(audio []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	pending := append(c.leftover, audio...)
	frameBytes := c.bufferSize * 2
	for len(pending) >= frameBytes {
		if err := c.writeFrame(pending[:frameBytes]); err != nil {
			c.leftover = nil
			return err
		}
		pending = pending[frameBytes:]
	}
	c.leftover = append([]byte(nil), pending...)
	return nil
}

func (c *Client) writeFrame(frame []byte) error {
	clear(c.out)
	if err := binary.Read(bytes.NewReader(frame), binary.LittleEndian, c.out[:len(frame)/2]); err != nil {
		return fmt.Errorf("failed to decode playback audio: %w", err)
	}
	if err := c.stream.Write(); err != nil {
		return fmt.Errorf("failed to write to PortAudio stream: %w", err)
	}
	return nil
}

func (c *Client) ClearBuffer() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.leftover = nil
}

// AwaitMark flushes the remainder, padded with silence. Writes block until
// the device accepts them, so returning means the audio has been handed over.
func (c *Client) AwaitMark() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if len(c.leftover) == 0 {
		return nil
	}
	frame := c.leftover
	frame = frame[:len(frame)-len(frame)%2]
	c.leftover = nil
	return c.writeFrame(frame)
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}

func (c *Client) Close() error {
	_ = c.StopCapture()
	err := c.stream.Close()
	if termErr := portaudio.Terminate(); err == nil {
		err = termErr
	}
	if err != nil {
		return fmt.Errorf("failed to close PortAudio: %w", err)
	}
	return nil
}
