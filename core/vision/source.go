package vision

import "context"

// Frame is one captured image. The module never looks inside it, it only
// hands it to the detectors.
type Frame struct {
	Width  int
	Height int
	Data   []byte
}

// FrameSource is a capture device. Read may block until a frame is
// available.
type FrameSource interface {
	Read(ctx context.Context) (Frame, error)
	Close() error
}

// FrameSourceFactory opens the capture device when sampling starts.
type FrameSourceFactory func() (FrameSource, error)

type FaceDetector interface {
	DetectFaces(frame Frame) (int, error)
}

// EmotionDetector classifies the dominant emotion in a frame. ok is false
// when no emotion could be determined.
type EmotionDetector interface {
	TopEmotion(frame Frame) (emotion string, score float64, ok bool, err error)
}
