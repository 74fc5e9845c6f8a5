// Package proctoring contains the webcam evidence aggregator, the emotion
// classifier contract it samples, and the pure suspicion evaluator applied
// to the collected evidence at grading time.
package proctoring

import (
	"context"
	"image"
	"image/color"
)

// Labels is the fixed emotion label set, in the order the classifier emits
// probabilities. Labels are lowercase everywhere: the evaluator, the stored
// per-emotion counters, and the wire formats all use these exact strings.
var Labels = []string{"angry", "disgust", "fear", "happy", "sad", "surprise", "neutral"}

// Classifier shape expected by NormalizeFrame.
const (
	FrameWidth  = 96
	FrameHeight = 96
)

// Frame is a normalized grayscale frame: row-major pixels scaled to [0, 1].
type Frame struct {
	Width  int
	Height int
	Pixels []float32
}

// Classifier is the external emotion model. Classify returns one probability
// per entry of Labels, in order. Implementations live outside this service;
// the aggregator only depends on this contract.
type Classifier interface {
	Classify(ctx context.Context, frame Frame) ([]float64, error)
}

// FrameSource supplies raw video frames. Close releases the underlying
// camera/stream resource and must be safe to call exactly once; the
// aggregator calls it on every exit path.
type FrameSource interface {
	Capture(ctx context.Context) (image.Image, error)
	Close() error
}

// NormalizeFrame converts a raw frame into the classifier's expected shape:
// FrameWidth x FrameHeight grayscale, nearest-neighbour resampled, scaled to
// [0, 1].
func NormalizeFrame(img image.Image) Frame {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	pixels := make([]float32, FrameWidth*FrameHeight)
	if srcW == 0 || srcH == 0 {
		return Frame{Width: FrameWidth, Height: FrameHeight, Pixels: pixels}
	}

	for y := 0; y < FrameHeight; y++ {
		srcY := bounds.Min.Y + y*srcH/FrameHeight
		for x := 0; x < FrameWidth; x++ {
			srcX := bounds.Min.X + x*srcW/FrameWidth
			g := color.GrayModel.Convert(img.At(srcX, srcY)).(color.Gray)
			pixels[y*FrameWidth+x] = float32(g.Y) / 255.0
		}
	}

	return Frame{Width: FrameWidth, Height: FrameHeight, Pixels: pixels}
}

// argmax returns the index and value of the largest probability.
func argmax(probs []float64) (int, float64) {
	best, bestVal := -1, 0.0
	for i, p := range probs {
		if best == -1 || p > bestVal {
			best, bestVal = i, p
		}
	}
	return best, bestVal
}
