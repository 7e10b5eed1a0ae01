// Package region crops selected rectangles out of captured frames.
package region

import (
	"errors"
	"fmt"
	"log"

	"gpix/src/screenshot"
)

var (
	ErrOutOfBounds = errors.New("selection out of frame bounds")
	ErrEmptyRegion = errors.New("selection is empty")
)

// Rect is a selection in physical pixels.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// Check reports whether r is a non-empty rectangle inside a w×h frame.
func (r Rect) Check(w, h int) error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrEmptyRegion, r.Width, r.Height)
	}
	if r.X < 0 || r.Y < 0 || r.X+r.Width > w || r.Y+r.Height > h {
		return fmt.Errorf("%w: %v for frame %dx%d", ErrOutOfBounds, r, w, h)
	}
	return nil
}

// Extract copies the pixels under r into a new tightly packed RGBA buffer.
// The rectangle is not clamped; callers must pass a rectangle that fits.
func Extract(frame *screenshot.Frame, r Rect) ([]byte, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	if err := r.Check(frame.PhysicalWidth, frame.PhysicalHeight); err != nil {
		return nil, err
	}

	srcStride := frame.PhysicalWidth * 4
	rowBytes := r.Width * 4
	out := make([]byte, rowBytes*r.Height)
	for y := 0; y < r.Height; y++ {
		src := (r.Y+y)*srcStride + r.X*4
		copy(out[y*rowBytes:(y+1)*rowBytes], frame.Pixels[src:src+rowBytes])
	}
	log.Printf("region: extracted %v (%d bytes)", r, len(out))
	return out, nil
}
