package screenshot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"math"
	"time"
)

var (
	ErrNoDisplaySource = errors.New("no display source available")
	ErrCaptureTimeout  = errors.New("screen capture timed out")
)

// DefaultTimeout bounds a single OS capture call.
const DefaultTimeout = 5 * time.Second

// driftWarnPixels is how far the delivered size may drift from the requested
// size before it is logged as a warning.
const driftWarnPixels = 2

// Frame is one captured image of the primary display at physical resolution.
// Pixels are packed R,G,B,A, row-major, stride PhysicalWidth*4.
type Frame struct {
	Pixels         []byte
	PhysicalWidth  int
	PhysicalHeight int
	ScaleFactor    float64
	LogicalWidth   int
	LogicalHeight  int
}

// Validate checks the buffer length against the declared dimensions.
func (f *Frame) Validate() error {
	if f == nil {
		return errors.New("nil frame")
	}
	if f.PhysicalWidth <= 0 || f.PhysicalHeight <= 0 {
		return fmt.Errorf("invalid frame dimensions: %dx%d", f.PhysicalWidth, f.PhysicalHeight)
	}
	if want := f.PhysicalWidth * f.PhysicalHeight * 4; len(f.Pixels) != want {
		return fmt.Errorf("frame buffer is %d bytes, want %d for %dx%d", len(f.Pixels), want, f.PhysicalWidth, f.PhysicalHeight)
	}
	return nil
}

// Display describes the primary display in logical coordinates.
type Display struct {
	Bounds      image.Rectangle
	ScaleFactor float64
}

// DisplaySource answers the display-bounds / scale-factor query.
type DisplaySource interface {
	PrimaryDisplay() (Display, error)
}

// Raw is what an OS grabber hands back: the delivered pixels and their actual size.
type Raw struct {
	Pix    []byte
	Width  int
	Height int
	Order  ChannelOrder
}

// Grabber performs the synchronous OS capture at the requested physical size.
// Implementations may deliver a slightly different size; the caller trusts the
// delivered one.
type Grabber interface {
	Grab(width, height int) (Raw, error)
}

type Options struct {
	Displays DisplaySource
	Grabber  Grabber
	Timeout  time.Duration
}

// Service acquires one Frame per Capture call.
type Service struct {
	displays DisplaySource
	grabber  Grabber
	timeout  time.Duration
}

// NewService builds a capture service. Nil collaborators fall back to the
// kbinani/screenshot implementations.
func NewService(opts Options) *Service {
	s := &Service{displays: opts.Displays, grabber: opts.Grabber, timeout: opts.Timeout}
	if s.displays == nil {
		s.displays = KbinaniDisplays{}
	}
	if s.grabber == nil {
		s.grabber = KbinaniGrabber{}
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	return s
}

// PhysicalSize converts a logical size to device pixels.
func PhysicalSize(logicalWidth, logicalHeight int, scale float64) (int, int) {
	if scale <= 0 {
		scale = 1
	}
	return int(math.Round(float64(logicalWidth) * scale)), int(math.Round(float64(logicalHeight) * scale))
}

// Capture grabs the primary display. The returned frame uses the size the OS
// actually delivered, which can differ from logical×scale by OS rounding.
func (s *Service) Capture(ctx context.Context) (*Frame, error) {
	display, err := s.displays.PrimaryDisplay()
	if err != nil {
		return nil, err
	}
	scale := display.ScaleFactor
	if scale <= 0 {
		scale = 1
	}
	logicalW, logicalH := display.Bounds.Dx(), display.Bounds.Dy()
	if logicalW <= 0 || logicalH <= 0 {
		return nil, fmt.Errorf("%w: empty display bounds %v", ErrNoDisplaySource, display.Bounds)
	}
	reqW, reqH := PhysicalSize(logicalW, logicalH, scale)
	log.Printf("capture: display %dx%d (logical), scale %.2f, requesting %dx%d", logicalW, logicalH, scale, reqW, reqH)

	raw, err := s.grabWithTimeout(ctx, reqW, reqH)
	if err != nil {
		log.Printf("capture: failed: %v", err)
		return nil, err
	}
	if raw.Width <= 0 || raw.Height <= 0 || len(raw.Pix) == 0 {
		return nil, ErrNoDisplaySource
	}
	if raw.Width != reqW || raw.Height != reqH {
		log.Printf("capture: delivered %dx%d differs from requested %dx%d, using delivered size", raw.Width, raw.Height, reqW, reqH)
		if abs(raw.Width-reqW) > driftWarnPixels || abs(raw.Height-reqH) > driftWarnPixels {
			log.Printf("capture: WARNING size drift exceeds %dpx, crops may be offset", driftWarnPixels)
		}
	}

	if raw.Order == OrderBGRA {
		NormalizeChannelOrder(raw.Pix)
	}

	frame := &Frame{
		Pixels:         raw.Pix,
		PhysicalWidth:  raw.Width,
		PhysicalHeight: raw.Height,
		ScaleFactor:    scale,
		LogicalWidth:   logicalW,
		LogicalHeight:  logicalH,
	}
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	log.Printf("capture: frame ready %dx%d", frame.PhysicalWidth, frame.PhysicalHeight)
	return frame, nil
}

func (s *Service) grabWithTimeout(ctx context.Context, w, h int) (Raw, error) {
	resCh := make(chan struct {
		raw Raw
		err error
	}, 1)
	go func() {
		raw, err := s.grabber.Grab(w, h)
		resCh <- struct {
			raw Raw
			err error
		}{raw, err}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case r := <-resCh:
		return r.raw, r.err
	case <-timer.C:
		// The OS call keeps running in the background; its result is dropped.
		return Raw{}, fmt.Errorf("%w after %s", ErrCaptureTimeout, s.timeout)
	case <-ctx.Done():
		return Raw{}, ctx.Err()
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
