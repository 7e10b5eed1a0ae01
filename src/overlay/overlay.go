// Package overlay runs one fullscreen selection session over a captured frame.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"math"
	"sync"

	"github.com/hashicorp/go-multierror"

	"gpix/src/region"
	"gpix/src/render"
	"gpix/src/screenshot"
)

var ErrAlreadyOpen = errors.New("overlay session already open")

// Surface is a borderless, always-on-top native window with a current GL
// context. Every method must be called from the thread that created it.
type Surface interface {
	render.Layout
	Device() render.Device
	// SetEventHandler registers the receiver of pointer and key events; they
	// are dispatched from PollEvents.
	SetEventHandler(func(render.Event))
	PollEvents()
	ShouldClose() bool
	SwapBuffers()
	Destroy() error
}

// SurfaceSpec describes the surface for one frame. Bounds is the display area
// in logical coordinates. PixelWidth and PixelHeight are the framebuffer size
// the surface must end up with, so each texel lands on one screen pixel.
type SurfaceSpec struct {
	Bounds      image.Rectangle
	PixelWidth  int
	PixelHeight int
	ScaleFactor float64
}

// PixelBounds is the area in device pixels, for window systems whose screen
// coordinates are device pixels.
func (s SurfaceSpec) PixelBounds() image.Rectangle {
	scale := s.ScaleFactor
	if scale <= 0 {
		scale = 1
	}
	x := int(math.Round(float64(s.Bounds.Min.X) * scale))
	y := int(math.Round(float64(s.Bounds.Min.Y) * scale))
	return image.Rect(x, y, x+s.PixelWidth, y+s.PixelHeight)
}

// SurfaceFactory creates a fullscreen surface for spec.
type SurfaceFactory interface {
	Create(spec SurfaceSpec) (Surface, error)
}

// Selector defines a synchronous region-selection API owned by the event loop.
// The call is blocking and MUST be invoked only from the event-loop goroutine.
// If cancelled is true the rect is undefined; err is set only when the
// session failed rather than being dismissed by the user.
type Selector interface {
	Select(ctx context.Context, frame *screenshot.Frame) (region.Rect, bool, error)
}

type Options struct {
	Factory   SurfaceFactory
	DimAmount float64
}

// Manager allows at most one open session at a time.
type Manager struct {
	factory SurfaceFactory
	dim     float64

	mu     sync.Mutex
	active *Session
}

func NewManager(opts Options) *Manager {
	return &Manager{factory: opts.Factory, dim: opts.DimAmount}
}

// Session is an open overlay. It holds the frame until Close.
type Session struct {
	surface  Surface
	renderer *render.Renderer
	frame    *screenshot.Frame

	done    bool
	outcome render.Outcome
	closed  bool
}

// Open shows the overlay for frame. The surface covers the frame's logical
// bounds with a framebuffer at the frame's physical resolution.
func (m *Manager) Open(frame *screenshot.Frame) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return nil, ErrAlreadyOpen
	}
	if m.factory == nil {
		return nil, errors.New("overlay: no surface factory")
	}
	if err := frame.Validate(); err != nil {
		return nil, err
	}

	spec := SurfaceSpec{
		Bounds:      image.Rect(0, 0, frame.LogicalWidth, frame.LogicalHeight),
		PixelWidth:  frame.PhysicalWidth,
		PixelHeight: frame.PhysicalHeight,
		ScaleFactor: frame.ScaleFactor,
	}
	surface, err := m.factory.Create(spec)
	if err != nil {
		return nil, fmt.Errorf("overlay: create surface: %w", err)
	}
	if fw, fh := surface.FramebufferSize(); fw != spec.PixelWidth || fh != spec.PixelHeight {
		log.Printf("overlay: WARNING surface framebuffer %dx%d, frame %dx%d; the overlay will not map 1:1 to the screen",
			fw, fh, spec.PixelWidth, spec.PixelHeight)
	}

	r, err := render.New(render.Options{Device: surface.Device(), Layout: surface, DimAmount: m.dim})
	if err != nil {
		return nil, destroyAfter(surface, err)
	}
	if err := r.Upload(frame); err != nil {
		r.Close()
		return nil, destroyAfter(surface, err)
	}
	surface.SetEventHandler(r.HandleEvent)

	s := &Session{surface: surface, renderer: r, frame: frame}
	m.active = s
	log.Printf("overlay: opened %v for frame %dx%d (scale %.2f)", spec.Bounds, frame.PhysicalWidth, frame.PhysicalHeight, frame.ScaleFactor)
	return s, nil
}

func destroyAfter(surface Surface, cause error) error {
	var result *multierror.Error
	result = multierror.Append(result, cause)
	if err := surface.Destroy(); err != nil {
		result = multierror.Append(result, fmt.Errorf("overlay: destroy surface: %w", err))
	}
	return result.ErrorOrNil()
}

// Wait drives the render loop until the session produces its outcome. Each
// iteration dispatches input, draws one frame and swaps, paced by vsync.
// Cancelling ctx ends the session as a cancellation carrying ctx.Err().
func (s *Session) Wait(ctx context.Context) render.Outcome {
	if s.done {
		return s.outcome
	}
	for {
		if !s.closed {
			s.surface.PollEvents()
			if s.surface.ShouldClose() {
				log.Printf("overlay: window closed by user")
				s.renderer.Close()
			}
		}
		if err := ctx.Err(); err != nil {
			s.renderer.Close()
		}

		select {
		case out := <-s.renderer.Result():
			if out.Cancelled && out.Err == nil && ctx.Err() != nil {
				out.Err = ctx.Err()
			}
			s.done, s.outcome = true, out
			return out
		default:
		}

		if err := s.renderer.RenderFrame(); err == nil && s.renderer.Running() {
			s.surface.SwapBuffers()
		}
	}
}

// Close stops the render loop, releases GPU resources and then the surface.
// Closing a session twice is a no-op.
func (m *Manager) Close(s *Session) error {
	if s == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var result *multierror.Error
	s.renderer.Close()
	s.surface.SetEventHandler(nil)
	if err := s.surface.Destroy(); err != nil {
		result = multierror.Append(result, fmt.Errorf("overlay: destroy surface: %w", err))
	}
	s.frame = nil
	if m.active == s {
		m.active = nil
	}
	log.Printf("overlay: closed")
	return result.ErrorOrNil()
}

// Select opens a session for frame, blocks until the user selects or
// cancels, and always closes the session before returning.
func (m *Manager) Select(ctx context.Context, frame *screenshot.Frame) (rect region.Rect, cancelled bool, err error) {
	s, err := m.Open(frame)
	if err != nil {
		return region.Rect{}, false, err
	}
	defer func() {
		if cerr := m.Close(s); cerr != nil {
			log.Printf("overlay: close: %v", cerr)
		}
	}()

	out := s.Wait(ctx)
	if out.Cancelled {
		return region.Rect{}, true, out.Err
	}
	return out.Rect, false, nil
}
