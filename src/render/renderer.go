// Package render draws the selection overlay: the captured frame as a dimmed
// texture, the live selection at full brightness with a border, and the
// pointer state machine that turns a drag into a region.Rect.
package render

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"

	"gpix/src/region"
	"gpix/src/screenshot"
)

var (
	ErrShaderCompile = errors.New("shader compile failed")
	ErrContextLost   = errors.New("GPU context lost")
)

const (
	DefaultDimAmount    = 0.5
	DefaultMinSelection = 5
	DefaultBorderWidth  = 2
)

var DefaultBorderColor = [4]float32{1, 0, 0, 1}

type EventKind int

const (
	PointerDown EventKind = iota
	PointerMove
	PointerUp
	Cancel
)

func (k EventKind) String() string {
	switch k {
	case PointerDown:
		return "down"
	case PointerMove:
		return "move"
	case PointerUp:
		return "up"
	case Cancel:
		return "cancel"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one input event. X and Y are in display coordinates and are
// ignored for Cancel.
type Event struct {
	Kind EventKind
	X, Y float64
}

// Outcome is the single terminal result of a selection session. Err is set
// only when the session ended because of a device failure; Cancelled is then
// true as well.
type Outcome struct {
	Rect      region.Rect
	Cancelled bool
	Err       error
}

type Options struct {
	Device       Device
	Layout       Layout
	DimAmount    float64
	MinSelection int
	BorderColor  [4]float32
	BorderWidth  float32
}

type drag struct {
	active         bool
	startX, startY float64
	curX, curY     float64
}

// Renderer owns the GPU resources of one overlay session. It is not safe for
// concurrent use; all methods run on the thread that owns the GL context.
type Renderer struct {
	dev    Device
	layout Layout

	dim         float32
	minSize     int
	borderColor [4]float32
	borderWidth float32

	quadProg   Program
	borderProg Program
	quadBuf    Buffer
	borderBuf  Buffer
	texture    Texture

	canvasW, canvasH int
	running          bool
	drag             drag
	// fbWarned is the last mismatched framebuffer size that was logged.
	fbWarned [2]int

	once   sync.Once
	result chan Outcome
}

// New compiles both programs and allocates the vertex buffers. Nothing is
// drawn until Upload succeeds.
func New(opts Options) (*Renderer, error) {
	if opts.Device == nil || opts.Layout == nil {
		return nil, errors.New("render: device and layout are required")
	}
	r := &Renderer{
		dev:         opts.Device,
		layout:      opts.Layout,
		dim:         float32(opts.DimAmount),
		minSize:     opts.MinSelection,
		borderColor: opts.BorderColor,
		borderWidth: opts.BorderWidth,
		result:      make(chan Outcome, 1),
	}
	if opts.DimAmount < 0 || opts.DimAmount > 1 {
		r.dim = DefaultDimAmount
	}
	if r.minSize <= 0 {
		r.minSize = DefaultMinSelection
	}
	if r.borderColor == ([4]float32{}) {
		r.borderColor = DefaultBorderColor
	}
	if r.borderWidth <= 0 {
		r.borderWidth = DefaultBorderWidth
	}

	var err error
	if r.quadProg, err = r.dev.CompileProgram(quadVertexShader, quadFragmentShader); err != nil {
		r.release()
		return nil, fmt.Errorf("%w: screenshot program: %v", ErrShaderCompile, err)
	}
	if r.borderProg, err = r.dev.CompileProgram(borderVertexShader, borderFragmentShader); err != nil {
		r.release()
		return nil, fmt.Errorf("%w: border program: %v", ErrShaderCompile, err)
	}
	if r.quadBuf, err = r.dev.CreateBuffer(quadVertices, false); err != nil {
		r.release()
		return nil, fmt.Errorf("render: quad buffer: %w", err)
	}
	if r.borderBuf, err = r.dev.CreateBuffer(make([]float32, 16), true); err != nil {
		r.release()
		return nil, fmt.Errorf("render: border buffer: %w", err)
	}
	log.Printf("render: programs compiled and linked")
	return r, nil
}

// Upload creates the immutable frame texture and starts the session. The
// canvas takes the frame's physical size.
func (r *Renderer) Upload(frame *screenshot.Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	if r.texture != 0 {
		return errors.New("render: texture already uploaded")
	}
	tex, err := r.dev.CreateTexture(frame.Pixels, frame.PhysicalWidth, frame.PhysicalHeight)
	if err != nil {
		return fmt.Errorf("render: texture upload: %w", err)
	}
	r.texture = tex
	r.canvasW, r.canvasH = frame.PhysicalWidth, frame.PhysicalHeight
	r.running = true
	log.Printf("render: texture uploaded %dx%d", r.canvasW, r.canvasH)
	r.checkFramebuffer(r.layout.FramebufferSize())
	return nil
}

// Running reports whether the session still accepts input and draws frames.
func (r *Renderer) Running() bool { return r.running }

// Result delivers exactly one Outcome per session.
func (r *Renderer) Result() <-chan Outcome { return r.result }

// HandleEvent advances the pointer state machine.
func (r *Renderer) HandleEvent(ev Event) {
	if !r.running {
		return
	}
	switch ev.Kind {
	case Cancel:
		log.Printf("render: selection cancelled")
		r.finish(Outcome{Cancelled: true})
	case PointerDown:
		x, y := r.toCanvas(ev.X, ev.Y)
		r.drag = drag{active: true, startX: x, startY: y, curX: x, curY: y}
	case PointerMove:
		if r.drag.active {
			r.drag.curX, r.drag.curY = r.toCanvas(ev.X, ev.Y)
		}
	case PointerUp:
		if !r.drag.active {
			return
		}
		r.drag.curX, r.drag.curY = r.toCanvas(ev.X, ev.Y)
		rect := r.selection()
		r.drag = drag{}
		if rect.Width < r.minSize || rect.Height < r.minSize {
			log.Printf("render: selection %v below %dpx, ignored", rect, r.minSize)
			return
		}
		log.Printf("render: selection complete %v", rect)
		r.finish(Outcome{Rect: rect})
	}
}

// toCanvas maps display coordinates to physical canvas pixels. The display
// size is read on every call because the surface may be resized.
func (r *Renderer) toCanvas(x, y float64) (float64, float64) {
	dw, dh := r.layout.DisplaySize()
	if dw <= 0 || dh <= 0 {
		dw, dh = float64(r.canvasW), float64(r.canvasH)
	}
	cx := x * float64(r.canvasW) / dw
	cy := y * float64(r.canvasH) / dh
	return clamp(cx, 0, float64(r.canvasW)), clamp(cy, 0, float64(r.canvasH))
}

// selection rounds the drag edges to whole pixels.
func (r *Renderer) selection() region.Rect {
	left := math.Round(math.Min(r.drag.startX, r.drag.curX))
	right := math.Round(math.Max(r.drag.startX, r.drag.curX))
	top := math.Round(math.Min(r.drag.startY, r.drag.curY))
	bottom := math.Round(math.Max(r.drag.startY, r.drag.curY))
	return region.Rect{X: int(left), Y: int(top), Width: int(right - left), Height: int(bottom - top)}
}

// hasSelection reports a drag whose current point has left the start point.
func (r *Renderer) hasSelection() bool {
	return r.drag.active && (r.drag.startX != r.drag.curX || r.drag.startY != r.drag.curY)
}

// RenderFrame draws one frame. Any device error ends the session and is
// reported through Result as a cancellation carrying the error.
func (r *Renderer) RenderFrame() error {
	if !r.running {
		return nil
	}
	fw, fh := r.layout.FramebufferSize()
	r.checkFramebuffer(fw, fh)
	r.dev.Viewport(fw, fh)
	r.dev.Clear()

	r.dev.UseProgram(r.quadProg)
	r.dev.BindTexture(r.texture, 0)
	r.dev.Uniform1i(r.quadProg, "u_screenshot", 0)
	r.dev.Uniform1f(r.quadProg, "u_dimAmount", r.dim)

	// A drag along one axis has an empty rect and draws like no selection.
	var rect region.Rect
	selecting := false
	if r.hasSelection() {
		rect = r.selection()
		selecting = rect.Width > 0 && rect.Height > 0
	}
	if selecting {
		cw, ch := float32(r.canvasW), float32(r.canvasH)
		r.dev.Uniform1i(r.quadProg, "u_hasSelection", 1)
		r.dev.Uniform4f(r.quadProg, "u_selectionRect",
			float32(rect.X)/cw, float32(rect.Y)/ch, float32(rect.Width)/cw, float32(rect.Height)/ch)
	} else {
		r.dev.Uniform1i(r.quadProg, "u_hasSelection", 0)
		r.dev.Uniform4f(r.quadProg, "u_selectionRect", 0, 0, 0, 0)
	}
	r.dev.Draw(r.quadProg, r.quadBuf, "a_position", TriangleStrip, 4)

	if selecting {
		r.dev.UpdateBuffer(r.borderBuf, borderVertices(rect, r.canvasW, r.canvasH))
		r.dev.UseProgram(r.borderProg)
		c := r.borderColor
		r.dev.Uniform4f(r.borderProg, "u_borderColor", c[0], c[1], c[2], c[3])
		r.dev.SetLineWidth(r.borderWidth)
		r.dev.Draw(r.borderProg, r.borderBuf, "a_position", Lines, 8)
	}

	if err := r.dev.Err(); err != nil {
		if errors.Is(err, ErrContextLost) {
			log.Printf("render: context lost, cancelling selection")
		} else {
			log.Printf("render: device error: %v", err)
		}
		r.finish(Outcome{Cancelled: true, Err: err})
		return err
	}
	return nil
}

// checkFramebuffer warns when the framebuffer no longer matches the canvas,
// meaning texels are resampled instead of drawn 1:1. Each distinct size is
// logged once.
func (r *Renderer) checkFramebuffer(fw, fh int) {
	if fw == r.canvasW && fh == r.canvasH {
		r.fbWarned = [2]int{}
		return
	}
	if r.fbWarned == [2]int{fw, fh} {
		return
	}
	r.fbWarned = [2]int{fw, fh}
	log.Printf("render: WARNING framebuffer %dx%d differs from canvas %dx%d, frame is scaled", fw, fh, r.canvasW, r.canvasH)
}

// borderVertices returns the four edges of rect as line pairs in clip space.
func borderVertices(rect region.Rect, canvasW, canvasH int) []float32 {
	w, h := float32(canvasW), float32(canvasH)
	x1 := float32(rect.X)/w*2 - 1
	y1 := 1 - float32(rect.Y)/h*2
	x2 := float32(rect.X+rect.Width)/w*2 - 1
	y2 := 1 - float32(rect.Y+rect.Height)/h*2
	return []float32{
		x1, y1, x2, y1,
		x2, y1, x2, y2,
		x2, y2, x1, y2,
		x1, y2, x1, y1,
	}
}

// Close ends the session if it is still running, reporting a cancellation,
// and releases every GPU resource. Safe to call more than once.
func (r *Renderer) Close() {
	r.finish(Outcome{Cancelled: true})
}

// finish stops the loop and releases GPU resources before the outcome is
// published. Only the first call has any effect.
func (r *Renderer) finish(out Outcome) {
	r.once.Do(func() {
		r.running = false
		r.drag = drag{}
		r.release()
		r.result <- out
	})
}

// release frees the texture, then buffers, then programs.
func (r *Renderer) release() {
	if r.texture != 0 {
		r.dev.DeleteTexture(r.texture)
		r.texture = 0
	}
	if r.quadBuf != 0 {
		r.dev.DeleteBuffer(r.quadBuf)
		r.quadBuf = 0
	}
	if r.borderBuf != 0 {
		r.dev.DeleteBuffer(r.borderBuf)
		r.borderBuf = 0
	}
	if r.quadProg != 0 {
		r.dev.DeleteProgram(r.quadProg)
		r.quadProg = 0
	}
	if r.borderProg != 0 {
		r.dev.DeleteProgram(r.borderProg)
		r.borderProg = 0
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
