// Package glwindow provides overlay surfaces backed by a GLFW window and an
// OpenGL 2.1 context. GLFW must run on the main OS thread; importing this
// package locks the main goroutine to it.
package glwindow

import (
	"fmt"
	"image"
	"log"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"gpix/src/gldevice"
	"gpix/src/overlay"
	"gpix/src/render"
)

func init() {
	runtime.LockOSThread()
}

const title = "gpix selection"

// Factory creates one window per overlay session and terminates GLFW when
// the window is destroyed.
type Factory struct{}

var _ overlay.SurfaceFactory = Factory{}

func (Factory) Create(spec overlay.SurfaceSpec) (overlay.Surface, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw init: %w", err)
	}

	glfw.DefaultWindowHints()
	glfw.WindowHint(glfw.Decorated, glfw.False)
	glfw.WindowHint(glfw.Floating, glfw.True)
	glfw.WindowHint(glfw.Resizable, glfw.False)
	glfw.WindowHint(glfw.AutoIconify, glfw.False)
	glfw.WindowHint(glfw.FocusOnShow, glfw.True)
	glfw.WindowHint(glfw.ScaleToMonitor, glfw.False)
	glfw.WindowHint(glfw.ContextVersionMajor, 2)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)

	bounds := windowBounds(spec)
	win, err := glfw.CreateWindow(bounds.Dx(), bounds.Dy(), title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("glfw create window: %w", err)
	}
	win.SetPos(bounds.Min.X, bounds.Min.Y)
	win.MakeContextCurrent()
	glfw.SwapInterval(1)

	dev, err := gldevice.New()
	if err != nil {
		win.Destroy()
		glfw.Terminate()
		return nil, err
	}

	s := &surface{win: win, dev: dev}
	s.cursor = glfw.CreateStandardCursor(glfw.CrosshairCursor)
	win.SetCursor(s.cursor)
	s.installCallbacks()
	win.Focus()

	fw, fh := win.GetFramebufferSize()
	log.Printf("overlay: window %v, framebuffer %dx%d (want %dx%d), %s", bounds, fw, fh, spec.PixelWidth, spec.PixelHeight, dev.Version())
	return s, nil
}

// windowBounds picks the window rectangle in GLFW screen coordinates. Where
// those are device pixels (Windows with per-monitor DPI awareness, X11) the
// window takes the pixel size directly; on macOS they are points and the
// framebuffer is scaled by the backing store.
func windowBounds(spec overlay.SurfaceSpec) image.Rectangle {
	if screenCoordsArePixels {
		return spec.PixelBounds()
	}
	return spec.Bounds
}

type surface struct {
	win     *glfw.Window
	cursor  *glfw.Cursor
	dev     *gldevice.Device
	handler func(render.Event)
}

func (s *surface) installCallbacks() {
	s.win.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		if button != glfw.MouseButtonLeft {
			return
		}
		x, y := w.GetCursorPos()
		switch action {
		case glfw.Press:
			s.emit(render.Event{Kind: render.PointerDown, X: x, Y: y})
		case glfw.Release:
			s.emit(render.Event{Kind: render.PointerUp, X: x, Y: y})
		}
	})
	s.win.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		s.emit(render.Event{Kind: render.PointerMove, X: x, Y: y})
	})
	s.win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			s.emit(render.Event{Kind: render.Cancel})
		}
	})
	s.win.SetFocusCallback(func(_ *glfw.Window, focused bool) {
		if !focused {
			log.Printf("overlay: focus lost")
		}
	})
}

func (s *surface) emit(ev render.Event) {
	if s.handler != nil {
		s.handler(ev)
	}
}

func (s *surface) Device() render.Device                { return s.dev }
func (s *surface) SetEventHandler(h func(render.Event)) { s.handler = h }
func (s *surface) PollEvents()                          { glfw.PollEvents() }
func (s *surface) ShouldClose() bool                    { return s.win.ShouldClose() }
func (s *surface) SwapBuffers()                         { s.win.SwapBuffers() }

func (s *surface) DisplaySize() (float64, float64) {
	w, h := s.win.GetSize()
	return float64(w), float64(h)
}

func (s *surface) FramebufferSize() (int, int) {
	return s.win.GetFramebufferSize()
}

// Destroy releases the cursor and window and terminates GLFW. GLFW reports
// late errors by panicking; those are returned instead.
func (s *surface) Destroy() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("glfw destroy: %v", r)
		}
	}()
	if s.win == nil {
		return nil
	}
	s.handler = nil
	if s.cursor != nil {
		s.cursor.Destroy()
		s.cursor = nil
	}
	s.win.Destroy()
	s.win = nil
	glfw.Terminate()
	return nil
}
