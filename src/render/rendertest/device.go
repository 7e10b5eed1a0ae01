// Package rendertest provides an in-memory render.Device that records calls.
package rendertest

import (
	"fmt"
	"sync"

	"gpix/src/render"
)

// Call is one recorded device call, e.g. "DeleteTexture 3".
type Call string

// Device hands out increasing handles and records every call. Set CompileErr
// to fail the Nth CompileProgram call (1-based), and SetErr to make Err report
// a device error.
type Device struct {
	mu sync.Mutex

	CompileErrAt int
	CompileErr   error

	next     uint32
	compiles int
	calls    []Call
	uniforms map[string][]float32
	buffers  map[render.Buffer][]float32
	draws    []Draw
	err      error
	live     map[string]bool
}

type Draw struct {
	Program render.Program
	Buffer  render.Buffer
	Mode    render.DrawMode
	Count   int
}

func NewDevice() *Device {
	return &Device{
		uniforms: map[string][]float32{},
		buffers:  map[render.Buffer][]float32{},
		live:     map[string]bool{},
	}
}

func (d *Device) record(format string, args ...any) {
	d.calls = append(d.calls, Call(fmt.Sprintf(format, args...)))
}

func (d *Device) handle(kind string) uint32 {
	d.next++
	d.live[fmt.Sprintf("%s %d", kind, d.next)] = true
	return d.next
}

func (d *Device) CompileProgram(vs, fs string) (render.Program, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.compiles++
	if d.CompileErr != nil && d.compiles == d.CompileErrAt {
		d.record("CompileProgram error")
		return 0, d.CompileErr
	}
	p := render.Program(d.handle("program"))
	d.record("CompileProgram %d", p)
	return p, nil
}

func (d *Device) CreateTexture(pix []byte, w, h int) (render.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := render.Texture(d.handle("texture"))
	d.record("CreateTexture %d %dx%d", t, w, h)
	return t, nil
}

func (d *Device) CreateBuffer(data []float32, dynamic bool) (render.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := render.Buffer(d.handle("buffer"))
	d.buffers[b] = append([]float32(nil), data...)
	d.record("CreateBuffer %d", b)
	return b, nil
}

func (d *Device) UpdateBuffer(b render.Buffer, data []float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffers[b] = append([]float32(nil), data...)
	d.record("UpdateBuffer %d", b)
}

func (d *Device) Viewport(w, h int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Viewport %dx%d", w, h)
}

func (d *Device) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Clear")
}

func (d *Device) UseProgram(p render.Program) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("UseProgram %d", p)
}

func (d *Device) BindTexture(t render.Texture, unit int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("BindTexture %d", t)
}

func (d *Device) Uniform1i(p render.Program, name string, v int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uniforms[name] = []float32{float32(v)}
}

func (d *Device) Uniform1f(p render.Program, name string, v float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uniforms[name] = []float32{v}
}

func (d *Device) Uniform4f(p render.Program, name string, x, y, z, w float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uniforms[name] = []float32{x, y, z, w}
}

func (d *Device) SetLineWidth(w float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SetLineWidth %g", w)
}

func (d *Device) Draw(p render.Program, b render.Buffer, attrib string, mode render.DrawMode, count int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.draws = append(d.draws, Draw{Program: p, Buffer: b, Mode: mode, Count: count})
	d.record("Draw %d", p)
}

func (d *Device) DeleteTexture(t render.Texture) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.live, fmt.Sprintf("texture %d", t))
	d.record("DeleteTexture %d", t)
}

func (d *Device) DeleteBuffer(b render.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.live, fmt.Sprintf("buffer %d", b))
	d.record("DeleteBuffer %d", b)
}

func (d *Device) DeleteProgram(p render.Program) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.live, fmt.Sprintf("program %d", p))
	d.record("DeleteProgram %d", p)
}

func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.err
	d.err = nil
	return err
}

// SetErr makes the next Err call return err.
func (d *Device) SetErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *Device) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// Uniform returns the last value set for name.
func (d *Device) Uniform(name string) []float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uniforms[name]
}

func (d *Device) BufferData(b render.Buffer) []float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buffers[b]
}

func (d *Device) Draws() []Draw {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Draw(nil), d.draws...)
}

// Live counts handles created and not yet deleted.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// Layout is a fixed-size render.Layout. Fields may be changed between events.
type Layout struct {
	mu sync.Mutex

	DisplayW, DisplayH   float64
	FramebufW, FramebufH int
}

func (l *Layout) DisplaySize() (float64, float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.DisplayW, l.DisplayH
}

func (l *Layout) FramebufferSize() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.FramebufW, l.FramebufH
}

// Resize changes the display size.
func (l *Layout) Resize(w, h float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.DisplayW, l.DisplayH = w, h
}

func (l *Layout) ResizeFramebuffer(w, h int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.FramebufW, l.FramebufH = w, h
}
