package render_test

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpix/src/region"
	"gpix/src/render"
	"gpix/src/render/rendertest"
	"gpix/src/screenshot"
)

func newFrame(w, h int) *screenshot.Frame {
	return &screenshot.Frame{
		Pixels:         make([]byte, w*h*4),
		PhysicalWidth:  w,
		PhysicalHeight: h,
		ScaleFactor:    1,
		LogicalWidth:   w,
		LogicalHeight:  h,
	}
}

func setup(t *testing.T, canvasW, canvasH int, displayW, displayH float64) (*render.Renderer, *rendertest.Device, *rendertest.Layout) {
	t.Helper()
	dev := rendertest.NewDevice()
	layout := &rendertest.Layout{DisplayW: displayW, DisplayH: displayH, FramebufW: canvasW, FramebufH: canvasH}
	r, err := render.New(render.Options{Device: dev, Layout: layout, DimAmount: render.DefaultDimAmount})
	require.NoError(t, err)
	require.NoError(t, r.Upload(newFrame(canvasW, canvasH)))
	return r, dev, layout
}

func drag(r *render.Renderer, x0, y0, x1, y1 float64) {
	r.HandleEvent(render.Event{Kind: render.PointerDown, X: x0, Y: y0})
	r.HandleEvent(render.Event{Kind: render.PointerMove, X: x1, Y: y1})
	r.HandleEvent(render.Event{Kind: render.PointerUp, X: x1, Y: y1})
}

func outcome(t *testing.T, r *render.Renderer) render.Outcome {
	t.Helper()
	select {
	case out := <-r.Result():
		return out
	default:
		t.Fatal("no outcome delivered")
		return render.Outcome{}
	}
}

func TestDragReportsNormalizedRect(t *testing.T) {
	tests := []struct {
		name           string
		x0, y0, x1, y1 float64
	}{
		{"forward", 10, 10, 110, 60},
		{"reverse", 110, 60, 10, 10},
		{"mixed", 110, 10, 10, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := setup(t, 200, 100, 200, 100)
			drag(r, tt.x0, tt.y0, tt.x1, tt.y1)
			out := outcome(t, r)
			assert.False(t, out.Cancelled)
			assert.Equal(t, region.Rect{X: 10, Y: 10, Width: 100, Height: 50}, out.Rect)
			assert.False(t, r.Running())
		})
	}
}

func TestPointerScaledToPhysicalPixels(t *testing.T) {
	r, _, _ := setup(t, 2880, 1620, 1920, 1080)
	drag(r, 100, 100, 200, 200)
	out := outcome(t, r)
	assert.Equal(t, region.Rect{X: 150, Y: 150, Width: 150, Height: 150}, out.Rect)
}

func TestDisplaySizeReadPerEvent(t *testing.T) {
	r, _, layout := setup(t, 400, 400, 400, 400)
	r.HandleEvent(render.Event{Kind: render.PointerDown, X: 10, Y: 10})
	layout.Resize(200, 200)
	r.HandleEvent(render.Event{Kind: render.PointerUp, X: 50, Y: 50})
	out := outcome(t, r)
	assert.Equal(t, region.Rect{X: 10, Y: 10, Width: 90, Height: 90}, out.Rect)
}

func TestPointerClampedToCanvas(t *testing.T) {
	r, _, _ := setup(t, 100, 100, 100, 100)
	drag(r, 50, 50, 500, -20)
	out := outcome(t, r)
	assert.Equal(t, region.Rect{X: 50, Y: 0, Width: 50, Height: 50}, out.Rect)
}

func TestRoundingAtReport(t *testing.T) {
	// 1.5x scale: display 3.3 -> canvas 4.95, display 70.1 -> 105.15
	r, _, _ := setup(t, 300, 300, 200, 200)
	drag(r, 3.3, 3.3, 70.1, 70.1)
	out := outcome(t, r)
	assert.Equal(t, region.Rect{X: 5, Y: 5, Width: 100, Height: 100}, out.Rect)
}

func TestSmallDragIgnored(t *testing.T) {
	r, _, _ := setup(t, 200, 200, 200, 200)
	drag(r, 10, 10, 14, 100)
	drag(r, 10, 10, 100, 14)
	select {
	case out := <-r.Result():
		t.Fatalf("unexpected outcome %+v", out)
	default:
	}
	assert.True(t, r.Running())

	drag(r, 10, 10, 15, 15)
	out := outcome(t, r)
	assert.Equal(t, region.Rect{X: 10, Y: 10, Width: 5, Height: 5}, out.Rect)
}

func TestMoveWithoutPressIgnored(t *testing.T) {
	r, _, _ := setup(t, 200, 200, 200, 200)
	r.HandleEvent(render.Event{Kind: render.PointerMove, X: 50, Y: 50})
	r.HandleEvent(render.Event{Kind: render.PointerUp, X: 80, Y: 80})
	assert.True(t, r.Running())
	assert.Empty(t, r.Result())
}

func TestEscapeCancelsAndReleasesInOrder(t *testing.T) {
	for _, dragging := range []bool{false, true} {
		r, dev, _ := setup(t, 100, 100, 100, 100)
		if dragging {
			r.HandleEvent(render.Event{Kind: render.PointerDown, X: 10, Y: 10})
			r.HandleEvent(render.Event{Kind: render.PointerMove, X: 60, Y: 60})
		}
		r.HandleEvent(render.Event{Kind: render.Cancel})
		r.HandleEvent(render.Event{Kind: render.Cancel})
		r.Close()

		out := outcome(t, r)
		assert.True(t, out.Cancelled)
		assert.NoError(t, out.Err)
		assert.Empty(t, r.Result(), "outcome must be delivered once")
		assert.Equal(t, 0, dev.Live(), "all GPU handles released")

		var deletes []string
		for _, c := range dev.Calls() {
			if strings.HasPrefix(string(c), "Delete") {
				deletes = append(deletes, strings.Fields(string(c))[0])
			}
		}
		assert.Equal(t, []string{"DeleteTexture", "DeleteBuffer", "DeleteBuffer", "DeleteProgram", "DeleteProgram"}, deletes)
	}
}

func TestEventsIgnoredAfterOutcome(t *testing.T) {
	r, dev, _ := setup(t, 200, 200, 200, 200)
	drag(r, 10, 10, 110, 110)
	drag(r, 20, 20, 120, 120)
	r.HandleEvent(render.Event{Kind: render.Cancel})
	out := outcome(t, r)
	assert.Equal(t, region.Rect{X: 10, Y: 10, Width: 100, Height: 100}, out.Rect)
	assert.Empty(t, r.Result())

	before := len(dev.Calls())
	require.NoError(t, r.RenderFrame())
	assert.Len(t, dev.Calls(), before, "no drawing after teardown")
}

func TestRenderFrameDimsEverythingWithoutSelection(t *testing.T) {
	r, dev, _ := setup(t, 100, 50, 100, 50)
	require.NoError(t, r.RenderFrame())

	assert.Equal(t, []float32{0}, dev.Uniform("u_hasSelection"))
	assert.Equal(t, []float32{0.5}, dev.Uniform("u_dimAmount"))
	draws := dev.Draws()
	require.Len(t, draws, 1)
	assert.Equal(t, render.TriangleStrip, draws[0].Mode)
	assert.Equal(t, 4, draws[0].Count)
}

func TestRenderFrameDrawsSelectionAndBorder(t *testing.T) {
	r, dev, _ := setup(t, 200, 100, 200, 100)
	r.HandleEvent(render.Event{Kind: render.PointerDown, X: 50, Y: 25})
	r.HandleEvent(render.Event{Kind: render.PointerMove, X: 150, Y: 75})
	require.NoError(t, r.RenderFrame())

	assert.Equal(t, []float32{1}, dev.Uniform("u_hasSelection"))
	assert.Equal(t, []float32{0.25, 0.25, 0.5, 0.5}, dev.Uniform("u_selectionRect"))
	assert.Equal(t, []float32{1, 0, 0, 1}, dev.Uniform("u_borderColor"))

	draws := dev.Draws()
	require.Len(t, draws, 2)
	border := draws[1]
	assert.Equal(t, render.Lines, border.Mode)
	assert.Equal(t, 8, border.Count)
	assert.Equal(t, []float32{
		-0.5, 0.5, 0.5, 0.5,
		0.5, 0.5, 0.5, -0.5,
		0.5, -0.5, -0.5, -0.5,
		-0.5, -0.5, -0.5, 0.5,
	}, dev.BufferData(border.Buffer))
}

func TestShaderCompileFailureReleasesPartialState(t *testing.T) {
	dev := rendertest.NewDevice()
	dev.CompileErrAt = 2
	dev.CompileErr = errors.New("0:3: syntax error")
	_, err := render.New(render.Options{Device: dev, Layout: &rendertest.Layout{}})
	require.ErrorIs(t, err, render.ErrShaderCompile)
	assert.Equal(t, 0, dev.Live())
}

func TestContextLostCancelsWithError(t *testing.T) {
	r, dev, _ := setup(t, 100, 100, 100, 100)
	dev.SetErr(render.ErrContextLost)
	err := r.RenderFrame()
	require.ErrorIs(t, err, render.ErrContextLost)

	out := outcome(t, r)
	assert.True(t, out.Cancelled)
	assert.ErrorIs(t, out.Err, render.ErrContextLost)
	assert.False(t, r.Running())
	assert.Equal(t, 0, dev.Live())
}

func TestUploadRejectsInvalidFrame(t *testing.T) {
	dev := rendertest.NewDevice()
	r, err := render.New(render.Options{Device: dev, Layout: &rendertest.Layout{}})
	require.NoError(t, err)
	bad := newFrame(10, 10)
	bad.Pixels = bad.Pixels[:12]
	assert.Error(t, r.Upload(bad))
	assert.False(t, r.Running())

	require.NoError(t, r.Upload(newFrame(10, 10)))
	assert.Error(t, r.Upload(newFrame(10, 10)), "texture is immutable")
	r.Close()
	assert.Equal(t, 0, dev.Live())
}

func TestFramebufferMismatchWarnsOncePerSize(t *testing.T) {
	var logs bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&logs)
	t.Cleanup(func() { log.SetOutput(prev) })

	r, _, layout := setup(t, 300, 150, 300, 150)
	require.NoError(t, r.RenderFrame())
	assert.NotContains(t, logs.String(), "WARNING")

	layout.ResizeFramebuffer(200, 100)
	require.NoError(t, r.RenderFrame())
	require.NoError(t, r.RenderFrame())
	assert.Equal(t, 1, strings.Count(logs.String(), "framebuffer 200x100 differs from canvas 300x150"))

	layout.ResizeFramebuffer(300, 150)
	require.NoError(t, r.RenderFrame())
	layout.ResizeFramebuffer(200, 100)
	require.NoError(t, r.RenderFrame())
	assert.Equal(t, 2, strings.Count(logs.String(), "framebuffer 200x100 differs from canvas 300x150"))
}

func TestAxisAlignedDragDrawsNoSelection(t *testing.T) {
	tests := []struct {
		name   string
		x1, y1 float64
	}{
		{"horizontal", 150, 25},
		{"vertical", 50, 75},
		{"rounds to empty width", 50.4, 75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, dev, _ := setup(t, 200, 100, 200, 100)
			r.HandleEvent(render.Event{Kind: render.PointerDown, X: 50, Y: 25})
			r.HandleEvent(render.Event{Kind: render.PointerMove, X: tt.x1, Y: tt.y1})
			require.NoError(t, r.RenderFrame())

			assert.Equal(t, []float32{0}, dev.Uniform("u_hasSelection"))
			assert.Len(t, dev.Draws(), 1, "no border for an empty rect")
		})
	}
}

func TestThinDragDrawsSelection(t *testing.T) {
	r, dev, _ := setup(t, 200, 100, 200, 100)
	r.HandleEvent(render.Event{Kind: render.PointerDown, X: 50, Y: 25})
	r.HandleEvent(render.Event{Kind: render.PointerMove, X: 150, Y: 25.6})
	require.NoError(t, r.RenderFrame())

	assert.Equal(t, []float32{1}, dev.Uniform("u_hasSelection"))
	require.Len(t, dev.Draws(), 2)
}
