package screenshot

import (
	"fmt"
	"image"
	"log"
	"math"

	"github.com/kbinani/screenshot"
)

// KbinaniDisplays reads the primary display through kbinani/screenshot.
// ScaleOverride, when positive, replaces the OS-reported scale factor.
type KbinaniDisplays struct {
	ScaleOverride float64
}

func (d KbinaniDisplays) PrimaryDisplay() (Display, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return Display{}, ErrNoDisplaySource
	}
	b := screenshot.GetDisplayBounds(0)
	scale := d.ScaleOverride
	if scale <= 0 {
		scale = systemScaleFactor()
	}
	if boundsArePhysical && scale != 1 {
		// DPI-aware processes see device pixels; derive the logical size back.
		lw := int(math.Round(float64(b.Dx()) / scale))
		lh := int(math.Round(float64(b.Dy()) / scale))
		b = image.Rect(b.Min.X, b.Min.Y, b.Min.X+lw, b.Min.Y+lh)
	}
	return Display{Bounds: b, ScaleFactor: scale}, nil
}

// KbinaniGrabber captures the primary display's native bounds. kbinani has no
// resolution parameter, so the requested size is only compared against what
// the OS delivers.
type KbinaniGrabber struct{}

func (KbinaniGrabber) Grab(width, height int) (Raw, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return Raw{}, ErrNoDisplaySource
	}
	bounds := screenshot.GetDisplayBounds(0)
	if bounds.Dx() != width || bounds.Dy() != height {
		log.Printf("capture: native bounds %dx%d, requested %dx%d", bounds.Dx(), bounds.Dy(), width, height)
	}
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return Raw{}, fmt.Errorf("capture primary display: %w", err)
	}
	if img == nil {
		return Raw{}, ErrNoDisplaySource
	}
	return rawFromRGBA(img), nil
}

// rawFromRGBA returns tightly packed pixels, copying only when the image has
// row padding or a non-zero origin.
func rawFromRGBA(img *image.RGBA) Raw {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	rowBytes := w * 4
	if img.Stride == rowBytes && len(img.Pix) == rowBytes*h {
		return Raw{Pix: img.Pix, Width: w, Height: h, Order: OrderRGBA}
	}
	pix := make([]byte, rowBytes*h)
	for y := 0; y < h; y++ {
		src := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		copy(pix[y*rowBytes:(y+1)*rowBytes], img.Pix[src:src+rowBytes])
	}
	return Raw{Pix: pix, Width: w, Height: h, Order: OrderRGBA}
}
