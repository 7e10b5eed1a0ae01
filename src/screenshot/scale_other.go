//go:build !windows

package screenshot

const boundsArePhysical = false

// systemScaleFactor has no portable source outside Windows; SCALE_FACTOR
// overrides it when the desktop is scaled. kbinani captures macOS Retina
// displays at point resolution, so there the delivered frame is smaller than
// the requested one and Capture logs the drift.
func systemScaleFactor() float64 { return 1 }
