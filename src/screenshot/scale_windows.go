//go:build windows

package screenshot

import "golang.org/x/sys/windows"

// With per-monitor DPI awareness enabled, display bounds are device pixels.
const boundsArePhysical = true

var (
	user32              = windows.NewLazySystemDLL("user32.dll")
	procGetDpiForSystem = user32.NewProc("GetDpiForSystem")
)

func systemScaleFactor() float64 {
	if err := procGetDpiForSystem.Find(); err != nil {
		return 1
	}
	dpi, _, _ := procGetDpiForSystem.Call()
	if dpi == 0 {
		return 1
	}
	return float64(dpi) / 96
}
