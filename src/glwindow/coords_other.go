//go:build !darwin

package glwindow

const screenCoordsArePixels = true
