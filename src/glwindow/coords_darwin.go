package glwindow

const screenCoordsArePixels = false
