package render

// Program, Texture and Buffer are opaque GPU handles. Zero means "none".
type (
	Program uint32
	Texture uint32
	Buffer  uint32
)

type DrawMode int

const (
	TriangleStrip DrawMode = iota
	Lines
)

// Device is the slice of a GL 2.1 context the renderer needs. Every call must
// be made on the thread that owns the context.
type Device interface {
	CompileProgram(vertexSrc, fragmentSrc string) (Program, error)
	// CreateTexture uploads tightly packed RGBA rows, top row first, with
	// nearest filtering and clamp-to-edge wrapping.
	CreateTexture(pix []byte, width, height int) (Texture, error)
	CreateBuffer(data []float32, dynamic bool) (Buffer, error)
	UpdateBuffer(b Buffer, data []float32)

	Viewport(width, height int)
	Clear()
	UseProgram(p Program)
	BindTexture(t Texture, unit int)
	Uniform1i(p Program, name string, v int32)
	Uniform1f(p Program, name string, v float32)
	Uniform4f(p Program, name string, x, y, z, w float32)
	SetLineWidth(w float32)
	// Draw feeds b as a vec2 attribute named attrib and issues count vertices.
	Draw(p Program, b Buffer, attrib string, mode DrawMode, count int)

	DeleteTexture(t Texture)
	DeleteBuffer(b Buffer)
	DeleteProgram(p Program)

	// Err reports a pending device error. ErrContextLost means the context is
	// gone and nothing more can be drawn.
	Err() error
}

// Layout reports the current size of the surface the renderer draws into.
type Layout interface {
	// DisplaySize is the on-screen size pointer coordinates are expressed in.
	DisplaySize() (width, height float64)
	FramebufferSize() (width, height int)
}
