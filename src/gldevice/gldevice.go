// Package gldevice implements render.Device on an OpenGL 2.1 context via go-gl.
package gldevice

import (
	"fmt"
	"strings"

	"github.com/go-gl/gl/v2.1/gl"

	"gpix/src/render"
)

// Device wraps the GL context current on the calling thread. Create it after
// the context is made current and use it only from that thread.
type Device struct {
	uniforms map[render.Program]map[string]int32
	attribs  map[render.Program]map[string]int32
}

// New loads the GL function pointers for the current context.
func New() (*Device, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("gl init: %w", err)
	}
	return &Device{
		uniforms: map[render.Program]map[string]int32{},
		attribs:  map[render.Program]map[string]int32{},
	}, nil
}

// Version reports the driver's GL version string.
func (d *Device) Version() string {
	return gl.GoStr(gl.GetString(gl.VERSION))
}

func compileShader(src string, kind uint32) (uint32, error) {
	shader := gl.CreateShader(kind)
	csrc, free := gl.Strs(src + "\x00")
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		msg := shaderLog(shader)
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compile: %s", msg)
	}
	return shader, nil
}

func shaderLog(shader uint32) string {
	var n int32
	gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &n)
	if n == 0 {
		return "unknown error"
	}
	buf := strings.Repeat("\x00", int(n+1))
	gl.GetShaderInfoLog(shader, n, nil, gl.Str(buf))
	return strings.TrimRight(buf, "\x00")
}

func programLog(program uint32) string {
	var n int32
	gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &n)
	if n == 0 {
		return "unknown error"
	}
	buf := strings.Repeat("\x00", int(n+1))
	gl.GetProgramInfoLog(program, n, nil, gl.Str(buf))
	return strings.TrimRight(buf, "\x00")
}

func (d *Device) CompileProgram(vertexSrc, fragmentSrc string) (render.Program, error) {
	vs, err := compileShader(vertexSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, fmt.Errorf("vertex shader: %w", err)
	}
	fs, err := compileShader(fragmentSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		gl.DeleteShader(vs)
		return 0, fmt.Errorf("fragment shader: %w", err)
	}

	prog := gl.CreateProgram()
	gl.AttachShader(prog, vs)
	gl.AttachShader(prog, fs)
	gl.LinkProgram(prog)
	// Shaders are flagged for deletion and go away with the program.
	gl.DeleteShader(vs)
	gl.DeleteShader(fs)

	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		msg := programLog(prog)
		gl.DeleteProgram(prog)
		return 0, fmt.Errorf("link: %s", msg)
	}
	return render.Program(prog), nil
}

func (d *Device) CreateTexture(pix []byte, width, height int) (render.Texture, error) {
	if len(pix) != width*height*4 {
		return 0, fmt.Errorf("texture data is %d bytes, want %d", len(pix), width*height*4)
	}
	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(width), int32(height), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pix))
	if code := gl.GetError(); code != gl.NO_ERROR {
		gl.DeleteTextures(1, &tex)
		return 0, glError(code)
	}
	return render.Texture(tex), nil
}

func (d *Device) CreateBuffer(data []float32, dynamic bool) (render.Buffer, error) {
	var buf uint32
	gl.GenBuffers(1, &buf)
	usage := uint32(gl.STATIC_DRAW)
	if dynamic {
		usage = gl.DYNAMIC_DRAW
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, buf)
	gl.BufferData(gl.ARRAY_BUFFER, len(data)*4, gl.Ptr(data), usage)
	if code := gl.GetError(); code != gl.NO_ERROR {
		gl.DeleteBuffers(1, &buf)
		return 0, glError(code)
	}
	return render.Buffer(buf), nil
}

func (d *Device) UpdateBuffer(b render.Buffer, data []float32) {
	gl.BindBuffer(gl.ARRAY_BUFFER, uint32(b))
	gl.BufferSubData(gl.ARRAY_BUFFER, 0, len(data)*4, gl.Ptr(data))
}

func (d *Device) Viewport(width, height int) {
	gl.Viewport(0, 0, int32(width), int32(height))
}

func (d *Device) Clear() {
	gl.ClearColor(0, 0, 0, 0)
	gl.Clear(gl.COLOR_BUFFER_BIT)
}

func (d *Device) UseProgram(p render.Program) { gl.UseProgram(uint32(p)) }

func (d *Device) BindTexture(t render.Texture, unit int) {
	gl.ActiveTexture(gl.TEXTURE0 + uint32(unit))
	gl.BindTexture(gl.TEXTURE_2D, uint32(t))
}

func (d *Device) uniform(p render.Program, name string) int32 {
	cache, ok := d.uniforms[p]
	if !ok {
		cache = map[string]int32{}
		d.uniforms[p] = cache
	}
	loc, ok := cache[name]
	if !ok {
		loc = gl.GetUniformLocation(uint32(p), gl.Str(name+"\x00"))
		cache[name] = loc
	}
	return loc
}

func (d *Device) attrib(p render.Program, name string) int32 {
	cache, ok := d.attribs[p]
	if !ok {
		cache = map[string]int32{}
		d.attribs[p] = cache
	}
	loc, ok := cache[name]
	if !ok {
		loc = gl.GetAttribLocation(uint32(p), gl.Str(name+"\x00"))
		cache[name] = loc
	}
	return loc
}

func (d *Device) Uniform1i(p render.Program, name string, v int32) {
	gl.Uniform1i(d.uniform(p, name), v)
}

func (d *Device) Uniform1f(p render.Program, name string, v float32) {
	gl.Uniform1f(d.uniform(p, name), v)
}

func (d *Device) Uniform4f(p render.Program, name string, x, y, z, w float32) {
	gl.Uniform4f(d.uniform(p, name), x, y, z, w)
}

func (d *Device) SetLineWidth(w float32) { gl.LineWidth(w) }

func (d *Device) Draw(p render.Program, b render.Buffer, attrib string, mode render.DrawMode, count int) {
	loc := d.attrib(p, attrib)
	if loc < 0 {
		return
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, uint32(b))
	gl.EnableVertexAttribArray(uint32(loc))
	gl.VertexAttribPointer(uint32(loc), 2, gl.FLOAT, false, 0, nil)

	glMode := uint32(gl.TRIANGLE_STRIP)
	if mode == render.Lines {
		glMode = gl.LINES
	}
	gl.DrawArrays(glMode, 0, int32(count))
	gl.DisableVertexAttribArray(uint32(loc))
}

func (d *Device) DeleteTexture(t render.Texture) {
	tex := uint32(t)
	gl.DeleteTextures(1, &tex)
}

func (d *Device) DeleteBuffer(b render.Buffer) {
	buf := uint32(b)
	gl.DeleteBuffers(1, &buf)
}

func (d *Device) DeleteProgram(p render.Program) {
	delete(d.uniforms, p)
	delete(d.attribs, p)
	gl.DeleteProgram(uint32(p))
}

// Err drains the GL error queue. GL 2.1 has no context-loss notification, so
// GL_OUT_OF_MEMORY, after which the context state is undefined, is reported
// as render.ErrContextLost.
func (d *Device) Err() error {
	var first error
	for i := 0; i < 8; i++ {
		code := gl.GetError()
		if code == gl.NO_ERROR {
			break
		}
		if code == gl.OUT_OF_MEMORY {
			return render.ErrContextLost
		}
		if first == nil {
			first = glError(code)
		}
	}
	return first
}

func glError(code uint32) error {
	switch code {
	case gl.INVALID_ENUM:
		return fmt.Errorf("gl: invalid enum")
	case gl.INVALID_VALUE:
		return fmt.Errorf("gl: invalid value")
	case gl.INVALID_OPERATION:
		return fmt.Errorf("gl: invalid operation")
	case gl.OUT_OF_MEMORY:
		return render.ErrContextLost
	}
	return fmt.Errorf("gl: error 0x%x", code)
}
