// Package opengl implements engine.Device by ray marching the volume in a
// GLSL fragment shader. The volume lives in a 3D texture and the frame is
// drawn into an offscreen framebuffer of a hidden GLFW window.
package opengl

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/gmlewis/pbnj/engine"
	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// maxIsovalues is the number of isovalues the shader evaluates.
const maxIsovalues = 4

// Device is a rendering backend using OpenGL 4.1.
type Device struct {
	engine.Base

	window  *glfw.Window
	program uint32
	vao     uint32
	vbo     uint32

	uniforms map[string]int32

	// Resources of the most recently rendered volume.
	volume     *engine.Volume
	volumeTex  uint32
	tableTex   uint32
	hasTexture bool

	// Offscreen target of the most recent framebuffer size.
	width, height int
	fbo, rbo      uint32
}

// Device implements the engine.Device interface.
var _ engine.Device = &Device{}

// New creates a hidden window, an OpenGL context and the ray marching program.
func New() (*Device, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw.Init: %v", err)
	}

	glfw.WindowHint(glfw.Resizable, glfw.False)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Visible, glfw.False)
	window, err := glfw.CreateWindow(1, 1, "pbnj", nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("CreateWindow: %v", err)
	}
	window.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("gl.Init: %v", err)
	}
	engine.Logger().Info("opengl: context ready", "version", gl.GoStr(gl.GetString(gl.VERSION)))

	d := &Device{window: window, uniforms: map[string]int32{}}
	if d.program, err = newProgram(vertexShader, fragmentShader); err != nil {
		d.Close()
		return nil, fmt.Errorf("newProgram: %v", err)
	}
	for _, name := range uniformNames {
		d.uniforms[name] = gl.GetUniformLocation(d.program, gl.Str(name+"\x00"))
	}

	gl.GenVertexArrays(1, &d.vao)
	gl.BindVertexArray(d.vao)
	gl.GenBuffers(1, &d.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, d.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(quadVertices)*4, gl.Ptr(quadVertices), gl.STATIC_DRAW)
	vertAttrib := uint32(gl.GetAttribLocation(d.program, gl.Str("vert\x00")))
	gl.EnableVertexAttribArray(vertAttrib)
	gl.VertexAttribPointer(vertAttrib, 2, gl.FLOAT, false, 2*4, gl.PtrOffset(0))

	gl.Disable(gl.DEPTH_TEST)
	gl.ClearColor(0.0, 0.0, 0.0, 0.0)
	return d, nil
}

func (d *Device) Name() string { return "opengl" }

func (d *Device) prepareVolume(v *engine.Volume) {
	if d.hasTexture && d.volume == v {
		return
	}
	d.releaseVolume()

	dims := v.Field.Dims()
	voxels := engine.Flatten(v.Field)
	gl.GenTextures(1, &d.volumeTex)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_3D, d.volumeTex)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexImage3D(gl.TEXTURE_3D, 0, gl.R32F, int32(dims[0]), int32(dims[1]), int32(dims[2]), 0, gl.RED, gl.FLOAT, gl.Ptr(voxels))
	for _, p := range []uint32{gl.TEXTURE_MIN_FILTER, gl.TEXTURE_MAG_FILTER} {
		gl.TexParameteri(gl.TEXTURE_3D, p, gl.LINEAR)
	}
	for _, p := range []uint32{gl.TEXTURE_WRAP_S, gl.TEXTURE_WRAP_T, gl.TEXTURE_WRAP_R} {
		gl.TexParameteri(gl.TEXTURE_3D, p, gl.CLAMP_TO_EDGE)
	}

	table := make([]float32, 0, 4*len(v.Table))
	for _, c := range v.Table {
		table = append(table, c[0], c[1], c[2], c[3])
	}
	gl.GenTextures(1, &d.tableTex)
	gl.ActiveTexture(gl.TEXTURE1)
	gl.BindTexture(gl.TEXTURE_2D, d.tableTex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA32F, int32(len(v.Table)), 1, 0, gl.RGBA, gl.FLOAT, gl.Ptr(table))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)

	d.volume = v
	d.hasTexture = true
	engine.Logger().Debug("opengl: uploaded volume", "dims", dims)
}

func (d *Device) prepareTarget(width, height int) error {
	if d.fbo != 0 && d.width == width && d.height == height {
		return nil
	}
	d.releaseTarget()
	d.width, d.height = width, height

	gl.GenFramebuffers(1, &d.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, d.fbo)
	gl.GenRenderbuffers(1, &d.rbo)
	gl.BindRenderbuffer(gl.RENDERBUFFER, d.rbo)
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.RGBA8, int32(width), int32(height))
	gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.RENDERBUFFER, d.rbo)
	if status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER); status != gl.FRAMEBUFFER_COMPLETE {
		return fmt.Errorf("incomplete framebuffer: 0x%x", status)
	}
	return nil
}

// RenderFrame renders one pass of r into fb.
func (d *Device) RenderFrame(fb *engine.FrameBuffer, r *engine.Renderer, channels engine.Channel) error {
	f, err := d.BeginFrame(fb, r)
	if err != nil {
		return err
	}
	p, err := engine.NewShaderParams(f, maxIsovalues)
	if err != nil {
		return err
	}
	d.prepareVolume(p.Volume)
	if err := d.prepareTarget(fb.Width, fb.Height); err != nil {
		return err
	}

	gl.BindFramebuffer(gl.FRAMEBUFFER, d.fbo)
	gl.Viewport(0, 0, int32(fb.Width), int32(fb.Height))
	gl.Clear(gl.COLOR_BUFFER_BIT)
	gl.UseProgram(d.program)
	d.setUniforms(p)

	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_3D, d.volumeTex)
	gl.ActiveTexture(gl.TEXTURE1)
	gl.BindTexture(gl.TEXTURE_2D, d.tableTex)
	gl.BindVertexArray(d.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, 2*3)

	if e := gl.GetError(); e != gl.NO_ERROR {
		return fmt.Errorf("after gl.DrawArrays: GL ERROR: %v", e)
	}

	// ReadPixels returns the bottom row first, matching the framebuffer layout.
	pix := make([]uint8, 4*fb.Width*fb.Height)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(fb.Width), int32(fb.Height), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(&pix[0]))
	if e := gl.GetError(); e != gl.NO_ERROR {
		return fmt.Errorf("after gl.ReadPixels: GL ERROR: %v", e)
	}
	for i := 0; i < fb.Width*fb.Height; i++ {
		fb.SetSample(i, mgl32.Vec4{
			engine.FromByte(pix[4*i]), engine.FromByte(pix[4*i+1]), engine.FromByte(pix[4*i+2]), engine.FromByte(pix[4*i+3]),
		})
	}
	glfw.PollEvents()

	d.EndFrame(f)
	return nil
}

func (d *Device) setUniforms(p engine.ShaderParams) {
	v := p.Volume
	dims := v.Field.Dims()
	gl.UniformMatrix4fv(d.uniforms["invViewProj"], 1, false, &p.InvViewProj[0])
	gl.Uniform3f(d.uniforms["eye"], p.Eye[0], p.Eye[1], p.Eye[2])
	gl.Uniform3f(d.uniforms["lo"], v.Lo[0], v.Lo[1], v.Lo[2])
	gl.Uniform3f(d.uniforms["dims"], float32(dims[0]), float32(dims[1]), float32(dims[2]))
	gl.Uniform3f(d.uniforms["background"], p.Background[0], p.Background[1], p.Background[2])
	gl.Uniform3f(d.uniforms["lightDir"], p.LightDir[0], p.LightDir[1], p.LightDir[2])
	gl.Uniform3f(d.uniforms["kd"], p.Material.Kd[0], p.Material.Kd[1], p.Material.Kd[2])
	gl.Uniform3f(d.uniforms["ks"], p.Material.Ks[0], p.Material.Ks[1], p.Material.Ks[2])
	gl.Uniform1f(d.uniforms["ns"], p.Material.Ns)
	gl.Uniform1f(d.uniforms["opacity"], p.Material.D)
	gl.Uniform1f(d.uniforms["ambient"], engine.Ambient)
	gl.Uniform2f(d.uniforms["valueRange"], v.TF.ValueRange[0], v.TF.ValueRange[1])
	gl.Uniform2f(d.uniforms["viewport"], float32(p.Width), float32(p.Height))
	var iso [maxIsovalues]float32
	copy(iso[:], p.Isovalues)
	gl.Uniform4f(d.uniforms["iso"], iso[0], iso[1], iso[2], iso[3])
	gl.Uniform1i(d.uniforms["numIso"], int32(len(p.Isovalues)))
	gl.Uniform1i(d.uniforms["isosurface"], boolInt(p.Isosurface))
	gl.Uniform1i(d.uniforms["oneSided"], boolInt(p.OneSided))
	gl.Uniform1i(d.uniforms["samples"], int32(p.Samples))
	gl.Uniform1i(d.uniforms["volumeTex"], 0)
	gl.Uniform1i(d.uniforms["tableTex"], 1)
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func (d *Device) releaseVolume() {
	if d.hasTexture {
		gl.DeleteTextures(1, &d.volumeTex)
		gl.DeleteTextures(1, &d.tableTex)
		d.hasTexture = false
	}
	d.volume = nil
}

func (d *Device) releaseTarget() {
	if d.fbo != 0 {
		gl.DeleteFramebuffers(1, &d.fbo)
		gl.DeleteRenderbuffers(1, &d.rbo)
		d.fbo, d.rbo = 0, 0
	}
}

// Close deletes the GL objects and terminates GLFW.
func (d *Device) Close() error {
	if n := d.Stats().TotalLive(); n > 0 {
		engine.Logger().Warn("opengl: device closed with live objects", "count", n)
	}
	if d.window == nil {
		return nil
	}
	d.releaseVolume()
	d.releaseTarget()
	if d.vbo != 0 {
		gl.DeleteBuffers(1, &d.vbo)
	}
	if d.vao != 0 {
		gl.DeleteVertexArrays(1, &d.vao)
	}
	if d.program != 0 {
		gl.DeleteProgram(d.program)
	}
	glfw.Terminate()
	d.window = nil
	return nil
}

func newProgram(vertexShaderSource, fragmentShaderSource string) (uint32, error) {
	vertexShader, err := compileShader(vertexShaderSource, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}

	fragmentShader, err := compileShader(fragmentShaderSource, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, err
	}

	program := gl.CreateProgram()

	gl.AttachShader(program, vertexShader)
	gl.AttachShader(program, fragmentShader)
	gl.BindFragDataLocation(program, 0, gl.Str("outputColor\x00"))
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)

		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))

		return 0, fmt.Errorf("failed to link program: %v", log)
	}

	gl.DeleteShader(vertexShader)
	gl.DeleteShader(fragmentShader)

	return program, nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)

	csources, free := gl.Strs(source)
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)

		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))

		return 0, fmt.Errorf("failed to compile shader: %v", log)
	}

	return shader, nil
}

var quadVertices = []float32{
	-1, -1, 1, -1, -1, 1,
	1, -1, 1, 1, -1, 1,
}
