package pbnj

import (
	"errors"
	"fmt"
	"image"
	"slices"

	"github.com/gmlewis/pbnj/engine"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrNoModel is returned by Render when no volume or isosurface is bound.
	ErrNoModel = errors.New("pbnj: no volume set to render")
	// ErrNoCamera is returned by Render when no camera is bound.
	ErrNoCamera = errors.New("pbnj: no camera set to render with")
)

// RenderMode is what a Renderer draws of its bound volume.
type RenderMode int

const (
	ModeNone       RenderMode = iota // nothing bound
	ModeVolume                       // direct volume rendering
	ModeIsosurface                   // lit isosurfaces at fixed isovalues
)

func (m RenderMode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeVolume:
		return "volume"
	case ModeIsosurface:
		return "isosurface"
	}
	return fmt.Sprintf("RenderMode(%d)", int(m))
}

// ParseRenderMode parses "volume" or "isosurface". The empty string selects
// ModeVolume.
func ParseRenderMode(s string) (RenderMode, error) {
	switch s {
	case "", "volume":
		return ModeVolume, nil
	case "isosurface":
		return ModeIsosurface, nil
	}
	return ModeNone, fmt.Errorf("unknown render mode %q", s)
}

// Default isosurface lighting.
var (
	isoLightDirection = mgl32.Vec3{0, -1, 1}
	isoMaterial       = engine.MaterialDesc{
		Kd: mgl32.Vec3{1, 1, 1},
		Ks: mgl32.Vec3{0.05, 0.05, 0.05},
		Ns: 10,
		D:  1,
	}
)

const isoLightAngularDiameter = 0.53

// Renderer binds a volume and a camera into a scene and renders images of it.
// Rebinding the same volume, mode and camera is free; any change rebuilds
// only the engine objects it affects.
//
// A Renderer owns the engine renderer, model, isosurface geometry, material
// and light it creates. It does not own the handles of bound volumes and
// cameras. A Renderer is not safe for concurrent use.
type Renderer struct {
	dev      engine.Device
	renderer *engine.Renderer
	model    *engine.Model
	volume   *engine.Volume
	surface  *engine.Isosurfaces
	material *engine.Material
	light    *engine.Light
	camera   *engine.Camera

	background    [3]uint8
	samples       int
	volumeID      ID
	cameraID      ID
	mode          RenderMode
	isovalues     []float32
	width, height int
	tf            TransferFunction
	legend        bool
	closed        bool
}

// NewRenderer returns a renderer on dev with a black background and one
// sample per pixel.
func NewRenderer(dev engine.Device) (*Renderer, error) {
	if dev == nil {
		return nil, errors.New("pbnj: nil device")
	}
	er, err := dev.NewRenderer()
	if err != nil {
		Logger().Warn("pbnj: unable to create renderer", "device", dev.Name(), "error", err)
		return nil, fmt.Errorf("pbnj: creating renderer: %w", err)
	}
	r := &Renderer{dev: dev, renderer: er}
	r.SetSamples(1)
	r.SetBackgroundColor(0, 0, 0)
	return r, nil
}

func (r *Renderer) check() error {
	if r.closed {
		return fmt.Errorf("pbnj: renderer: %w", engine.ErrReleased)
	}
	return nil
}

// Device returns the device the renderer draws on.
func (r *Renderer) Device() engine.Device { return r.dev }

// Mode returns the current render mode.
func (r *Renderer) Mode() RenderMode { return r.mode }

// Isovalues returns a copy of the bound isovalues.
func (r *Renderer) Isovalues() []float32 { return slices.Clone(r.isovalues) }

// BackgroundColor returns the current background color.
func (r *Renderer) BackgroundColor() [3]uint8 { return r.background }

// Samples returns the number of samples per pixel.
func (r *Renderer) Samples() int { return r.samples }

// SetVolume binds v for direct volume rendering.
func (r *Renderer) SetVolume(v *Volume) error {
	if err := r.check(); err != nil {
		return err
	}
	if v == nil {
		return errors.New("pbnj: nil volume")
	}
	if r.bound(v, ModeVolume) {
		return nil
	}

	h, err := v.Object(r.dev)
	if err != nil {
		Logger().Warn("pbnj: unable to bind volume", "error", err)
		return err
	}
	m, err := r.newModel(func(m *engine.Model) error { return m.AddVolume(h) })
	if err != nil {
		Logger().Warn("pbnj: unable to build model", "error", err)
		return err
	}
	Logger().Debug("pbnj: rebuilt volume model", "volume", v.ID())

	r.releaseModel()
	r.releaseSurface()
	r.model, r.volume = m, h
	r.renderer.Params().Model = m
	r.volumeID = v.ID()
	r.mode = ModeVolume
	r.isovalues = nil
	r.tf = v.TransferFunction()
	return nil
}

// SetIsosurface binds the isosurfaces of v at the given isovalues.
func (r *Renderer) SetIsosurface(v *Volume, isovalues []float32) error {
	if err := r.check(); err != nil {
		return err
	}
	if v == nil {
		return errors.New("pbnj: nil volume")
	}
	if len(isovalues) == 0 {
		return errors.New("pbnj: isosurface needs at least one isovalue")
	}
	if r.bound(v, ModeIsosurface) && slices.Equal(r.isovalues, isovalues) {
		return nil
	}

	h, err := v.Object(r.dev)
	if err != nil {
		Logger().Warn("pbnj: unable to bind volume", "error", err)
		return err
	}
	if err := r.ensureLighting(); err != nil {
		Logger().Warn("pbnj: unable to create isosurface lighting", "error", err)
		return err
	}

	s, err := r.dev.NewIsosurfaces(h, isovalues, r.material)
	if err != nil {
		Logger().Warn("pbnj: unable to build isosurface", "error", err)
		return fmt.Errorf("pbnj: building isosurface: %w", err)
	}
	m, err := r.newModel(func(m *engine.Model) error { return m.AddGeometry(s) })
	if err != nil {
		s.Release()
		Logger().Warn("pbnj: unable to build model", "error", err)
		return err
	}
	Logger().Debug("pbnj: rebuilt isosurface model", "volume", v.ID(), "isovalues", isovalues)

	r.releaseModel()
	r.releaseSurface()
	r.surface, r.model, r.volume = s, m, h

	p := r.renderer.Params()
	p.Model = m
	p.AOSamples = max(r.samples/8, 1)
	p.ShadowsEnabled = false
	p.OneSidedLighting = false
	p.Lights = []*engine.Light{r.light}

	r.volumeID = v.ID()
	r.mode = ModeIsosurface
	r.isovalues = slices.Clone(isovalues)
	r.tf = v.TransferFunction()
	return nil
}

// bound reports whether v is already bound in mode with a live handle.
func (r *Renderer) bound(v *Volume, mode RenderMode) bool {
	return r.model != nil && r.mode == mode && r.volumeID == v.ID() &&
		r.volume != nil && !r.volume.Released()
}

// ensureLighting creates the isosurface light and material once.
func (r *Renderer) ensureLighting() error {
	if r.light == nil {
		l, err := r.dev.NewLight(engine.LightDesc{
			Direction:       isoLightDirection,
			Color:           mgl32.Vec3{1, 1, 1},
			Intensity:       1,
			AngularDiameter: isoLightAngularDiameter,
		})
		if err != nil {
			return err
		}
		r.light = l
	}
	if r.material == nil {
		m, err := r.dev.NewMaterial(isoMaterial)
		if err != nil {
			return err
		}
		r.material = m
	}
	return nil
}

func (r *Renderer) newModel(add func(*engine.Model) error) (*engine.Model, error) {
	m, err := r.dev.NewModel()
	if err != nil {
		return nil, fmt.Errorf("pbnj: creating model: %w", err)
	}
	if err := add(m); err != nil {
		m.Release()
		return nil, fmt.Errorf("pbnj: filling model: %w", err)
	}
	if err := m.Commit(); err != nil {
		m.Release()
		return nil, fmt.Errorf("pbnj: committing model: %w", err)
	}
	return m, nil
}

// SetCamera binds c. The image size follows the camera.
func (r *Renderer) SetCamera(c *Camera) error {
	if err := r.check(); err != nil {
		return err
	}
	if c == nil {
		return errors.New("pbnj: nil camera")
	}
	if r.camera != nil && !r.camera.Released() && r.cameraID == c.ID() {
		return nil
	}
	h, err := c.Object(r.dev)
	if err != nil {
		Logger().Warn("pbnj: unable to bind camera", "error", err)
		return err
	}
	r.camera = h
	r.renderer.Params().Camera = h
	r.cameraID = c.ID()
	r.width, r.height = c.Width(), c.Height()
	return nil
}

// SetSamples sets the number of samples per pixel. It has no effect after
// Close.
func (r *Renderer) SetSamples(n int) {
	if r.closed {
		return
	}
	r.samples = n
	p := r.renderer.Params()
	p.SamplesPerPixel = n
	if r.mode == ModeIsosurface {
		p.AOSamples = max(n/8, 1)
	}
}

// SetBackgroundColor sets the color transparent pixels are composited
// over. It has no effect after Close.
func (r *Renderer) SetBackgroundColor(red, green, blue uint8) {
	if r.closed {
		return
	}
	r.background = [3]uint8{red, green, blue}
	r.renderer.Params().Background = mgl32.Vec3{
		float32(red) / 255,
		float32(green) / 255,
		float32(blue) / 255,
	}
}

// SetBackgroundColorSlice sets the background from an RGB triple. An empty
// slice selects black.
func (r *Renderer) SetBackgroundColorSlice(rgb []uint8) error {
	switch len(rgb) {
	case 0:
		r.SetBackgroundColor(0, 0, 0)
	case 3:
		r.SetBackgroundColor(rgb[0], rgb[1], rgb[2])
	default:
		return fmt.Errorf("pbnj: background color needs 3 channels, got %v", len(rgb))
	}
	return nil
}

// SetLegend enables a color map legend on composited images.
func (r *Renderer) SetLegend(on bool) { r.legend = on }

// Render performs one accumulation pass and returns the frame.
// The caller must Release the frame.
func (r *Renderer) Render() (*Frame, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	var errs []error
	if r.model == nil {
		errs = append(errs, ErrNoModel)
	}
	if r.camera == nil {
		errs = append(errs, ErrNoCamera)
	}
	if err := errors.Join(errs...); err != nil {
		Logger().Warn("pbnj: not ready to render", "error", err)
		return nil, err
	}

	if err := r.renderer.Commit(); err != nil {
		return nil, fmt.Errorf("pbnj: committing renderer: %w", err)
	}
	channels := engine.ChannelColor | engine.ChannelAccum
	fb, err := r.dev.NewFrameBuffer(r.width, r.height, engine.FormatSRGBA, channels)
	if err != nil {
		Logger().Warn("pbnj: unable to create framebuffer", "error", err)
		return nil, fmt.Errorf("pbnj: creating framebuffer: %w", err)
	}
	if err := r.dev.RenderFrame(fb, r.renderer, channels); err != nil {
		fb.Release()
		Logger().Warn("pbnj: render failed", "device", r.dev.Name(), "error", err)
		return nil, fmt.Errorf("pbnj: rendering: %w", err)
	}
	return &Frame{fb: fb, background: r.background}, nil
}

// renderComposite renders one frame and converts it to a top-down image.
func (r *Renderer) renderComposite() (*image.RGBA, error) {
	f, err := r.Render()
	if err != nil {
		return nil, err
	}
	defer f.Release()

	img, err := f.Image()
	if err != nil {
		return nil, err
	}
	if r.legend {
		if img, err = drawLegend(img, r.tf); err != nil {
			Logger().Warn("pbnj: unable to draw legend", "error", err)
			return nil, fmt.Errorf("pbnj: legend: %w", err)
		}
	}
	return img, nil
}

// RenderToBuffer renders and returns composited top-down RGBA pixels.
func (r *Renderer) RenderToBuffer() ([]uint8, error) {
	img, err := r.renderComposite()
	if err != nil {
		return nil, err
	}
	return img.Pix, nil
}

// RenderToPNG renders and returns the PNG encoded image.
func (r *Renderer) RenderToPNG() ([]byte, error) {
	img, err := r.renderComposite()
	if err != nil {
		return nil, err
	}
	data, err := encodePNG(img)
	if err != nil {
		Logger().Warn("pbnj: unable to encode png", "error", err)
		return nil, err
	}
	return data, nil
}

// RenderImage renders to filename in the format named by its extension.
// Unknown extensions fail before anything is rendered.
func (r *Renderer) RenderImage(filename string) error {
	format, err := FormatFromFilename(filename)
	if err != nil {
		Logger().Warn("pbnj: unable to save image", "filename", filename, "error", err)
		return err
	}
	return r.RenderImageFormat(filename, format)
}

// RenderImageFormat renders and writes filename in the given format.
func (r *Renderer) RenderImageFormat(filename string, format ImageFormat) error {
	if format != FormatPPM && format != FormatPNG {
		err := fmt.Errorf("%v: %w", format, ErrInvalidFiletype)
		Logger().Warn("pbnj: unable to save image", "filename", filename, "error", err)
		return err
	}
	img, err := r.renderComposite()
	if err != nil {
		return err
	}
	if err := writeImage(filename, format, img); err != nil {
		Logger().Warn("pbnj: unable to save image", "filename", filename, "error", err)
		return err
	}
	Logger().Debug("pbnj: saved image", "filename", filename, "format", format)
	return nil
}

func (r *Renderer) releaseModel() {
	if r.model != nil {
		r.model.Release()
		r.model, r.volume = nil, nil
		r.renderer.Params().Model = nil
	}
}

func (r *Renderer) releaseSurface() {
	if r.surface != nil {
		r.surface.Release()
		r.surface = nil
	}
}

// Close releases every engine object the renderer owns. It is safe to call
// more than once.
func (r *Renderer) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.releaseModel()
	r.releaseSurface()
	if r.material != nil {
		r.material.Release()
		r.material = nil
	}
	if r.light != nil {
		r.light.Release()
		r.light = nil
	}
	r.camera = nil
	r.renderer.Release()
	return nil
}

// Frame is one rendered framebuffer.
type Frame struct {
	fb         *engine.FrameBuffer
	background [3]uint8
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.fb.Width }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.fb.Height }

// Pixels returns the raw bottom-up RGBA pixels of the framebuffer.
func (f *Frame) Pixels() ([]uint8, error) { return f.fb.Pixels() }

// Image returns the frame flipped top-down and composited over the
// background color.
func (f *Frame) Image() (*image.RGBA, error) {
	pix, err := f.fb.Pixels()
	if err != nil {
		return nil, err
	}
	return composite(pix, f.fb.Width, f.fb.Height, f.background), nil
}

// Release frees the framebuffer.
func (f *Frame) Release() { f.fb.Release() }
