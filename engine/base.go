package engine

import (
	"errors"
	"fmt"
	"slices"
)

// Base implements the object factory part of Device. Backends embed it and
// add Name, RenderFrame and Close. A Base must not be copied after use.
type Base struct {
	tracker tracker
}

func (b *Base) Stats() Stats { return b.tracker.snapshot() }

func (b *Base) NewRenderer() (*Renderer, error) {
	r := &Renderer{object: newObject(&b.tracker, KindRenderer)}
	r.pending.SamplesPerPixel = 1
	r.pending.AOSamples = 1
	return r, nil
}

// NewVolume returns a committed volume. The transfer function's value range
// defaults to the range of the field when it is empty.
func (b *Base) NewVolume(field ScalarField, tf TransferFunction) (*Volume, error) {
	if field == nil {
		return nil, errors.New("engine: nil scalar field")
	}
	dims := field.Dims()
	if dims[0] < 1 || dims[1] < 1 || dims[2] < 1 {
		return nil, fmt.Errorf("engine: invalid volume dimensions %v", dims)
	}
	if len(tf.Colors) == 0 || len(tf.Opacities) == 0 {
		return nil, errors.New("engine: transfer function needs at least one color and one opacity")
	}
	if tf.ValueRange[0] == tf.ValueRange[1] {
		lo, hi := ValueRange(field)
		tf.ValueRange = [2]float32{lo, hi}
	}
	tf.Colors = slices.Clone(tf.Colors)
	tf.Opacities = slices.Clone(tf.Opacities)

	v := &Volume{
		object: newObject(&b.tracker, KindVolume),
		Field:  field,
		TF:     tf,
		Table:  tf.Table(TableSize),
	}
	v.Lo, v.Hi = gridBounds(dims)
	v.committed = true
	return v, nil
}

func (b *Base) NewCamera(desc CameraDesc) (*Camera, error) {
	if desc.Width < 1 || desc.Height < 1 {
		return nil, fmt.Errorf("engine: invalid camera image size %vx%v", desc.Width, desc.Height)
	}
	if desc.View.Len() == 0 || desc.Up.Len() == 0 {
		return nil, errors.New("engine: camera view and up vectors must be non-zero")
	}
	c := &Camera{object: newObject(&b.tracker, KindCamera), Desc: desc}
	c.committed = true
	return c, nil
}

func (b *Base) NewLight(desc LightDesc) (*Light, error) {
	if desc.Direction.Len() == 0 {
		return nil, errors.New("engine: light direction must be non-zero")
	}
	desc.Direction = desc.Direction.Normalize()
	l := &Light{object: newObject(&b.tracker, KindLight), Desc: desc}
	l.committed = true
	return l, nil
}

func (b *Base) NewMaterial(desc MaterialDesc) (*Material, error) {
	m := &Material{object: newObject(&b.tracker, KindMaterial), Desc: desc}
	m.committed = true
	return m, nil
}

func (b *Base) NewIsosurfaces(volume *Volume, isovalues []float32, material *Material) (*Isosurfaces, error) {
	if volume == nil {
		return nil, errors.New("engine: isosurfaces need a volume")
	}
	if err := volume.checkUsable(); err != nil {
		return nil, err
	}
	if material != nil {
		if err := material.checkUsable(); err != nil {
			return nil, err
		}
	}
	if len(isovalues) == 0 {
		return nil, errors.New("engine: isosurfaces need at least one isovalue")
	}
	g := &Isosurfaces{
		object:    newObject(&b.tracker, KindGeometry),
		Volume:    volume,
		Isovalues: slices.Clone(isovalues),
		Material:  material,
	}
	g.committed = true
	return g, nil
}

// NewModel returns an empty model which must be committed before use.
func (b *Base) NewModel() (*Model, error) {
	return &Model{object: newObject(&b.tracker, KindModel)}, nil
}

func (b *Base) NewFrameBuffer(width, height int, format Format, channels Channel) (*FrameBuffer, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("engine: invalid framebuffer size %vx%v", width, height)
	}
	fb := &FrameBuffer{
		object:   newObject(&b.tracker, KindFrameBuffer),
		Width:    width,
		Height:   height,
		Format:   format,
		Channels: channels,
		Color:    make([]uint8, 4*width*height),
		Accum:    make([]float32, 4*width*height),
	}
	fb.committed = true
	return fb, nil
}

// Frame is the validated input of one render pass.
type Frame struct {
	Params RendererParams
	Model  *Model
	Camera CameraDesc
	Target *FrameBuffer
}

// BeginFrame validates fb and the committed state of r.
func (b *Base) BeginFrame(fb *FrameBuffer, r *Renderer) (*Frame, error) {
	if fb == nil || r == nil {
		return nil, errors.New("engine: nil framebuffer or renderer")
	}
	if err := fb.checkUsable(); err != nil {
		return nil, err
	}
	if err := r.checkUsable(); err != nil {
		return nil, err
	}
	p := r.Current()
	if p.Model == nil || p.Camera == nil {
		return nil, ErrIncomplete
	}
	if err := p.Model.validate(); err != nil {
		return nil, err
	}
	if err := p.Camera.checkUsable(); err != nil {
		return nil, err
	}
	for _, l := range p.Lights {
		if err := l.checkUsable(); err != nil {
			return nil, err
		}
	}
	if p.SamplesPerPixel < 1 {
		p.SamplesPerPixel = 1
	}
	if p.AOSamples < 0 {
		p.AOSamples = 0
	}
	cam := p.Camera.Desc
	cam.Width, cam.Height = fb.Width, fb.Height
	return &Frame{Params: p, Model: p.Model, Camera: cam, Target: fb}, nil
}

// EndFrame resolves the accumulated samples into the color channel.
func (b *Base) EndFrame(f *Frame) {
	f.Target.resolve()
	b.tracker.frame()
}
