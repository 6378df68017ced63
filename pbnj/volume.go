package pbnj

import (
	"errors"
	"fmt"

	"github.com/gmlewis/pbnj/engine"
)

// Volume is a scalar field with a transfer function. Its engine handles are
// built on first use, one per device, and cached until the transfer function
// changes.
//
// A Volume owns its engine handles. Renderers bind them but never release them.
type Volume struct {
	data     dataFile
	filename string
	tf       TransferFunction
	id       ID

	handles map[engine.Device]*engine.Volume
}

type volumeOptions struct {
	memoryMap  bool
	sampleType SampleType
}

// VolumeOption configures NewVolume.
type VolumeOption func(*volumeOptions)

// WithMemoryMap maps the data file into memory instead of reading it.
func WithMemoryMap() VolumeOption {
	return func(o *volumeOptions) { o.memoryMap = true }
}

// WithSampleType sets the encoding of the raw samples. The default is Float32.
func WithSampleType(t SampleType) VolumeOption {
	return func(o *volumeOptions) { o.sampleType = t }
}

// NewVolume loads a raw headerless volume of x*y*z samples with x varying
// fastest.
func NewVolume(filename string, x, y, z int, opts ...VolumeOption) (*Volume, error) {
	var o volumeOptions
	for _, opt := range opts {
		opt(&o)
	}
	data, err := loadRaw(filename, [3]int{x, y, z}, o.sampleType, o.memoryMap)
	if err != nil {
		Logger().Warn("pbnj: unable to load volume", "filename", filename, "error", err)
		return nil, err
	}
	Logger().Debug("pbnj: loaded volume", "filename", filename, "dims", data.Dims(), "mmap", o.memoryMap)
	return newVolume(data, filename), nil
}

// NewVolumeFromVariable loads the named variable of a NetCDF file.
func NewVolumeFromVariable(filename, variable string) (*Volume, error) {
	data, err := loadVariable(filename, variable)
	if err != nil {
		Logger().Warn("pbnj: unable to load volume", "filename", filename, "variable", variable, "error", err)
		return nil, err
	}
	Logger().Debug("pbnj: loaded volume", "filename", filename, "variable", variable, "dims", data.Dims())
	return newVolume(data, filename), nil
}

// NewVolumeFromField wraps an in-memory field. Samples are copied.
func NewVolumeFromField(field engine.ScalarField) (*Volume, error) {
	if field == nil {
		return nil, errors.New("pbnj: nil field")
	}
	dims := field.Dims()
	if dims[0] < 1 || dims[1] < 1 || dims[2] < 1 {
		return nil, fmt.Errorf("pbnj: invalid field dimensions %v: %w", dims, ErrDimensionMismatch)
	}
	return newVolume(&gridFile{dims: dims, samples: engine.Flatten(field)}, ""), nil
}

func newVolume(data dataFile, filename string) *Volume {
	return &Volume{
		data:     data,
		filename: filename,
		tf:       DefaultTransferFunction(),
		id:       nextID(),
	}
}

// ID returns the identity of the current configuration of v.
func (v *Volume) ID() ID { return v.id }

// Filename returns the file the volume was loaded from, if any.
func (v *Volume) Filename() string { return v.filename }

// Dims returns the number of samples along X, Y and Z.
func (v *Volume) Dims() [3]int {
	if v.data == nil {
		return [3]int{}
	}
	return v.data.Dims()
}

// At returns the sample at a grid position.
func (v *Volume) At(x, y, z int) float32 { return v.data.At(x, y, z) }

// Bounds returns the extents of the volume as [X, Y, Z].
func (v *Volume) Bounds() []int {
	d := v.Dims()
	return []int{d[0], d[1], d[2]}
}

// TransferFunction returns a copy of the current transfer function.
func (v *Volume) TransferFunction() TransferFunction { return v.tf.clone() }

// AttenuateOpacity scales every opacity control point by amount.
func (v *Volume) AttenuateOpacity(amount float32) {
	for i := range v.tf.OpacityMap {
		v.tf.OpacityMap[i] *= amount
	}
	v.invalidate()
}

// SetColorMap replaces the color control points with flat RGB triples.
func (v *Volume) SetColorMap(points []float32) error {
	if err := checkColorMap(points); err != nil {
		return err
	}
	v.tf.ColorMap = append([]float32(nil), points...)
	v.invalidate()
	return nil
}

// SetColorMapPreset replaces the color map with a named preset.
func (v *Volume) SetColorMapPreset(name string) error {
	p, err := ColorMapPreset(name)
	if err != nil {
		return err
	}
	v.tf.ColorMap = p
	v.invalidate()
	return nil
}

// SetOpacityMap replaces the opacity control points.
func (v *Volume) SetOpacityMap(points []float32) error {
	if err := checkOpacityMap(points); err != nil {
		return err
	}
	v.tf.OpacityMap = append([]float32(nil), points...)
	v.invalidate()
	return nil
}

// SetValueRange sets the scalar range the transfer function spans.
// A range with lo == hi selects the range of the data.
func (v *Volume) SetValueRange(lo, hi float32) {
	v.tf.Range = [2]float32{lo, hi}
	v.invalidate()
}

// invalidate drops the engine handles, which are immutable once committed,
// and issues a new ID so bound renderers rebuild.
func (v *Volume) invalidate() {
	v.releaseHandles()
	v.id = nextID()
}

func (v *Volume) releaseHandles() {
	for dev, h := range v.handles {
		h.Release()
		delete(v.handles, dev)
	}
}

// Object returns the engine volume for dev, building it on first use.
// Handles on other devices are left alone.
func (v *Volume) Object(dev engine.Device) (*engine.Volume, error) {
	if v.data == nil {
		return nil, fmt.Errorf("pbnj: volume: %w", engine.ErrReleased)
	}
	if h := v.handles[dev]; h != nil && !h.Released() {
		return h, nil
	}
	h, err := dev.NewVolume(v.data, v.tf.engineTransferFunction())
	if err != nil {
		return nil, fmt.Errorf("pbnj: building volume: %w", err)
	}
	if v.handles == nil {
		v.handles = make(map[engine.Device]*engine.Volume)
	}
	v.handles[dev] = h
	return h, nil
}

// Release frees the engine handles and any memory mapping. The volume
// cannot be used afterwards.
func (v *Volume) Release() error {
	v.releaseHandles()
	if v.data == nil {
		return nil
	}
	err := v.data.Close()
	v.data = nil
	return err
}
