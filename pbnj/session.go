package pbnj

import (
	"fmt"
	"slices"
)

// LoadVolume loads the data file named by c and applies its transfer
// function settings.
func (c *Configuration) LoadVolume() (*Volume, error) {
	var (
		v   *Volume
		err error
	)
	if c.DataVariable != "" {
		v, err = NewVolumeFromVariable(c.DataFilename, c.DataVariable)
	} else {
		opts := []VolumeOption{WithSampleType(c.DataType)}
		if c.MemoryMap {
			opts = append(opts, WithMemoryMap())
		}
		v, err = NewVolume(c.DataFilename, c.DataXDim, c.DataYDim, c.DataZDim, opts...)
	}
	if err != nil {
		return nil, err
	}

	if err := c.applyTransferFunction(v); err != nil {
		v.Release()
		return nil, err
	}
	return v, nil
}

func (c *Configuration) applyTransferFunction(v *Volume) error {
	switch {
	case len(c.ColorPoints) > 0:
		if err := v.SetColorMap(c.ColorPoints); err != nil {
			return err
		}
	case c.ColorMap != "":
		if err := v.SetColorMapPreset(c.ColorMap); err != nil {
			return err
		}
	}
	if len(c.OpacityMap) > 0 {
		if err := v.SetOpacityMap(c.OpacityMap); err != nil {
			return err
		}
	}
	if c.OpacityAttenuation != 1 {
		v.AttenuateOpacity(c.OpacityAttenuation)
	}
	return nil
}

// NewCamera returns the camera described by c. Without an explicit position
// the camera orbits the origin at twice the largest extent in bounds.
func (c *Configuration) NewCamera(bounds []int) (*Camera, error) {
	cam, err := NewCamera(c.ImageWidth, c.ImageHeight)
	if err != nil {
		return nil, err
	}
	cc := c.Camera
	if cc == nil {
		cc = &CameraConfiguration{}
	}

	if len(cc.Up) == 3 {
		if err := cam.SetUpVector(cc.Up[0], cc.Up[1], cc.Up[2]); err != nil {
			return nil, err
		}
	}
	if cc.Fovy != 0 {
		if err := cam.SetFovy(cc.Fovy); err != nil {
			return nil, err
		}
	}

	switch len(cc.Position) {
	case 0:
		r := cc.OrbitRadius
		if r == 0 && len(bounds) > 0 {
			r = 2 * float32(slices.Max(bounds))
		}
		if r > 0 {
			if err := cam.SetOrbitRadius(r); err != nil {
				return nil, err
			}
		}
	case 3:
		cam.SetPosition(cc.Position[0], cc.Position[1], cc.Position[2])
		if cc.OrbitRadius > 0 {
			if err := cam.SetOrbitRadius(cc.OrbitRadius); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("camera position must be an XYZ triple, got %v values", len(cc.Position))
	}

	switch len(cc.View) {
	case 0:
		cam.CenterView()
	case 3:
		if err := cam.SetView(cc.View[0], cc.View[1], cc.View[2]); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("camera view must be an XYZ triple, got %v values", len(cc.View))
	}
	return cam, nil
}

// Isovalues returns the configured isovalues, or the median sample of v
// when none are configured.
func (c *Configuration) Isovalues(v *Volume) ([]float32, error) {
	if len(c.IsoValues) > 0 {
		return slices.Clone(c.IsoValues), nil
	}
	s, err := v.Statistics()
	if err != nil {
		return nil, err
	}
	return []float32{float32(s.Median)}, nil
}

// Apply binds v and cam to r according to the render mode, sample count
// and background color of c.
func (c *Configuration) Apply(r *Renderer, v *Volume, cam *Camera) error {
	r.SetSamples(c.Samples)
	if err := r.SetBackgroundColorSlice(c.BackgroundColor); err != nil {
		return err
	}
	r.SetLegend(c.Legend)

	switch c.RenderMode {
	case ModeIsosurface:
		iso, err := c.Isovalues(v)
		if err != nil {
			return err
		}
		if err := r.SetIsosurface(v, iso); err != nil {
			return err
		}
	default:
		if err := r.SetVolume(v); err != nil {
			return err
		}
	}
	return r.SetCamera(cam)
}
