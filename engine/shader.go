package engine

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
)

// Ambient is the ambient light strength. The shader backends apply it
// without occlusion.
const Ambient = 0.25

// ShaderParams is the per frame state consumed by the GPU backends. Those
// backends ray march a single volume, either directly or as isosurfaces.
type ShaderParams struct {
	InvViewProj mgl32.Mat4
	Eye         mgl32.Vec3
	Volume      *Volume
	Background  mgl32.Vec3
	LightDir    mgl32.Vec3 // towards the scene
	Material    MaterialDesc
	Isosurface  bool
	Isovalues   []float32
	Samples     int
	OneSided    bool
	Width       int
	Height      int
}

// NewShaderParams flattens f for a shader that handles up to maxIsovalues
// isovalues. Extra isovalues are dropped with a warning.
func NewShaderParams(f *Frame, maxIsovalues int) (ShaderParams, error) {
	p := ShaderParams{
		InvViewProj: f.Camera.InverseViewProjection(),
		Eye:         f.Camera.Position,
		Background:  f.Params.Background,
		Samples:     f.Params.SamplesPerPixel,
		OneSided:    f.Params.OneSidedLighting,
		Width:       f.Camera.Width,
		Height:      f.Camera.Height,
		Material:    MaterialDesc{Kd: mgl32.Vec3{1, 1, 1}, Ns: 1, D: 1},
	}
	switch {
	case len(f.Model.Geometries) > 0:
		g := f.Model.Geometries[0]
		p.Volume = g.Volume
		p.Isosurface = true
		p.Isovalues = g.Isovalues
		if len(p.Isovalues) > maxIsovalues {
			Logger().Warn("engine: dropping isovalues", "have", len(p.Isovalues), "max", maxIsovalues)
			p.Isovalues = p.Isovalues[:maxIsovalues]
		}
		if g.Material != nil {
			p.Material = g.Material.Desc
		}
	case len(f.Model.Volumes) > 0:
		p.Volume = f.Model.Volumes[0]
	default:
		return p, errors.New("engine: model is empty")
	}
	if len(f.Model.Volumes)+len(f.Model.Geometries) > 1 {
		Logger().Warn("engine: shader backends render only the first model object")
	}

	p.LightDir = f.Camera.View.Normalize()
	if len(f.Params.Lights) > 0 {
		p.LightDir = f.Params.Lights[0].Desc.Direction
	}
	if p.Material.D <= 0 {
		p.Material.D = 1
	}
	return p, nil
}
