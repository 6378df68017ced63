package software

import (
	"math"
	"math/rand/v2"

	"github.com/gmlewis/pbnj/engine"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// stepSize is the ray marching step in voxels.
	stepSize = 0.5
	// opaque stops volume integration early.
	opaque = 0.99
	// aoDistance is the length of ambient occlusion rays in voxels.
	aoDistance = 8
)

// scene is the per frame view of the committed objects.
type scene struct {
	params     engine.RendererParams
	rays       engine.RayGen
	volumes    []*engine.Volume
	surfaces   []*engine.Isosurfaces
	lights     []engine.LightDesc
	background mgl32.Vec3
}

func newScene(f *engine.Frame) *scene {
	s := &scene{
		params:     f.Params,
		rays:       engine.NewRayGen(f.Camera),
		volumes:    f.Model.Volumes,
		surfaces:   f.Model.Geometries,
		background: f.Params.Background,
	}
	for _, l := range f.Params.Lights {
		s.lights = append(s.lights, l.Desc)
	}
	return s
}

// trace returns the background blended color and coverage along one ray.
func (s *scene) trace(origin, dir mgl32.Vec3, rng *rand.Rand) mgl32.Vec4 {
	var acc mgl32.Vec4
	tHit := float32(math.Inf(1))
	var surf mgl32.Vec4
	for _, g := range s.surfaces {
		if t, c, ok := s.shadeSurface(g, origin, dir, rng); ok && t < tHit {
			tHit, surf = t, c
		}
	}
	for _, v := range s.volumes {
		acc = integrate(v, origin, dir, tHit, acc, rng)
	}
	if !math.IsInf(float64(tHit), 1) {
		acc = over(acc, surf)
	}
	a := acc[3]
	rgb := acc.Vec3().Add(s.background.Mul(1 - a))
	return mgl32.Vec4{rgb[0], rgb[1], rgb[2], a}
}

// over composites premultiplied c behind acc.
func over(acc, c mgl32.Vec4) mgl32.Vec4 {
	return acc.Add(c.Mul(1 - acc[3]))
}

// integrate composites v front to back into acc up to distance tMax.
func integrate(v *engine.Volume, origin, dir mgl32.Vec3, tMax float32, acc mgl32.Vec4, rng *rand.Rand) mgl32.Vec4 {
	t0, t1, ok := engine.IntersectBox(origin, dir, v.Lo, v.Hi)
	if !ok {
		return acc
	}
	t1 = min(t1, tMax)
	for t := t0 + rng.Float32()*stepSize; t <= t1 && acc[3] < opaque; t += stepSize {
		p := v.ToVoxel(origin.Add(dir.Mul(t)))
		c := v.Classify(engine.Sample(v.Field, p))
		if c[3] <= 0 {
			continue
		}
		a := 1 - float32(math.Pow(float64(1-min(c[3], 1)), stepSize))
		acc = over(acc, mgl32.Vec4{c[0] * a, c[1] * a, c[2] * a, a})
	}
	return acc
}

// crossing finds the first distance in [t0, t1] where the field crosses
// one of the isovalues.
func crossing(v *engine.Volume, iso []float32, origin, dir mgl32.Vec3, t0, t1 float32) (float32, bool) {
	at := func(t float32) float32 {
		return engine.Sample(v.Field, v.ToVoxel(origin.Add(dir.Mul(t))))
	}
	prevT, prev := t0, at(t0)
	for prevT < t1 {
		t := min(prevT+stepSize, t1)
		cur := at(t)
		best, found := float32(0), false
		for _, level := range iso {
			if (prev-level)*(cur-level) > 0 || prev == cur {
				continue
			}
			tc := prevT + (t-prevT)*(level-prev)/(cur-prev)
			if !found || tc < best {
				best, found = tc, true
			}
		}
		if found {
			return best, true
		}
		prevT, prev = t, cur
	}
	return 0, false
}

// shadeSurface returns the distance and premultiplied shaded color of the
// nearest isosurface hit of g.
func (s *scene) shadeSurface(g *engine.Isosurfaces, origin, dir mgl32.Vec3, rng *rand.Rand) (float32, mgl32.Vec4, bool) {
	v := g.Volume
	t0, t1, ok := engine.IntersectBox(origin, dir, v.Lo, v.Hi)
	if !ok {
		return 0, mgl32.Vec4{}, false
	}
	t, ok := crossing(v, g.Isovalues, origin, dir, t0, t1)
	if !ok {
		return 0, mgl32.Vec4{}, false
	}
	p := origin.Add(dir.Mul(t))
	n := engine.Gradient(v.Field, v.ToVoxel(p))
	if n.Len() == 0 {
		n = dir.Mul(-1)
	}
	n = n.Normalize()
	if n.Dot(dir) > 0 {
		if s.params.OneSidedLighting {
			return t, mgl32.Vec4{0, 0, 0, 1}, true
		}
		n = n.Mul(-1)
	}

	mat := defaultMaterial
	if g.Material != nil {
		mat = g.Material.Desc
	}

	lights := s.lights
	if len(lights) == 0 {
		lights = []engine.LightDesc{{Direction: dir, Color: mgl32.Vec3{1, 1, 1}, Intensity: 1}}
	}

	ao := float32(1)
	if s.params.AOSamples > 0 {
		ao = s.occlusion(g, p, n, rng)
	}
	color := mat.Kd.Mul(engine.Ambient * ao)
	for _, l := range lights {
		toLight := l.Direction.Mul(-1)
		ndl := n.Dot(toLight)
		if ndl <= 0 {
			continue
		}
		if s.params.ShadowsEnabled && s.occluded(g, p.Add(n.Mul(stepSize)), toLight, float32(math.Inf(1))) {
			continue
		}
		intensity := l.Intensity
		if intensity == 0 {
			intensity = 1
		}
		lc := l.Color
		if lc.Len() == 0 {
			lc = mgl32.Vec3{1, 1, 1}
		}
		lc = lc.Mul(intensity)
		h := toLight.Sub(dir).Normalize()
		spec := float32(math.Pow(float64(max(0, n.Dot(h))), float64(mat.Ns)))
		color = color.Add(mul(mat.Kd.Mul(ndl).Add(mat.Ks.Mul(spec)), lc))
	}

	alpha := mat.D
	if alpha <= 0 {
		alpha = 1
	}
	color = color.Mul(alpha)
	return t, mgl32.Vec4{color[0], color[1], color[2], alpha}, true
}

// occlusion returns the unoccluded fraction of ambient occlusion rays.
func (s *scene) occlusion(g *engine.Isosurfaces, p, n mgl32.Vec3, rng *rand.Rand) float32 {
	u, w := basis(n)
	start := p.Add(n.Mul(stepSize))
	open := 0
	for i := 0; i < s.params.AOSamples; i++ {
		r1, r2 := rng.Float64(), rng.Float64()
		phi := 2 * math.Pi * r1
		sr := math.Sqrt(r2)
		d := u.Mul(float32(math.Cos(phi) * sr)).
			Add(w.Mul(float32(math.Sin(phi) * sr))).
			Add(n.Mul(float32(math.Sqrt(1 - r2))))
		if !s.occluded(g, start, d, aoDistance) {
			open++
		}
	}
	return float32(open) / float32(s.params.AOSamples)
}

func (s *scene) occluded(g *engine.Isosurfaces, origin, dir mgl32.Vec3, dist float32) bool {
	v := g.Volume
	t0, t1, ok := engine.IntersectBox(origin, dir, v.Lo, v.Hi)
	if !ok {
		return false
	}
	_, hit := crossing(v, g.Isovalues, origin, dir, t0, min(t1, t0+dist))
	return hit
}

// basis returns two unit vectors orthogonal to n and to each other.
func basis(n mgl32.Vec3) (mgl32.Vec3, mgl32.Vec3) {
	a := mgl32.Vec3{1, 0, 0}
	if math.Abs(float64(n[0])) > 0.9 {
		a = mgl32.Vec3{0, 1, 0}
	}
	u := n.Cross(a).Normalize()
	return u, n.Cross(u)
}

func mul(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

var defaultMaterial = engine.MaterialDesc{
	Kd: mgl32.Vec3{1, 1, 1},
	Ks: mgl32.Vec3{0, 0, 0},
	Ns: 1,
	D:  1,
}
