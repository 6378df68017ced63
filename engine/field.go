package engine

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ScalarField is a 3D grid of samples.
type ScalarField interface {
	Dims() [3]int
	At(x, y, z int) float32
}

// ValueRange scans the field for its minimum and maximum sample.
func ValueRange(field ScalarField) (lo, hi float32) {
	d := field.Dims()
	lo, hi = float32(math.Inf(1)), float32(math.Inf(-1))
	for z := 0; z < d[2]; z++ {
		for y := 0; y < d[1]; y++ {
			for x := 0; x < d[0]; x++ {
				v := field.At(x, y, z)
				lo = min(lo, v)
				hi = max(hi, v)
			}
		}
	}
	return lo, hi
}

// Flatten copies the field into a slice with x varying fastest.
func Flatten(field ScalarField) []float32 {
	d := field.Dims()
	out := make([]float32, 0, d[0]*d[1]*d[2])
	for z := 0; z < d[2]; z++ {
		for y := 0; y < d[1]; y++ {
			for x := 0; x < d[0]; x++ {
				out = append(out, field.At(x, y, z))
			}
		}
	}
	return out
}

// gridBounds returns the world space corners of a grid centered on the origin.
func gridBounds(dims [3]int) (lo, hi mgl32.Vec3) {
	for i := 0; i < 3; i++ {
		half := float32(dims[i]-1) / 2
		lo[i], hi[i] = -half, half
	}
	return lo, hi
}

// Sample trilinearly interpolates the field at voxel coordinates p.
// Coordinates outside the grid are clamped to the border.
func Sample(field ScalarField, p mgl32.Vec3) float32 {
	d := field.Dims()
	var i0, i1 [3]int
	var f [3]float32
	for a := 0; a < 3; a++ {
		c := max(0, min(p[a], float32(d[a]-1)))
		fl := float32(math.Floor(float64(c)))
		i0[a] = int(fl)
		i1[a] = min(i0[a]+1, d[a]-1)
		f[a] = c - fl
	}
	c000 := field.At(i0[0], i0[1], i0[2])
	c100 := field.At(i1[0], i0[1], i0[2])
	c010 := field.At(i0[0], i1[1], i0[2])
	c110 := field.At(i1[0], i1[1], i0[2])
	c001 := field.At(i0[0], i0[1], i1[2])
	c101 := field.At(i1[0], i0[1], i1[2])
	c011 := field.At(i0[0], i1[1], i1[2])
	c111 := field.At(i1[0], i1[1], i1[2])

	c00 := lerp(c000, c100, f[0])
	c10 := lerp(c010, c110, f[0])
	c01 := lerp(c001, c101, f[0])
	c11 := lerp(c011, c111, f[0])
	c0 := lerp(c00, c10, f[1])
	c1 := lerp(c01, c11, f[1])
	return lerp(c0, c1, f[2])
}

// Gradient estimates the field gradient at voxel coordinates p with central
// differences.
func Gradient(field ScalarField, p mgl32.Vec3) mgl32.Vec3 {
	var g mgl32.Vec3
	for a := 0; a < 3; a++ {
		var dp mgl32.Vec3
		dp[a] = 0.5
		g[a] = Sample(field, p.Add(dp)) - Sample(field, p.Sub(dp))
	}
	return g
}

// IntersectBox returns the parametric entry and exit distances of a ray
// through the axis aligned box [lo, hi].
func IntersectBox(origin, dir, lo, hi mgl32.Vec3) (t0, t1 float32, ok bool) {
	t0, t1 = 0, float32(math.Inf(1))
	for a := 0; a < 3; a++ {
		if dir[a] == 0 {
			if origin[a] < lo[a] || origin[a] > hi[a] {
				return 0, 0, false
			}
			continue
		}
		inv := 1 / dir[a]
		tn := (lo[a] - origin[a]) * inv
		tf := (hi[a] - origin[a]) * inv
		if tn > tf {
			tn, tf = tf, tn
		}
		t0 = max(t0, tn)
		t1 = min(t1, tf)
		if t0 > t1 {
			return 0, 0, false
		}
	}
	return t0, t1, true
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}
