package engine

import "github.com/go-gl/mathgl/mgl32"

// TableSize is the number of entries a transfer function is resampled to.
const TableSize = 256

// TransferFunction maps scalar values to color and opacity. Colors and
// Opacities are control points spread evenly over ValueRange.
type TransferFunction struct {
	Colors     []mgl32.Vec3
	Opacities  []float32
	ValueRange [2]float32
}

// Table resamples the control points into n RGBA entries.
func (tf TransferFunction) Table(n int) []mgl32.Vec4 {
	out := make([]mgl32.Vec4, n)
	for i := range out {
		t := float32(0)
		if n > 1 {
			t = float32(i) / float32(n-1)
		}
		c := colorAt(tf.Colors, t)
		out[i] = mgl32.Vec4{c[0], c[1], c[2], scalarAt(tf.Opacities, t)}
	}
	return out
}

func colorAt(points []mgl32.Vec3, t float32) mgl32.Vec3 {
	if len(points) == 1 {
		return points[0]
	}
	i, f := segment(len(points), t)
	return points[i].Add(points[i+1].Sub(points[i]).Mul(f))
}

func scalarAt(points []float32, t float32) float32 {
	if len(points) == 1 {
		return points[0]
	}
	i, f := segment(len(points), t)
	return lerp(points[i], points[i+1], f)
}

// segment locates t in [0,1] among n evenly spaced points.
func segment(n int, t float32) (int, float32) {
	x := max(0, min(t, 1)) * float32(n-1)
	i := min(int(x), n-2)
	return i, x - float32(i)
}
