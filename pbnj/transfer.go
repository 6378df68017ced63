package pbnj

import (
	"fmt"
	"slices"
	"sort"

	"github.com/gmlewis/pbnj/engine"
	"github.com/go-gl/mathgl/mgl32"
)

// TransferFunction maps scalar values to color and opacity.
//
// ColorMap holds flat RGB triples in [0,1] and OpacityMap one opacity per
// control point. Both sets of control points are spread evenly over Range.
// A zero Range selects the minimum and maximum of the data.
type TransferFunction struct {
	ColorMap   []float32
	OpacityMap []float32
	Range      [2]float32
}

// DefaultTransferFunction returns a grayscale ramp with linearly increasing
// opacity.
func DefaultTransferFunction() TransferFunction {
	return TransferFunction{
		ColorMap:   []float32{0, 0, 0, 1, 1, 1},
		OpacityMap: []float32{0, 1},
	}
}

var colorMapPresets = map[string][]float32{
	"grayscale": {0, 0, 0, 1, 1, 1},
	"coolwarm": {
		0.230, 0.299, 0.754,
		0.552, 0.690, 0.996,
		0.865, 0.865, 0.865,
		0.958, 0.604, 0.483,
		0.706, 0.016, 0.150,
	},
	"viridis": {
		0.267, 0.005, 0.329,
		0.229, 0.322, 0.546,
		0.128, 0.567, 0.551,
		0.369, 0.789, 0.383,
		0.993, 0.906, 0.144,
	},
	"hot": {
		0, 0, 0,
		1, 0, 0,
		1, 1, 0,
		1, 1, 1,
	},
}

// ColorMapPresets returns the names accepted by ColorMapPreset, sorted.
func ColorMapPresets() []string {
	names := make([]string, 0, len(colorMapPresets))
	for k := range colorMapPresets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ColorMapPreset returns a copy of the named color map.
func ColorMapPreset(name string) ([]float32, error) {
	p, ok := colorMapPresets[name]
	if !ok {
		return nil, fmt.Errorf("unknown color map %q (want one of %v)", name, ColorMapPresets())
	}
	return slices.Clone(p), nil
}

func (tf TransferFunction) clone() TransferFunction {
	return TransferFunction{
		ColorMap:   slices.Clone(tf.ColorMap),
		OpacityMap: slices.Clone(tf.OpacityMap),
		Range:      tf.Range,
	}
}

func checkColorMap(points []float32) error {
	if len(points) == 0 || len(points)%3 != 0 {
		return fmt.Errorf("color map needs a non-empty list of RGB triples, got %v values", len(points))
	}
	return nil
}

func checkOpacityMap(points []float32) error {
	if len(points) == 0 {
		return fmt.Errorf("opacity map needs at least one value")
	}
	return nil
}

// engineTransferFunction converts tf into the engine representation.
func (tf TransferFunction) engineTransferFunction() engine.TransferFunction {
	out := engine.TransferFunction{
		Colors:     make([]mgl32.Vec3, 0, len(tf.ColorMap)/3),
		Opacities:  slices.Clone(tf.OpacityMap),
		ValueRange: tf.Range,
	}
	for i := 0; i+2 < len(tf.ColorMap); i += 3 {
		out.Colors = append(out.Colors, mgl32.Vec3{tf.ColorMap[i], tf.ColorMap[i+1], tf.ColorMap[i+2]})
	}
	return out
}
