package pbnj

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/gmlewis/pbnj/engine"
	"github.com/gmlewis/pbnj/engine/software"
)

// writeRaw writes a float32 volume whose samples are given by f.
func writeRaw(t *testing.T, nx, ny, nz int, f func(x, y, z int) float32) string {
	t.Helper()
	buf := make([]byte, 0, 4*nx*ny*nz)
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f(x, y, z)))
			}
		}
	}
	filename := filepath.Join(t.TempDir(), "volume.raw")
	if err := os.WriteFile(filename, buf, 0644); err != nil {
		t.Fatal(err)
	}
	return filename
}

// sphere is 1 at the center of an n^3 grid falling to 0 at radius n/2.
func sphere(n int) func(x, y, z int) float32 {
	c := float64(n-1) / 2
	return func(x, y, z int) float32 {
		d := math.Sqrt(math.Pow(float64(x)-c, 2) + math.Pow(float64(y)-c, 2) + math.Pow(float64(z)-c, 2))
		return float32(max(0, 1-2*d/float64(n)))
	}
}

func loadSphere(t *testing.T, n int) *Volume {
	t.Helper()
	v, err := NewVolume(writeRaw(t, n, n, n, sphere(n)), n, n, n)
	if err != nil {
		t.Fatalf("NewVolume: %v", err)
	}
	t.Cleanup(func() { v.Release() })
	return v
}

func TestNewVolumeRaw(t *testing.T) {
	ramp := func(x, y, z int) float32 { return float32(x + 10*y + 100*z) }
	filename := writeRaw(t, 3, 4, 5, ramp)

	for _, mmap := range []bool{false, true} {
		var opts []VolumeOption
		if mmap {
			opts = append(opts, WithMemoryMap())
		}
		v, err := NewVolume(filename, 3, 4, 5, opts...)
		if err != nil {
			t.Fatalf("mmap=%v: NewVolume: %v", mmap, err)
		}
		if got := v.Bounds(); len(got) != 3 || got[0] != 3 || got[1] != 4 || got[2] != 5 {
			t.Errorf("mmap=%v: Bounds = %v, want [3 4 5]", mmap, got)
		}
		if got := v.At(2, 3, 4); got != 432 {
			t.Errorf("mmap=%v: At(2,3,4) = %v, want 432", mmap, got)
		}
		if v.ID() == 0 {
			t.Errorf("mmap=%v: zero ID", mmap)
		}
		if err := v.Release(); err != nil {
			t.Errorf("mmap=%v: Release: %v", mmap, err)
		}
		if err := v.Release(); err != nil {
			t.Errorf("mmap=%v: second Release: %v", mmap, err)
		}
	}
}

func TestNewVolumeSampleTypes(t *testing.T) {
	tests := []struct {
		typ  SampleType
		data []byte
		want []float32
	}{
		{Uint8, []byte{0, 7}, []float32{0, 7}},
		{Uint16, []byte{1, 0, 0, 1}, []float32{1, 256}},
		{Int16, []byte{0xff, 0xff, 2, 0}, []float32{-1, 2}},
		{Float64, binary.LittleEndian.AppendUint64(binary.LittleEndian.AppendUint64(nil, math.Float64bits(0.5)), math.Float64bits(-2)), []float32{0.5, -2}},
	}
	for _, tt := range tests {
		filename := filepath.Join(t.TempDir(), "v.raw")
		if err := os.WriteFile(filename, tt.data, 0644); err != nil {
			t.Fatal(err)
		}
		v, err := NewVolume(filename, 2, 1, 1, WithSampleType(tt.typ))
		if err != nil {
			t.Fatalf("type %v: NewVolume: %v", tt.typ, err)
		}
		for i, want := range tt.want {
			if got := v.At(i, 0, 0); got != want {
				t.Errorf("type %v: At(%v) = %v, want %v", tt.typ, i, got, want)
			}
		}
		v.Release()
	}
}

func TestNewVolumeErrors(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "short.raw")
	if err := os.WriteFile(filename, make([]byte, 7), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewVolume(filename, 2, 2, 2, WithSampleType(Uint8)); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("short file = %v, want ErrDimensionMismatch", err)
	}
	if _, err := NewVolume(filename, 0, 2, 2); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("zero dimension = %v, want ErrDimensionMismatch", err)
	}
	if _, err := NewVolume(filepath.Join(t.TempDir(), "missing.raw"), 1, 1, 1); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file = %v, want os.ErrNotExist", err)
	}
	if _, err := NewVolumeFromVariable(filepath.Join(t.TempDir(), "missing.nc"), "density"); err == nil {
		t.Error("missing NetCDF file succeeded, want error")
	}
}

// writeCDF writes a single (z, y, x) float32 variable named density whose
// sample at (x, y, z) is x + 10*y + 100*z.
func writeCDF(t *testing.T, nx, ny, nz int) string {
	t.Helper()
	values := make([][][]float32, nz)
	for z := range values {
		values[z] = make([][]float32, ny)
		for y := range values[z] {
			values[z][y] = make([]float32, nx)
			for x := range values[z][y] {
				values[z][y][x] = float32(x + 10*y + 100*z)
			}
		}
	}
	filename := filepath.Join(t.TempDir(), "volume.nc")
	w, err := netcdf.OpenWriter(filename, netcdf.KindCDF)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	if err := w.AddVar("density", api.Variable{
		Values:     values,
		Dimensions: []string{"z", "y", "x"},
	}); err != nil {
		t.Fatalf("AddVar: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return filename
}

func TestNewVolumeFromVariable(t *testing.T) {
	filename := writeCDF(t, 4, 3, 2)

	v, err := NewVolumeFromVariable(filename, "density")
	if err != nil {
		t.Fatalf("NewVolumeFromVariable: %v", err)
	}
	defer v.Release()
	if got, want := v.Dims(), [3]int{4, 3, 2}; got != want {
		t.Errorf("Dims = %v, want %v", got, want)
	}
	if got := v.At(3, 2, 1); got != 123 {
		t.Errorf("At(3, 2, 1) = %v, want 123", got)
	}
	if v.Filename() != filename {
		t.Errorf("Filename = %q, want %q", v.Filename(), filename)
	}

	if _, err := NewVolumeFromVariable(filename, "pressure"); !errors.Is(err, ErrVariableNotFound) {
		t.Errorf("absent variable = %v, want ErrVariableNotFound", err)
	}
}

func TestParseSampleType(t *testing.T) {
	tests := []struct {
		in   string
		want SampleType
		size int
	}{
		{"", Float32, 4},
		{"float", Float32, 4},
		{"double", Float64, 8},
		{"UINT8", Uint8, 1},
		{"ushort", Uint16, 2},
		{"int16", Int16, 2},
	}
	for _, tt := range tests {
		got, err := ParseSampleType(tt.in)
		if err != nil {
			t.Fatalf("ParseSampleType(%q): %v", tt.in, err)
		}
		if got != tt.want || got.Size() != tt.size {
			t.Errorf("ParseSampleType(%q) = %v (size %v), want %v (size %v)", tt.in, got, got.Size(), tt.want, tt.size)
		}
	}
	if _, err := ParseSampleType("complex"); err == nil {
		t.Error("ParseSampleType(complex) succeeded, want error")
	}
}

func TestFlattenValues(t *testing.T) {
	// NetCDF order is (z, y, x).
	values := [][][]int16{
		{{0, 1, 2}, {3, 4, 5}},
		{{6, 7, 8}, {9, 10, 11}},
	}
	g, err := flattenValues(values)
	if err != nil {
		t.Fatalf("flattenValues: %v", err)
	}
	if g.Dims() != [3]int{3, 2, 2} {
		t.Errorf("Dims = %v, want [3 2 2]", g.Dims())
	}
	if got := g.At(2, 1, 0); got != 5 {
		t.Errorf("At(2,1,0) = %v, want 5", got)
	}
	if got := g.At(0, 0, 1); got != 6 {
		t.Errorf("At(0,0,1) = %v, want 6", got)
	}

	plane, err := flattenValues([][]float64{{1.5, 2.5}})
	if err != nil {
		t.Fatalf("flattenValues(2D): %v", err)
	}
	if plane.Dims() != [3]int{2, 1, 1} {
		t.Errorf("2D Dims = %v, want [2 1 1]", plane.Dims())
	}

	bad := []any{
		[][]float32{{1, 2}, {3}},
		[]string{"a"},
		[]float32{},
		float32(1),
		[][][][]float32{{{{1}}}},
	}
	for _, b := range bad {
		if _, err := flattenValues(b); err == nil {
			t.Errorf("flattenValues(%T %v) succeeded, want error", b, b)
		}
	}
}

func TestVolumeTransferFunction(t *testing.T) {
	v := loadSphere(t, 4)
	tf := v.TransferFunction()
	if len(tf.ColorMap) != 6 || len(tf.OpacityMap) != 2 {
		t.Fatalf("default transfer function = %+v", tf)
	}

	id := v.ID()
	v.AttenuateOpacity(0.5)
	if v.ID() == id {
		t.Error("AttenuateOpacity kept the ID")
	}
	if got := v.TransferFunction().OpacityMap; got[1] != 0.5 {
		t.Errorf("attenuated opacity = %v, want [0 0.5]", got)
	}

	id = v.ID()
	if err := v.SetColorMap([]float32{1, 0, 0}); err != nil {
		t.Fatalf("SetColorMap: %v", err)
	}
	if v.ID() == id {
		t.Error("SetColorMap kept the ID")
	}
	if err := v.SetColorMap([]float32{1, 0}); err == nil {
		t.Error("SetColorMap with a partial triple succeeded")
	}
	if err := v.SetOpacityMap(nil); err == nil {
		t.Error("SetOpacityMap(nil) succeeded")
	}
	if err := v.SetColorMapPreset("viridis"); err != nil {
		t.Errorf("SetColorMapPreset: %v", err)
	}
	if err := v.SetColorMapPreset("rainbow"); err == nil {
		t.Error("SetColorMapPreset(rainbow) succeeded")
	}

	// The returned transfer function is a copy.
	tf = v.TransferFunction()
	tf.OpacityMap[0] = 42
	if v.TransferFunction().OpacityMap[0] == 42 {
		t.Error("TransferFunction aliases the volume's opacity map")
	}
}

func TestVolumeObject(t *testing.T) {
	dev := software.New()
	v := loadSphere(t, 4)

	h1, err := v.Object(dev)
	if err != nil {
		t.Fatalf("Object: %v", err)
	}
	h2, _ := v.Object(dev)
	if h1 != h2 {
		t.Error("Object rebuilt an unchanged volume")
	}

	if err := v.SetOpacityMap([]float32{0, 0.5, 1}); err != nil {
		t.Fatal(err)
	}
	if !h1.Released() {
		t.Error("changing the opacity map kept the old handle alive")
	}
	h3, _ := v.Object(dev)
	if h3 == h1 || len(h3.TF.Opacities) != 3 {
		t.Errorf("Object after SetOpacityMap = %+v, want a new handle with 3 opacities", h3.TF)
	}

	// A second device gets its own handle.
	dev2 := software.New()
	h4, err := v.Object(dev2)
	if err != nil {
		t.Fatalf("Object on second device: %v", err)
	}
	if h3.Released() || h4 == h3 {
		t.Error("Object on a second device replaced the first device's handle")
	}
	if h5, _ := v.Object(dev); h5 != h3 {
		t.Error("Object rebuilt the first device's handle")
	}

	v.Release()
	if n := dev2.Stats().Live(engine.KindVolume); n != 0 {
		t.Errorf("second device live volumes after Release = %v, want 0", n)
	}
	s := dev.Stats()
	if s.TotalLive() != 0 {
		t.Errorf("live objects after Release = %v, want 0", s.TotalLive())
	}
	if _, err := v.Object(dev); err == nil {
		t.Error("Object on a released volume succeeded")
	}
}

func TestVolumeStatistics(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "v.raw")
	if err := os.WriteFile(filename, []byte{3, 1, 4, 2, 8, 6, 5, 7}, 0644); err != nil {
		t.Fatal(err)
	}
	v, err := NewVolume(filename, 2, 2, 2, WithSampleType(Uint8))
	if err != nil {
		t.Fatal(err)
	}
	defer v.Release()

	s, err := v.Statistics()
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if s.Min != 1 || s.Max != 8 || s.Mean != 4.5 || s.Median != 4 {
		t.Errorf("Statistics = %+v, want min 1 max 8 mean 4.5 median 4", s)
	}
	if math.Abs(s.StdDev-math.Sqrt(6)) > 1e-9 {
		t.Errorf("StdDev = %v, want %v", s.StdDev, math.Sqrt(6))
	}
}
