package pbnj

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"reflect"
	"strings"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/edsrzf/mmap-go"
)

var (
	// ErrDimensionMismatch is returned when a raw file's length disagrees
	// with its declared dimensions.
	ErrDimensionMismatch = errors.New("pbnj: data file size does not match dimensions")
	// ErrVariableNotFound is returned when a named variable is absent.
	ErrVariableNotFound = errors.New("pbnj: variable not found")
)

// SampleType is the binary encoding of samples in a raw data file.
// All multi-byte types are little endian.
type SampleType int

const (
	Float32 SampleType = iota
	Float64
	Uint8
	Uint16
	Int16
)

var sampleTypeNames = map[string]SampleType{
	"float32": Float32,
	"float":   Float32,
	"float64": Float64,
	"double":  Float64,
	"uint8":   Uint8,
	"uchar":   Uint8,
	"uint16":  Uint16,
	"ushort":  Uint16,
	"int16":   Int16,
	"short":   Int16,
}

// ParseSampleType parses a sample type name such as "float32" or "uint8".
// The empty string selects Float32.
func ParseSampleType(s string) (SampleType, error) {
	if s == "" {
		return Float32, nil
	}
	t, ok := sampleTypeNames[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("unknown sample type %q", s)
	}
	return t, nil
}

// Size returns the number of bytes per sample.
func (t SampleType) Size() int {
	switch t {
	case Float64:
		return 8
	case Uint8:
		return 1
	case Uint16, Int16:
		return 2
	}
	return 4
}

// dataFile is a loaded scalar field that may hold operating system resources.
type dataFile interface {
	Dims() [3]int
	At(x, y, z int) float32
	Close() error
}

// rawFile is a flat sample array with x varying fastest.
type rawFile struct {
	dims [3]int
	typ  SampleType
	data []byte
	mm   mmap.MMap
}

func loadRaw(filename string, dims [3]int, typ SampleType, memmap bool) (*rawFile, error) {
	for _, d := range dims {
		if d < 1 {
			return nil, fmt.Errorf("%v: invalid dimensions %v: %w", filename, dims, ErrDimensionMismatch)
		}
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	want := int64(dims[0]) * int64(dims[1]) * int64(dims[2]) * int64(typ.Size())
	if fi.Size() != want {
		return nil, fmt.Errorf("%v: have %v bytes, want %v for %v: %w", filename, fi.Size(), want, dims, ErrDimensionMismatch)
	}

	r := &rawFile{dims: dims, typ: typ}
	if memmap {
		r.mm, err = mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("mmap %v: %w", filename, err)
		}
		r.data = r.mm
		return r, nil
	}
	r.data = make([]byte, want)
	if _, err := f.ReadAt(r.data, 0); err != nil {
		return nil, fmt.Errorf("read %v: %w", filename, err)
	}
	return r, nil
}

func (r *rawFile) Dims() [3]int { return r.dims }

func (r *rawFile) At(x, y, z int) float32 {
	i := x + r.dims[0]*(y+r.dims[1]*z)
	switch r.typ {
	case Float64:
		return float32(math.Float64frombits(binary.LittleEndian.Uint64(r.data[8*i:])))
	case Uint8:
		return float32(r.data[i])
	case Uint16:
		return float32(binary.LittleEndian.Uint16(r.data[2*i:]))
	case Int16:
		return float32(int16(binary.LittleEndian.Uint16(r.data[2*i:])))
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(r.data[4*i:]))
}

func (r *rawFile) Close() error {
	if r.mm != nil {
		err := r.mm.Unmap()
		r.mm, r.data = nil, nil
		return err
	}
	r.data = nil
	return nil
}

// gridFile is an in-memory field.
type gridFile struct {
	dims    [3]int
	samples []float32
}

func (g *gridFile) Dims() [3]int { return g.dims }

func (g *gridFile) At(x, y, z int) float32 {
	return g.samples[x+g.dims[0]*(y+g.dims[1]*z)]
}

func (g *gridFile) Close() error { return nil }

// loadVariable reads a named variable from a NetCDF file. NetCDF stores the
// slowest varying dimension first, so a (z, y, x) variable maps onto X, Y, Z.
func loadVariable(filename, variable string) (*gridFile, error) {
	nc, err := netcdf.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open %v: %w", filename, err)
	}
	defer nc.Close()

	vr, err := nc.GetVariable(variable)
	if err != nil || vr == nil {
		return nil, fmt.Errorf("%v: %q: %w", filename, variable, ErrVariableNotFound)
	}

	g, err := flattenValues(vr.Values)
	if err != nil {
		return nil, fmt.Errorf("%v: %q: %w", filename, variable, err)
	}
	return g, nil
}

// flattenValues converts nested numeric slices of up to three dimensions.
func flattenValues(values any) (*gridFile, error) {
	rv := reflect.ValueOf(values)
	var shape []int
	for v := rv; v.Kind() == reflect.Slice; {
		shape = append(shape, v.Len())
		if v.Len() == 0 {
			return nil, errors.New("empty variable")
		}
		v = v.Index(0)
	}
	if len(shape) == 0 || len(shape) > 3 {
		return nil, fmt.Errorf("unsupported variable rank %v", len(shape))
	}

	g := &gridFile{dims: [3]int{1, 1, 1}}
	for i, n := range shape {
		g.dims[len(shape)-1-i] = n
	}
	g.samples = make([]float32, 0, g.dims[0]*g.dims[1]*g.dims[2])

	var walk func(v reflect.Value, depth int) error
	walk = func(v reflect.Value, depth int) error {
		if depth < len(shape) {
			if v.Kind() != reflect.Slice || v.Len() != shape[depth] {
				return errors.New("ragged variable")
			}
			for i := 0; i < v.Len(); i++ {
				if err := walk(v.Index(i), depth+1); err != nil {
					return err
				}
			}
			return nil
		}
		switch v.Kind() {
		case reflect.Float32, reflect.Float64:
			g.samples = append(g.samples, float32(v.Float()))
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			g.samples = append(g.samples, float32(v.Int()))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			g.samples = append(g.samples, float32(v.Uint()))
		default:
			return fmt.Errorf("non-numeric sample type %v", v.Type())
		}
		return nil
	}
	if err := walk(rv, 0); err != nil {
		return nil, err
	}
	return g, nil
}
