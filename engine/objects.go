package engine

import (
	"fmt"
	"slices"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// tracker counts object creations and releases for a device.
type tracker struct {
	mu    sync.Mutex
	stats Stats
}

func (t *tracker) created(k Kind) {
	t.mu.Lock()
	t.stats.Created[k]++
	t.mu.Unlock()
}

func (t *tracker) released(k Kind) {
	t.mu.Lock()
	t.stats.Released[k]++
	t.mu.Unlock()
}

func (t *tracker) doubleRelease(k Kind) {
	t.mu.Lock()
	t.stats.DoubleReleases++
	t.mu.Unlock()
	Logger().Warn("engine: object released twice", "kind", k.String())
}

func (t *tracker) frame() {
	t.mu.Lock()
	t.stats.Frames++
	t.mu.Unlock()
}

func (t *tracker) snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// object is the common part of every engine handle.
type object struct {
	kind      Kind
	tracker   *tracker
	released  bool
	committed bool
}

func newObject(t *tracker, k Kind) object {
	t.created(k)
	return object{kind: k, tracker: t}
}

func (o *object) Kind() Kind { return o.kind }

// Release frees the object. Releasing twice is counted and logged.
func (o *object) Release() {
	if o.released {
		o.tracker.doubleRelease(o.kind)
		return
	}
	o.released = true
	o.tracker.released(o.kind)
}

func (o *object) Released() bool  { return o.released }
func (o *object) Committed() bool { return o.committed }

func (o *object) checkMutable() error {
	switch {
	case o.released:
		return fmt.Errorf("%v: %w", o.kind, ErrReleased)
	case o.committed:
		return fmt.Errorf("%v: %w", o.kind, ErrCommitted)
	}
	return nil
}

func (o *object) checkUsable() error {
	switch {
	case o.released:
		return fmt.Errorf("%v: %w", o.kind, ErrReleased)
	case !o.committed:
		return fmt.Errorf("%v: %w", o.kind, ErrNotCommitted)
	}
	return nil
}

// Volume is a committed scalar field with its transfer function.
type Volume struct {
	object
	Field ScalarField
	TF    TransferFunction
	// Table is the transfer function resampled into TableSize entries.
	Table []mgl32.Vec4
	// Lo and Hi are the world space corners. The grid is centered on the
	// origin with unit spacing between samples.
	Lo, Hi mgl32.Vec3
}

// ToVoxel converts a world space position into voxel coordinates.
func (v *Volume) ToVoxel(p mgl32.Vec3) mgl32.Vec3 {
	return p.Sub(v.Lo)
}

// Classify maps a scalar value through the transfer function table.
func (v *Volume) Classify(s float32) mgl32.Vec4 {
	lo, hi := v.TF.ValueRange[0], v.TF.ValueRange[1]
	t := float32(0)
	if hi > lo {
		t = (s - lo) / (hi - lo)
	}
	i := int(t*float32(len(v.Table)-1) + 0.5)
	i = max(0, min(i, len(v.Table)-1))
	return v.Table[i]
}

// Camera is a committed view.
type Camera struct {
	object
	Desc CameraDesc
}

// Light is a committed distant light.
type Light struct {
	object
	Desc LightDesc
}

// Material is a committed surface material.
type Material struct {
	object
	Desc MaterialDesc
}

// Isosurfaces is committed geometry extracted from a volume at isovalues.
type Isosurfaces struct {
	object
	Volume    *Volume
	Isovalues []float32
	Material  *Material
}

// Model groups volumes and geometry into a renderable scene.
type Model struct {
	object
	Volumes    []*Volume
	Geometries []*Isosurfaces
}

// AddVolume attaches v to an uncommitted model.
func (m *Model) AddVolume(v *Volume) error {
	if err := m.checkMutable(); err != nil {
		return err
	}
	if err := v.checkUsable(); err != nil {
		return err
	}
	m.Volumes = append(m.Volumes, v)
	return nil
}

// AddGeometry attaches g to an uncommitted model.
func (m *Model) AddGeometry(g *Isosurfaces) error {
	if err := m.checkMutable(); err != nil {
		return err
	}
	if err := g.checkUsable(); err != nil {
		return err
	}
	m.Geometries = append(m.Geometries, g)
	return nil
}

// Commit freezes the model.
func (m *Model) Commit() error {
	if err := m.checkMutable(); err != nil {
		return err
	}
	m.committed = true
	return nil
}

func (m *Model) validate() error {
	if err := m.checkUsable(); err != nil {
		return err
	}
	for _, v := range m.Volumes {
		if err := v.checkUsable(); err != nil {
			return fmt.Errorf("model volume: %w", err)
		}
	}
	for _, g := range m.Geometries {
		if err := g.checkUsable(); err != nil {
			return fmt.Errorf("model geometry: %w", err)
		}
		if err := g.Volume.checkUsable(); err != nil {
			return fmt.Errorf("isosurface volume: %w", err)
		}
	}
	return nil
}

// RendererParams holds renderer wide settings.
type RendererParams struct {
	Background       mgl32.Vec3 // normalized RGB
	SamplesPerPixel  int
	AOSamples        int
	ShadowsEnabled   bool
	OneSidedLighting bool
	Lights           []*Light
	Model            *Model
	Camera           *Camera
}

// Renderer holds parameters which take effect on Commit.
// Unlike models, renderers may be committed repeatedly.
type Renderer struct {
	object
	pending RendererParams
	current RendererParams
}

// Params returns the pending parameters for modification.
func (r *Renderer) Params() *RendererParams { return &r.pending }

// Current returns the parameters of the last Commit.
func (r *Renderer) Current() RendererParams { return r.current }

// Commit makes the pending parameters current.
func (r *Renderer) Commit() error {
	if r.released {
		return fmt.Errorf("%v: %w", r.kind, ErrReleased)
	}
	r.current = r.pending
	r.current.Lights = slices.Clone(r.pending.Lights)
	r.committed = true
	return nil
}

// FrameBuffer holds the pixels of one rendered frame. Row 0 is the bottom
// scan line.
type FrameBuffer struct {
	object
	Width, Height int
	Format        Format
	Channels      Channel
	Color         []uint8   // RGBA8
	Accum         []float32 // linear RGBA sums
	Frames        int
}

// Pixels returns the color channel.
func (fb *FrameBuffer) Pixels() ([]uint8, error) {
	if fb.released {
		return nil, fmt.Errorf("%v: %w", fb.kind, ErrReleased)
	}
	return fb.Color, nil
}

// SetSample adds one finished pass value for pixel i to the accumulation
// channel. Pixel indices count from the bottom row.
func (fb *FrameBuffer) SetSample(i int, c mgl32.Vec4) {
	a := fb.Accum[4*i : 4*i+4]
	a[0] += c[0]
	a[1] += c[1]
	a[2] += c[2]
	a[3] += c[3]
}

// resolve encodes the averaged accumulation channel into Color.
func (fb *FrameBuffer) resolve() {
	fb.Frames++
	inv := 1 / float32(fb.Frames)
	for i := 0; i < fb.Width*fb.Height; i++ {
		for c := 0; c < 4; c++ {
			v := fb.Accum[4*i+c] * inv
			if c < 3 && fb.Format == FormatSRGBA {
				v = linearToSRGB(v)
			}
			fb.Color[4*i+c] = toByte(v)
		}
	}
	if fb.Channels&ChannelAccum == 0 {
		clear(fb.Accum)
		fb.Frames = 0
	}
}
