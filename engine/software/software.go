// Package software implements engine.Device with a CPU ray marcher.
package software

import (
	"math/rand/v2"
	"runtime"
	"sync"

	"github.com/gmlewis/pbnj/engine"
	"github.com/go-gl/mathgl/mgl32"
)

// Device is a CPU rendering backend. Rendering is spread over worker
// goroutines but RenderFrame returns only when the frame is complete.
type Device struct {
	engine.Base
	workers int
}

// Device implements the engine.Device interface.
var _ engine.Device = &Device{}

// Option configures a Device.
type Option func(*Device)

// WithWorkers sets the number of rendering goroutines.
// Values below 1 select runtime.NumCPU.
func WithWorkers(n int) Option {
	return func(d *Device) { d.workers = n }
}

// New returns a new CPU device.
func New(opts ...Option) *Device {
	d := &Device{}
	for _, opt := range opts {
		opt(d)
	}
	if d.workers < 1 {
		d.workers = runtime.NumCPU()
	}
	return d
}

func (d *Device) Name() string { return "software" }

// Close reports objects that were never released.
func (d *Device) Close() error {
	if n := d.Stats().TotalLive(); n > 0 {
		engine.Logger().Warn("software: device closed with live objects", "count", n)
	}
	return nil
}

// RenderFrame renders one pass of r into fb.
func (d *Device) RenderFrame(fb *engine.FrameBuffer, r *engine.Renderer, channels engine.Channel) error {
	f, err := d.BeginFrame(fb, r)
	if err != nil {
		return err
	}
	s := newScene(f)
	w, h := fb.Width, fb.Height
	engine.Logger().Debug("software: render frame", "width", w, "height", h,
		"spp", f.Params.SamplesPerPixel, "workers", d.workers)

	rows := make(chan int, h)
	for y := 0; y < h; y++ {
		rows <- y
	}
	close(rows)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for y := range rows {
				s.renderRow(fb, y)
			}
		}()
	}
	wg.Wait()

	d.EndFrame(f)
	return nil
}

func (s *scene) renderRow(fb *engine.FrameBuffer, y int) {
	w, h := fb.Width, fb.Height
	spp := s.params.SamplesPerPixel
	for x := 0; x < w; x++ {
		i := y*w + x
		rng := rand.New(rand.NewPCG(uint64(i), uint64(fb.Frames)))
		var sum mgl32.Vec4
		for n := 0; n < spp; n++ {
			jx, jy := float32(0.5), float32(0.5)
			if spp > 1 {
				jx, jy = rng.Float32(), rng.Float32()
			}
			u := (float32(x) + jx) / float32(w)
			v := (float32(y) + jy) / float32(h)
			origin, dir := s.rays.Ray(u, v)
			sum = sum.Add(s.trace(origin, dir, rng))
		}
		fb.SetSample(i, sum.Mul(1/float32(spp)))
	}
}
