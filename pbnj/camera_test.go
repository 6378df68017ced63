package pbnj

import (
	"testing"

	"github.com/gmlewis/pbnj/engine"
	"github.com/gmlewis/pbnj/engine/software"
	"github.com/go-gl/mathgl/mgl32"
)

func TestNewCamera(t *testing.T) {
	c, err := NewCamera(64, 32)
	if err != nil {
		t.Fatalf("NewCamera: %v", err)
	}
	if c.Width() != 64 || c.Height() != 32 {
		t.Errorf("size = %vx%v, want 64x32", c.Width(), c.Height())
	}
	if c.Position() != (mgl32.Vec3{0, 0, 1}) || c.View() != (mgl32.Vec3{0, 0, -1}) || c.UpVector() != (mgl32.Vec3{0, 1, 0}) {
		t.Errorf("default pose = %v %v %v", c.Position(), c.View(), c.UpVector())
	}
	if c.Fovy() != 60 {
		t.Errorf("Fovy = %v, want 60", c.Fovy())
	}
	if _, err := NewCamera(0, 10); err == nil {
		t.Error("NewCamera(0, 10) succeeded")
	}
}

func TestCameraSettersChangeID(t *testing.T) {
	c, _ := NewCamera(8, 8)
	tests := []struct {
		name string
		set  func() error
	}{
		{"SetPosition", func() error { c.SetPosition(1, 2, 3); return nil }},
		{"SetView", func() error { return c.SetView(0, 0, 1) }},
		{"SetUpVector", func() error { return c.SetUpVector(1, 0, 0) }},
		{"SetFovy", func() error { return c.SetFovy(45) }},
		{"CenterView", func() error { c.CenterView(); return nil }},
		{"SetOrbitRadius", func() error { return c.SetOrbitRadius(5) }},
	}
	for _, tt := range tests {
		id := c.ID()
		if err := tt.set(); err != nil {
			t.Fatalf("%v: %v", tt.name, err)
		}
		if c.ID() == id {
			t.Errorf("%v kept ID %v", tt.name, id)
		}
	}

	if err := c.SetView(0, 0, 0); err == nil {
		t.Error("SetView(0,0,0) succeeded")
	}
	if err := c.SetUpVector(0, 0, 0); err == nil {
		t.Error("SetUpVector(0,0,0) succeeded")
	}
	if err := c.SetFovy(180); err == nil {
		t.Error("SetFovy(180) succeeded")
	}
	if err := c.SetOrbitRadius(-1); err == nil {
		t.Error("SetOrbitRadius(-1) succeeded")
	}
}

func TestCameraOrbit(t *testing.T) {
	c, _ := NewCamera(8, 8)
	if err := c.SetOrbitRadius(10); err != nil {
		t.Fatal(err)
	}
	if got := c.Position(); !got.ApproxEqual(mgl32.Vec3{0, 0, 10}) {
		t.Errorf("Position = %v, want (0,0,10)", got)
	}
	if got := c.View().Normalize(); !got.ApproxEqual(mgl32.Vec3{0, 0, -1}) {
		t.Errorf("View = %v, want towards the origin", got)
	}

	c.SetPosition(3, 0, 4)
	if err := c.SetOrbitRadius(10); err != nil {
		t.Fatal(err)
	}
	if got := c.Position(); !got.ApproxEqual(mgl32.Vec3{6, 0, 8}) {
		t.Errorf("Position = %v, want (6,0,8)", got)
	}
	if got := c.View(); !got.ApproxEqual(mgl32.Vec3{-6, 0, -8}) {
		t.Errorf("View = %v, want (-6,0,-8)", got)
	}
}

func TestCameraObject(t *testing.T) {
	dev := software.New()
	c, _ := NewCamera(8, 4)

	h1, err := c.Object(dev)
	if err != nil {
		t.Fatalf("Object: %v", err)
	}
	if h1.Desc.Width != 8 || h1.Desc.Height != 4 {
		t.Errorf("handle size = %vx%v, want 8x4", h1.Desc.Width, h1.Desc.Height)
	}
	if h2, _ := c.Object(dev); h2 != h1 {
		t.Error("Object rebuilt an unchanged camera")
	}

	c.SetPosition(0, 0, 5)
	if !h1.Released() {
		t.Error("SetPosition kept the old handle alive")
	}
	h3, _ := c.Object(dev)
	if h3.Desc.Position != (mgl32.Vec3{0, 0, 5}) {
		t.Errorf("rebuilt position = %v", h3.Desc.Position)
	}

	id := c.ID()
	c.Release()
	if c.ID() == id {
		t.Error("Release kept the ID")
	}
	s := dev.Stats()
	if s.Created[engine.KindCamera] != 2 || s.Live(engine.KindCamera) != 0 {
		t.Errorf("cameras created %v live %v, want 2 and 0", s.Created[engine.KindCamera], s.Live(engine.KindCamera))
	}
}
