package pbnj

import (
	"errors"
	"fmt"

	"github.com/gmlewis/pbnj/engine"
	"github.com/go-gl/mathgl/mgl32"
)

// Camera is a perspective view onto the scene. Its engine handle is built
// on first use and cached until a parameter changes.
//
// A Camera owns its engine handle. Renderers bind it but never release it.
type Camera struct {
	desc engine.CameraDesc
	id   ID

	dev    engine.Device
	handle *engine.Camera
}

// NewCamera returns a camera for a width x height image placed at (0,0,1),
// looking down -Z, with Y up and a 60 degree vertical field of view.
func NewCamera(width, height int) (*Camera, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("pbnj: invalid image size %vx%v", width, height)
	}
	return &Camera{
		desc: engine.CameraDesc{
			Position: mgl32.Vec3{0, 0, 1},
			View:     mgl32.Vec3{0, 0, -1},
			Up:       mgl32.Vec3{0, 1, 0},
			Fovy:     60,
			Width:    width,
			Height:   height,
		},
		id: nextID(),
	}, nil
}

// ID returns the identity of the current configuration of c.
func (c *Camera) ID() ID { return c.id }

// Width returns the image width in pixels.
func (c *Camera) Width() int { return c.desc.Width }

// Height returns the image height in pixels.
func (c *Camera) Height() int { return c.desc.Height }

// Position returns the eye position.
func (c *Camera) Position() mgl32.Vec3 { return c.desc.Position }

// View returns the viewing direction.
func (c *Camera) View() mgl32.Vec3 { return c.desc.View }

// UpVector returns the up direction.
func (c *Camera) UpVector() mgl32.Vec3 { return c.desc.Up }

// Fovy returns the vertical field of view in degrees.
func (c *Camera) Fovy() float32 { return c.desc.Fovy }

// SetPosition moves the eye. The view direction is unchanged.
func (c *Camera) SetPosition(x, y, z float32) {
	c.desc.Position = mgl32.Vec3{x, y, z}
	c.invalidate()
}

// SetView sets the viewing direction.
func (c *Camera) SetView(x, y, z float32) error {
	v := mgl32.Vec3{x, y, z}
	if v.Len() == 0 {
		return errors.New("pbnj: zero view direction")
	}
	c.desc.View = v
	c.invalidate()
	return nil
}

// SetUpVector sets the up direction.
func (c *Camera) SetUpVector(x, y, z float32) error {
	v := mgl32.Vec3{x, y, z}
	if v.Len() == 0 {
		return errors.New("pbnj: zero up vector")
	}
	c.desc.Up = v
	c.invalidate()
	return nil
}

// SetFovy sets the vertical field of view in degrees.
func (c *Camera) SetFovy(deg float32) error {
	if deg <= 0 || deg >= 180 {
		return fmt.Errorf("pbnj: field of view %v out of range (0,180)", deg)
	}
	c.desc.Fovy = deg
	c.invalidate()
	return nil
}

// CenterView points the camera at the origin, where volumes are centered.
func (c *Camera) CenterView() {
	if c.desc.Position.Len() == 0 {
		return
	}
	c.desc.View = c.desc.Position.Mul(-1)
	c.invalidate()
}

// SetOrbitRadius moves the camera along its direction from the origin so
// that it is r away from it, then centers the view.
func (c *Camera) SetOrbitRadius(r float32) error {
	if r <= 0 {
		return fmt.Errorf("pbnj: orbit radius %v must be positive", r)
	}
	dir := c.desc.Position
	if dir.Len() == 0 {
		dir = c.desc.View.Mul(-1)
	}
	c.desc.Position = dir.Normalize().Mul(r)
	c.CenterView()
	return nil
}

func (c *Camera) invalidate() {
	c.releaseHandle()
	c.id = nextID()
}

func (c *Camera) releaseHandle() {
	if c.handle != nil {
		c.handle.Release()
		c.handle, c.dev = nil, nil
	}
}

// Object returns the engine camera for dev, building it on first use.
func (c *Camera) Object(dev engine.Device) (*engine.Camera, error) {
	if c.handle != nil && c.dev == dev {
		return c.handle, nil
	}
	c.releaseHandle()
	h, err := dev.NewCamera(c.desc)
	if err != nil {
		return nil, fmt.Errorf("pbnj: building camera: %w", err)
	}
	c.dev, c.handle = dev, h
	return h, nil
}

// Release frees the engine handle. The camera may still be used and will
// build a new handle, under a new ID, when next bound.
func (c *Camera) Release() {
	c.invalidate()
}
