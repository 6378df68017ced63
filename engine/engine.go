// Package engine defines the handle-based object graph that every rendering
// backend implements: renderers, volumes, cameras, lights, materials,
// isosurface geometry, models and framebuffers.
//
// Objects follow a create, configure, commit, release life cycle. Committed
// models and geometry are immutable; changing them means building new ones.
// Every object must be released exactly once by its owner.
package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrReleased is returned when a released object is used.
	ErrReleased = errors.New("engine: object already released")
	// ErrCommitted is returned when a committed object is modified.
	ErrCommitted = errors.New("engine: object already committed")
	// ErrNotCommitted is returned when an uncommitted object is used for rendering.
	ErrNotCommitted = errors.New("engine: object not committed")
	// ErrIncomplete is returned when a renderer is missing its model or camera.
	ErrIncomplete = errors.New("engine: renderer has no model or camera")
)

// Device represents a rendering backend.
type Device interface {
	Name() string

	NewRenderer() (*Renderer, error)
	NewVolume(field ScalarField, tf TransferFunction) (*Volume, error)
	NewCamera(desc CameraDesc) (*Camera, error)
	NewLight(desc LightDesc) (*Light, error)
	NewMaterial(desc MaterialDesc) (*Material, error)
	NewIsosurfaces(volume *Volume, isovalues []float32, material *Material) (*Isosurfaces, error)
	NewModel() (*Model, error)
	NewFrameBuffer(width, height int, format Format, channels Channel) (*FrameBuffer, error)

	// RenderFrame performs one synchronous accumulation pass into fb.
	RenderFrame(fb *FrameBuffer, r *Renderer, channels Channel) error

	Stats() Stats
	Close() error
}

// Kind identifies the type of an engine object.
type Kind int

const (
	KindRenderer Kind = iota
	KindVolume
	KindCamera
	KindLight
	KindMaterial
	KindGeometry
	KindModel
	KindFrameBuffer
	numKinds
)

var kindNames = [numKinds]string{
	"renderer", "volume", "camera", "light", "material", "geometry", "model", "framebuffer",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Object is implemented by every engine handle.
type Object interface {
	Kind() Kind
	Release()
	Released() bool
}

// Stats holds the object counters of a device.
type Stats struct {
	Created        [numKinds]int
	Released       [numKinds]int
	DoubleReleases int
	Frames         int
}

// Live returns the number of objects of kind k that have not been released.
func (s Stats) Live(k Kind) int {
	return s.Created[k] - s.Released[k]
}

// TotalLive returns the number of unreleased objects of all kinds.
func (s Stats) TotalLive() int {
	var n int
	for k := Kind(0); k < numKinds; k++ {
		n += s.Live(k)
	}
	return n
}

// Format is the pixel encoding of a framebuffer's color channel.
type Format int

const (
	// FormatRGBA8 stores linear 8-bit RGBA.
	FormatRGBA8 Format = iota
	// FormatSRGBA stores 8-bit RGBA with the sRGB curve applied to RGB.
	FormatSRGBA
)

// Channel is a bit set of framebuffer channels.
type Channel uint

const (
	ChannelColor Channel = 1 << iota
	ChannelAccum
)
