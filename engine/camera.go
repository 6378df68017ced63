package engine

import (
	"github.com/go-gl/mathgl/mgl32"
)

// CameraDesc describes a perspective camera.
type CameraDesc struct {
	Position mgl32.Vec3
	View     mgl32.Vec3 // viewing direction
	Up       mgl32.Vec3
	Fovy     float32 // vertical field of view in degrees
	Width    int
	Height   int
}

const (
	nearPlane = 0.1
	farPlane  = 100000
)

// Aspect returns width over height.
func (c CameraDesc) Aspect() float32 {
	return float32(c.Width) / float32(c.Height)
}

// ViewMatrix returns the world to camera transform.
func (c CameraDesc) ViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Position.Add(c.View), c.Up)
}

// ProjectionMatrix returns the perspective projection.
func (c CameraDesc) ProjectionMatrix() mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(c.Fovy), c.Aspect(), nearPlane, farPlane)
}

// InverseViewProjection maps normalized device coordinates back to world space.
func (c CameraDesc) InverseViewProjection() mgl32.Mat4 {
	return c.ProjectionMatrix().Mul4(c.ViewMatrix()).Inv()
}

// RayGen produces primary rays for one camera.
type RayGen struct {
	origin mgl32.Vec3
	inv    mgl32.Mat4
}

// NewRayGen precomputes the inverse view projection of c.
func NewRayGen(c CameraDesc) RayGen {
	return RayGen{origin: c.Position, inv: c.InverseViewProjection()}
}

// Ray returns the primary ray through screen position (u, v), both in [0,1]
// with v = 0 at the bottom of the image.
func (g RayGen) Ray(u, v float32) (origin, dir mgl32.Vec3) {
	x, y := 2*u-1, 2*v-1
	// Unproject onto the near plane; the far plane is poorly conditioned
	// in float32.
	near := g.inv.Mul4x1(mgl32.Vec4{x, y, -1, 1})
	p := near.Vec3().Mul(1 / near[3])
	return g.origin, p.Sub(g.origin).Normalize()
}

// LightDesc describes a distant light.
type LightDesc struct {
	// Direction points from the light towards the scene.
	Direction       mgl32.Vec3
	Color           mgl32.Vec3
	Intensity       float32
	AngularDiameter float32 // degrees
}

// MaterialDesc describes an OBJ style surface material.
type MaterialDesc struct {
	Kd mgl32.Vec3 // diffuse
	Ks mgl32.Vec3 // specular
	Ns float32    // shininess
	D  float32    // opacity
}
