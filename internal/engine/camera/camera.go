// Package camera provides the perspective orbit camera used by the viewer.
package camera

import (
	gomath "math"

	"github.com/Faultbox/instructmesh/pkg/math"
)

// FitOffset is the per-axis direction used when framing a model.
// The camera sits at center + FitOffset * FitDistanceFactor * maxDim.
var FitOffset = math.Vec3{X: 0.7, Y: 0.7, Z: 0.7}

// FitDistanceFactor scales the largest bounding-box dimension when framing.
const FitDistanceFactor = 2

// Camera is a perspective camera orbiting a target point.
type Camera struct {
	Position math.Vec3
	Target   math.Vec3
	Up       math.Vec3

	// Projection
	FovY   float32 // vertical field of view, degrees
	Aspect float32
	Near   float32
	Far    float32

	// Orbit constraints
	MinDistance float32
	MaxDistance float32
	MinPitch    float32
	MaxPitch    float32

	// Sensitivity
	DragSensitivity float32
	ZoomSensitivity float32
}

// New creates a camera looking at the origin from +Z.
func New(fovY, aspect float32) *Camera {
	if aspect <= 0 {
		aspect = 1
	}
	return &Camera{
		Position:        math.Vec3{X: 0, Y: 0, Z: 5},
		Up:              math.Vec3{X: 0, Y: 1, Z: 0},
		FovY:            fovY,
		Aspect:          aspect,
		Near:            0.01,
		Far:             1000,
		MinDistance:     0.001,
		MaxDistance:     1e6,
		MinPitch:        -1.5,
		MaxPitch:        1.5,
		DragSensitivity: 0.005,
		ZoomSensitivity: 0.1,
	}
}

// ViewMatrix returns the view matrix for this camera.
func (c *Camera) ViewMatrix() math.Mat4 {
	return math.LookAt(c.Position, c.Target, c.Up)
}

// ProjectionMatrix returns the perspective projection matrix.
func (c *Camera) ProjectionMatrix() math.Mat4 {
	fov := c.FovY * gomath.Pi / 180
	return math.Perspective(fov, c.Aspect, c.Near, c.Far)
}

// ViewProjection returns projection * view.
func (c *Camera) ViewProjection() math.Mat4 {
	return c.ProjectionMatrix().Mul(c.ViewMatrix())
}

// InverseViewProjection returns the matrix that unprojects NDC into world space.
func (c *Camera) InverseViewProjection() math.Mat4 {
	return c.ViewProjection().Inverse()
}

// SetAspect updates the aspect ratio, ignoring degenerate values.
func (c *Camera) SetAspect(aspect float32) {
	if aspect > 0 {
		c.Aspect = aspect
	}
}

// Distance returns the distance between the camera and its target.
func (c *Camera) Distance() float32 {
	return c.Position.Distance(c.Target)
}

// FitToBounds frames the box: target at the center, camera at a fixed
// offset scaled by the largest box dimension. The result depends only on
// the box, never on the previous camera state.
func (c *Camera) FitToBounds(min, max math.Vec3) {
	center := min.Add(max).Scale(0.5)
	maxDim := max.Sub(min).MaxComponent()
	if maxDim <= 0 {
		maxDim = 1
	}

	c.Target = center
	c.Position = center.Add(FitOffset.Scale(FitDistanceFactor * maxDim))
	c.Up = math.Vec3{X: 0, Y: 1, Z: 0}

	c.Near = maxDim / 100
	c.Far = maxDim * 100
	c.MinDistance = maxDim * 0.05
	c.MaxDistance = maxDim * 20
}

// HandleDrag orbits the camera around the target from a mouse drag delta.
func (c *Camera) HandleDrag(deltaX, deltaY float32) {
	offset := c.Position.Sub(c.Target)
	radius := offset.Length()
	if radius == 0 {
		return
	}

	yaw := float32(gomath.Atan2(float64(offset.X), float64(offset.Z)))
	pitch := float32(gomath.Asin(float64(offset.Y / radius)))

	yaw -= deltaX * c.DragSensitivity
	pitch += deltaY * c.DragSensitivity

	// Clamp pitch
	if pitch < c.MinPitch {
		pitch = c.MinPitch
	}
	if pitch > c.MaxPitch {
		pitch = c.MaxPitch
	}

	c.Position = c.Target.Add(spherical(radius, pitch, yaw))
}

// HandleZoom moves the camera along its view direction from a wheel delta.
func (c *Camera) HandleZoom(delta float32) {
	offset := c.Position.Sub(c.Target)
	dist := offset.Length()
	if dist == 0 {
		return
	}

	dist -= delta * dist * c.ZoomSensitivity
	if dist < c.MinDistance {
		dist = c.MinDistance
	}
	if dist > c.MaxDistance {
		dist = c.MaxDistance
	}
	c.Position = c.Target.Add(offset.Normalize().Scale(dist))
}

func spherical(radius, pitch, yaw float32) math.Vec3 {
	cp := float32(gomath.Cos(float64(pitch)))
	return math.Vec3{
		X: radius * cp * float32(gomath.Sin(float64(yaw))),
		Y: radius * float32(gomath.Sin(float64(pitch))),
		Z: radius * cp * float32(gomath.Cos(float64(yaw))),
	}
}
