package picking

import (
	"github.com/Faultbox/instructmesh/internal/engine/camera"
	"github.com/Faultbox/instructmesh/internal/engine/scene"
	"github.com/Faultbox/instructmesh/pkg/math"
)

// Button identifies which pointer button produced an event.
type Button int

const (
	ButtonPrimary Button = iota
	ButtonSecondary
)

// PointerEvent is a pointer press on the render surface.
type PointerEvent struct {
	ClientX, ClientY float32
	Button           Button
}

// Hit describes the nearest intersection of a pick ray with the model.
type Hit struct {
	Point     math.Vec3 // world space
	Distance  float32   // world-space distance from the ray origin
	MeshIndex int       // index into Model.Meshes()
	Face      int       // triangle index within that mesh
}

// Mapper resolves pointer events against the current model. It holds no
// state; the zero value is ready to use.
type Mapper struct{}

// Pick casts a ray through the pointer position and returns the nearest
// triangle hit across every mesh of the model. A miss returns false and is
// not an error. A nil model or an empty rect never hits.
func (Mapper) Pick(ev PointerEvent, rect Rect, cam *camera.Camera, model *scene.Model) (Hit, bool) {
	if model == nil || cam == nil || rect.Empty() {
		return Hit{}, false
	}
	ndcX, ndcY := NDC(ev.ClientX, ev.ClientY, rect)
	ray := RayFromNDC(ndcX, ndcY, cam.InverseViewProjection())
	return IntersectModel(ray, model)
}

// IntersectModel returns the nearest hit of a world-space ray with the model.
func IntersectModel(ray Ray, model *scene.Model) (Hit, bool) {
	var best Hit
	found := false

	for mi, inst := range model.Meshes() {
		mesh := inst.Mesh()
		if mesh.TriangleCount() == 0 {
			continue
		}

		// Work in the node's local space so vertices are never transformed.
		// The local direction is left unnormalized so t maps back to the same
		// world point.
		inv := inst.World.Inverse()
		local := Ray{
			Origin:    inv.TransformVec3(ray.Origin),
			Direction: math.FromArray(inv.TransformDirection(ray.Direction.Array())),
		}

		lb := mesh.LocalBounds()
		if _, ok := local.IntersectAABB(AABB{Min: lb.Min, Max: lb.Max}); !ok {
			continue
		}

		for f := 0; f < mesh.TriangleCount(); f++ {
			ia, ib, ic := mesh.Triangle(f)
			t, ok := local.IntersectTriangle(mesh.Positions[ia], mesh.Positions[ib], mesh.Positions[ic])
			if !ok {
				continue
			}
			world := inst.World.TransformVec3(local.At(t))
			dist := world.Distance(ray.Origin)
			if !found || dist < best.Distance {
				best = Hit{Point: world, Distance: dist, MeshIndex: mi, Face: f}
				found = true
			}
		}
	}
	return best, found
}
