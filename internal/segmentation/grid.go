package segmentation

import (
	gomath "math"

	"github.com/Faultbox/instructmesh/pkg/math"
)

// proximity answers "is p within the radius of any segment point".
type proximity interface {
	within(p math.Vec3) bool
}

// bruteForce tests every point. Used for small inputs.
type bruteForce struct {
	points []math.Vec3
	r2     float32
}

func (b bruteForce) within(p math.Vec3) bool {
	for _, q := range b.points {
		if p.DistanceSquared(q) <= b.r2 {
			return true
		}
	}
	return false
}

type cellKey struct {
	x, y, z int64
}

// grid buckets segment points into cubic cells a little larger than the
// radius, so any point within the radius of p lies in p's cell or one of
// its 26 neighbours.
type grid struct {
	inv   float64 // 1 / cell size
	r2    float32
	cells map[cellKey][]math.Vec3
}

// cellMargin keeps cell membership stable for points exactly on the radius.
const cellMargin = 1.001

func newGrid(points []math.Vec3, radius float32) *grid {
	g := &grid{
		inv:   1 / (float64(radius) * cellMargin),
		r2:    radius * radius,
		cells: make(map[cellKey][]math.Vec3, len(points)),
	}
	for _, p := range points {
		k := g.key(p)
		g.cells[k] = append(g.cells[k], p)
	}
	return g
}

func (g *grid) key(p math.Vec3) cellKey {
	return cellKey{
		x: int64(gomath.Floor(float64(p.X) * g.inv)),
		y: int64(gomath.Floor(float64(p.Y) * g.inv)),
		z: int64(gomath.Floor(float64(p.Z) * g.inv)),
	}
}

func (g *grid) within(p math.Vec3) bool {
	k := g.key(p)
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				for _, q := range g.cells[cellKey{k.x + dx, k.y + dy, k.z + dz}] {
					if p.DistanceSquared(q) <= g.r2 {
						return true
					}
				}
			}
		}
	}
	return false
}

// newProximity picks the grid when the all-pairs cost exceeds limit.
func newProximity(points []math.Vec3, radius float32, vertices, limit int) proximity {
	if radius <= 0 || len(points) == 0 || vertices*len(points) <= limit {
		return bruteForce{points: points, r2: radius * radius}
	}
	return newGrid(points, radius)
}
