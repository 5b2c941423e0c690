package scene

import (
	"github.com/Faultbox/instructmesh/pkg/math"
)

// Texture is a decoded RGBA image referenced by a material.
// GPUHandle is owned by the renderer and is zero until first upload.
type Texture struct {
	Name      string
	Width     int
	Height    int
	Pix       []uint8 // RGBA, row-major, origin top-left
	GPUHandle uint32
}

// Material describes how a mesh is shaded.
// Map and VertexColors are mutually exclusive while a segmentation overlay
// is shown; Revision is bumped on every change so the renderer can react.
type Material struct {
	Name         string
	BaseColor    [4]float32
	Map          *Texture
	VertexColors bool
	Revision     uint64
}

// NewMaterial returns an untextured white material.
func NewMaterial(name string) *Material {
	return &Material{Name: name, BaseColor: [4]float32{1, 1, 1, 1}}
}

// MarkDirty records that the material changed.
func (m *Material) MarkDirty() {
	m.Revision++
}

// Mesh is a triangle mesh with an optional per-vertex color buffer.
//
// Positions are in the owning node's local space. Indices may be nil, in
// which case every three consecutive positions form a triangle. Colors holds
// RGB triplets (len == 3*len(Positions)) or is nil when the mesh has no
// color attribute.
type Mesh struct {
	Name      string
	Positions []math.Vec3
	Indices   []uint32
	UVs       [][2]float32
	Colors    []float32
	Material  *Material

	colorRevision uint64
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Positions)
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	if m.Indices != nil {
		return len(m.Indices) / 3
	}
	return len(m.Positions) / 3
}

// Triangle returns the vertex indices of triangle i.
func (m *Mesh) Triangle(i int) (a, b, c uint32) {
	if m.Indices != nil {
		return m.Indices[3*i], m.Indices[3*i+1], m.Indices[3*i+2]
	}
	base := uint32(3 * i)
	return base, base + 1, base + 2
}

// HasColors reports whether the mesh carries a color attribute.
func (m *Mesh) HasColors() bool {
	return m.Colors != nil
}

// SetColors replaces the color buffer and marks it dirty.
func (m *Mesh) SetColors(colors []float32) {
	m.Colors = colors
	m.MarkColorsDirty()
}

// MarkColorsDirty flags the color buffer for re-upload.
func (m *Mesh) MarkColorsDirty() {
	m.colorRevision++
}

// ColorRevision returns a counter that changes whenever the colors do.
func (m *Mesh) ColorRevision() uint64 {
	return m.colorRevision
}

// LocalBounds returns the axis-aligned bounds of the vertex positions.
func (m *Mesh) LocalBounds() Bounds {
	b := EmptyBounds()
	for _, p := range m.Positions {
		b.Extend(p)
	}
	return b
}
