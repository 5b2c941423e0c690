package scene

import (
	gomath "math"

	"github.com/Faultbox/instructmesh/pkg/math"
)

// Bounds holds an axis-aligned bounding box.
type Bounds struct {
	Min math.Vec3
	Max math.Vec3
}

// EmptyBounds returns an inverted box that any Extend call will fix up.
func EmptyBounds() Bounds {
	inf := float32(gomath.Inf(1))
	return Bounds{
		Min: math.Vec3{X: inf, Y: inf, Z: inf},
		Max: math.Vec3{X: -inf, Y: -inf, Z: -inf},
	}
}

// IsEmpty reports whether no point was ever added.
func (b Bounds) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Extend grows the box to include p.
func (b *Bounds) Extend(p math.Vec3) {
	b.Min = b.Min.Min(p)
	b.Max = b.Max.Max(p)
}

// Center returns the box center.
func (b Bounds) Center() math.Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Size returns the box extent per axis.
func (b Bounds) Size() math.Vec3 {
	return b.Max.Sub(b.Min)
}

// MaxDimension returns the largest extent, or 0 for an empty box.
func (b Bounds) MaxDimension() float32 {
	if b.IsEmpty() {
		return 0
	}
	return b.Size().MaxComponent()
}

// Node is an element of a model's scene graph.
type Node struct {
	Name      string
	Transform math.Mat4 // local transform relative to the parent
	Mesh      *Mesh
	Children  []*Node
}

// NewNode creates a node with an identity transform.
func NewNode(name string) *Node {
	return &Node{Name: name, Transform: math.Identity()}
}

// Add appends a child node.
func (n *Node) Add(child *Node) {
	n.Children = append(n.Children, child)
}

// MeshInstance pairs a mesh node with its world transform.
type MeshInstance struct {
	Node  *Node
	World math.Mat4
}

// Mesh returns the instance's mesh.
func (mi MeshInstance) Mesh() *Mesh {
	return mi.Node.Mesh
}

// WorldPosition returns vertex i transformed into world space.
func (mi MeshInstance) WorldPosition(i int) math.Vec3 {
	return mi.World.TransformVec3(mi.Node.Mesh.Positions[i])
}

// Model is a loaded asset: a node tree plus bookkeeping.
type Model struct {
	Name   string
	Source string // URL or path the model was loaded from
	Root   *Node

	id uint64
}

// NewModel wraps a root node into a model.
func NewModel(name string, root *Node) *Model {
	return &Model{Name: name, Root: root}
}

// ID is assigned by the viewer when the model is attached; 0 means detached.
func (m *Model) ID() uint64 {
	return m.id
}

// Meshes walks the node tree depth-first and returns every mesh node with
// its world transform. The order is stable for the model's lifetime.
func (m *Model) Meshes() []MeshInstance {
	var out []MeshInstance
	if m == nil || m.Root == nil {
		return out
	}
	var walk func(n *Node, parent math.Mat4)
	walk = func(n *Node, parent math.Mat4) {
		world := parent.Mul(n.Transform)
		if n.Mesh != nil {
			out = append(out, MeshInstance{Node: n, World: world})
		}
		for _, c := range n.Children {
			walk(c, world)
		}
	}
	walk(m.Root, math.Identity())
	return out
}

// ToWorld maps a point from model space (the asset's own coordinates, before
// the root transform applies the up-axis conversion) into world space.
func (m *Model) ToWorld(p math.Vec3) math.Vec3 {
	return m.Root.Transform.TransformVec3(p)
}

// ToModel is the inverse of ToWorld.
func (m *Model) ToModel(p math.Vec3) math.Vec3 {
	return m.Root.Transform.Inverse().TransformVec3(p)
}

// Bounds returns the world-space bounding box of every mesh in the model.
func (m *Model) Bounds() Bounds {
	b := EmptyBounds()
	for _, mi := range m.Meshes() {
		for i := range mi.Node.Mesh.Positions {
			b.Extend(mi.WorldPosition(i))
		}
	}
	return b
}

// Materials returns every distinct material referenced by the model's meshes.
func (m *Model) Materials() []*Material {
	seen := make(map[*Material]bool)
	var out []*Material
	for _, mi := range m.Meshes() {
		mat := mi.Node.Mesh.Material
		if mat == nil || seen[mat] {
			continue
		}
		seen[mat] = true
		out = append(out, mat)
	}
	return out
}
