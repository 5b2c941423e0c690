package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/instructmesh/internal/engine/camera"
	"github.com/Faultbox/instructmesh/pkg/math"
)

func cubeModel(name string, size float32) *Model {
	root := NewNode(name)
	mesh := &Mesh{
		Name: name,
		Positions: []math.Vec3{
			{X: 0, Y: 0, Z: 0}, {X: size, Y: 0, Z: 0}, {X: 0, Y: size, Z: 0},
			{X: 0, Y: 0, Z: size}, {X: size, Y: size, Z: size},
		},
		Indices:  []uint32{0, 1, 2, 0, 2, 3, 1, 4, 2},
		Material: NewMaterial(name),
	}
	root.Mesh = mesh
	return NewModel(name, root)
}

func TestAddModelReplacesPrevious(t *testing.T) {
	v := NewViewer(camera.New(45, 1), 640, 480)

	var replaced []*Model
	v.OnModelReplaced(func(old *Model) { replaced = append(replaced, old) })

	a := cubeModel("a", 1)
	b := cubeModel("b", 2)

	v.AddModel(a)
	require.Same(t, a, v.Model())
	assert.Empty(t, replaced)
	assert.NotZero(t, a.ID())

	v.AddModel(b)
	require.Same(t, b, v.Model())
	require.Len(t, replaced, 1)
	assert.Same(t, a, replaced[0])
	assert.Zero(t, a.ID(), "detached model keeps no id")
	assert.Len(t, v.Root().Children, 1)
	assert.Same(t, b.Root, v.Root().Children[0])
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestRemoveModel(t *testing.T) {
	v := NewViewer(camera.New(45, 1), 640, 480)
	fired := 0
	v.OnModelReplaced(func(*Model) { fired++ })

	v.RemoveModel()
	assert.Equal(t, 0, fired, "no hook without a model")

	v.AddModel(cubeModel("a", 1))
	v.RemoveModel()
	assert.Equal(t, 1, fired)
	assert.False(t, v.HasModel())
	assert.Empty(t, v.Root().Children)
}

func TestFitToCamera(t *testing.T) {
	cam := camera.New(45, 1)
	v := NewViewer(cam, 640, 480)

	before := cam.Position
	v.FitToCamera()
	assert.Equal(t, before, cam.Position, "fit without model is a no-op")

	v.AddModel(cubeModel("a", 2))
	v.FitToCamera()
	assert.Equal(t, math.Vec3{X: 1, Y: 1, Z: 1}, cam.Target)
	assert.InDelta(t, 1+0.7*2*2, cam.Position.X, 1e-4)
}

func TestResizeFallsBackOnZero(t *testing.T) {
	cam := camera.New(45, 1)
	v := NewViewer(cam, 0, 0)

	w, h := v.Size()
	assert.Equal(t, DefaultWidth, w)
	assert.Equal(t, DefaultHeight, h)
	assert.InDelta(t, float32(DefaultWidth)/float32(DefaultHeight), cam.Aspect, 1e-6)

	v.Resize(1000, 500)
	v.Resize(1000, 500)
	w, h = v.Size()
	assert.Equal(t, 1000, w)
	assert.Equal(t, 500, h)
	assert.InDelta(t, 2.0, cam.Aspect, 1e-6)

	v.Resize(-5, 300)
	w, h = v.Size()
	assert.Equal(t, DefaultWidth, w)
	assert.Equal(t, DefaultHeight, h)
}

func TestModelMeshesAppliesTransforms(t *testing.T) {
	root := NewNode("root")
	root.Transform = math.Translate(10, 0, 0)
	child := NewNode("child")
	child.Transform = math.Scale(2, 2, 2)
	child.Mesh = &Mesh{Positions: []math.Vec3{{X: 1, Y: 1, Z: 1}}}
	root.Add(child)

	m := NewModel("t", root)
	meshes := m.Meshes()
	require.Len(t, meshes, 1)
	assert.Equal(t, math.Vec3{X: 12, Y: 2, Z: 2}, meshes[0].WorldPosition(0))

	b := m.Bounds()
	assert.Equal(t, b.Min, b.Max)
	assert.Equal(t, float32(0), b.MaxDimension())
}

func TestEmptyBounds(t *testing.T) {
	b := EmptyBounds()
	assert.True(t, b.IsEmpty())
	assert.Equal(t, float32(0), b.MaxDimension())

	b.Extend(math.Vec3{X: 1, Y: 2, Z: 3})
	assert.False(t, b.IsEmpty())
}
