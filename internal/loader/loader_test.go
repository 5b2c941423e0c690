package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/instructmesh/internal/engine/scene"
	"github.com/Faultbox/instructmesh/pkg/math"
)

const eps = 1e-5

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func assertVec(t *testing.T, want, got math.Vec3) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, eps)
	assert.InDelta(t, want.Y, got.Y, eps)
	assert.InDelta(t, want.Z, got.Z, eps)
}

func TestLoadOBJAppliesUpAxis(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "tri.obj", `# z-up triangle
v 0 0 1
v 1 0 0
v 0 1 0
f 1 2 3
`)

	model, err := New(nil).Load(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "tri", model.Name)
	assert.Equal(t, p, model.Source)

	meshes := model.Meshes()
	require.Len(t, meshes, 1)
	// +Z in the file is up (+Y) in the viewer.
	assertVec(t, math.V3(0, 1, 0), meshes[0].WorldPosition(0))
	assertVec(t, math.V3(0, 0, -1), meshes[0].WorldPosition(2))
	assertVec(t, math.V3(0, 0, 1), model.ToModel(meshes[0].WorldPosition(0)))
	assert.False(t, meshes[0].Mesh().HasColors())
}

func TestLoadOBJFacesAndColors(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "quad.obj", `
v 0 0 0 1 0 0
v 1 0 0 0 255 0
v 1 1 0 0 0 1
v 0 1 0 1 1 1
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
f 1/1/1 2/2/1 3/3/1 -1/-1/1
`)

	model, err := New(nil).Load(context.Background(), p)
	require.NoError(t, err)
	mesh := model.Meshes()[0].Mesh()

	assert.Equal(t, 4, mesh.VertexCount())
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, mesh.Indices)
	require.True(t, mesh.HasColors())
	assert.Equal(t, []float32{1, 0, 0, 0, 1, 0, 0, 0, 1, 1, 1, 1}, mesh.Colors)
	assert.True(t, mesh.Material.VertexColors)
	require.Len(t, mesh.UVs, 4)
	assert.Equal(t, [2]float32{1, 0}, mesh.UVs[2], "V is flipped")
}

func TestLoadOBJMaterials(t *testing.T) {
	dir := t.TempDir()
	// 1x1 uncompressed 24 bit TGA, one white pixel.
	tga := make([]byte, 18)
	tga[2], tga[12], tga[14], tga[16] = 2, 1, 1, 24
	tga = append(tga, 255, 255, 255)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "albedo.tga"), tga, 0o644))

	writeFile(t, dir, "parts.mtl", `newmtl body
Kd 0.5 0.25 1
map_Kd albedo.tga
newmtl glass
Kd 1 1 1
d 0.5
`)
	p := writeFile(t, dir, "parts.obj", `mtllib parts.mtl
v 0 0 0
v 1 0 0
v 0 1 0
v 0 0 1
usemtl body
f 1 2 3
usemtl glass
f 1 3 4
usemtl body
f 2 3 4
`)

	model, err := New(nil).Load(context.Background(), p)
	require.NoError(t, err)
	meshes := model.Meshes()
	require.Len(t, meshes, 2)

	body := meshes[0].Mesh()
	assert.Equal(t, "body", body.Material.Name)
	assert.Equal(t, 2, body.TriangleCount())
	assert.Equal(t, [4]float32{0.5, 0.25, 1, 1}, body.Material.BaseColor)
	require.NotNil(t, body.Material.Map)
	assert.Equal(t, 1, body.Material.Map.Width)

	glass := meshes[1].Mesh()
	assert.InDelta(t, 0.5, glass.Material.BaseColor[3], eps)
	assert.Nil(t, glass.Material.Map)
	assert.Len(t, model.Materials(), 2)
}

func TestLoadOBJMissingMaterialLibrary(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "m.obj", "mtllib nope.mtl\nv 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n")

	model, err := New(nil).Load(context.Background(), p)
	require.NoError(t, err)
	assert.Len(t, model.Meshes(), 1)
}

func TestLoadOBJErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name, content string
	}{
		{"no-faces.obj", "v 0 0 0\n"},
		{"bad-index.obj", "v 0 0 0\nv 1 0 0\nf 1 2 7\n"},
		{"bad-float.obj", "v 0 x 0\n"},
		{"short-face.obj", "v 0 0 0\nv 1 0 0\nf 1 2\n"},
	}
	l := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Load(context.Background(), writeFile(t, dir, tt.name, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestSaveGLBRoundTrip(t *testing.T) {
	mesh := &scene.Mesh{
		Name:      "tri",
		Positions: []math.Vec3{math.V3(0, 0, 0), math.V3(1, 0, 0), math.V3(0, 0, 1)},
		Indices:   []uint32{0, 1, 2},
		Colors:    []float32{1, 0.2, 0.2, 0.7, 0.7, 0.7, 0.7, 0.7, 0.7},
		Material:  scene.NewMaterial("paint"),
	}
	root := scene.NewNode("root")
	root.Transform = math.RotationXDegrees(UpAxisRotation)
	child := scene.NewNode("part")
	child.Transform = math.Translate(0, 0, 2)
	child.Mesh = mesh
	root.Add(child)
	src := scene.NewModel("painted", root)

	out := filepath.Join(t.TempDir(), "painted.glb")
	require.NoError(t, SaveGLB(src, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, FormatGLB, Detect("whatever", data))

	got, err := New(nil).Load(context.Background(), out)
	require.NoError(t, err)
	meshes := got.Meshes()
	require.Len(t, meshes, 1)

	want := src.Meshes()[0]
	for i := range mesh.Positions {
		assertVec(t, want.WorldPosition(i), meshes[0].WorldPosition(i))
	}
	loaded := meshes[0].Mesh()
	assert.Equal(t, []uint32{0, 1, 2}, loaded.Indices)
	require.True(t, loaded.HasColors())
	assert.InDeltaSlice(t, mesh.Colors, loaded.Colors, eps)
	assert.True(t, loaded.Material.VertexColors)
}

func TestDetect(t *testing.T) {
	tests := []struct {
		ref  string
		data string
		want Format
	}{
		{"a.bin", "glTF\x02\x00\x00\x00", FormatGLB},
		{"http://h/files/x/model.glb?v=2", "", FormatGLB},
		{"scene.GLTF", "", FormatGLTF},
		{"blob", ` {"asset":{}}`, FormatGLTF},
		{"mesh.obj", "", FormatOBJ},
		{"blob", "v 0 0 0", FormatOBJ},
		{"blob", "  ", FormatUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Detect(tt.ref, []byte(tt.data)), "%s %q", tt.ref, tt.data)
	}
}
