package renderer

import (
	"testing"

	"github.com/Faultbox/instructmesh/internal/engine/scene"
	"github.com/Faultbox/instructmesh/pkg/math"
)

func TestColorsStaleTracksRevision(t *testing.T) {
	mesh := &scene.Mesh{Positions: []math.Vec3{{}, {}, {}}}
	gm := &gpuMesh{}

	if !gm.colorsStale(mesh) {
		t.Fatal("first frame must upload colors")
	}
	if gm.colorsStale(mesh) {
		t.Error("unchanged mesh reported stale")
	}

	mesh.SetColors([]float32{1, 0, 0, 1, 0, 0, 1, 0, 0})
	if !gm.colorsStale(mesh) {
		t.Error("SetColors did not mark colors stale")
	}
	mesh.MarkColorsDirty()
	if !gm.colorsStale(mesh) {
		t.Error("MarkColorsDirty did not mark colors stale")
	}
	if gm.colorsStale(mesh) {
		t.Error("stale twice for one change")
	}
}

func TestMeshCacheUploadsOnce(t *testing.T) {
	c := newMeshCache()
	mesh := &scene.Mesh{}
	uploads := 0
	upload := func(*scene.Mesh) *gpuMesh {
		uploads++
		return &gpuMesh{vao: uint32(uploads)}
	}

	first := c.get(mesh, upload)
	second := c.get(mesh, upload)
	if first != second || uploads != 1 {
		t.Fatalf("uploads = %d, same = %v", uploads, first == second)
	}

	freed := 0
	c.release(mesh, func(*gpuMesh) { freed++ })
	c.release(mesh, func(*gpuMesh) { freed++ })
	if freed != 1 || c.len() != 0 {
		t.Errorf("freed = %d, len = %d", freed, c.len())
	}
}

func TestMeshCacheReleaseAll(t *testing.T) {
	c := newMeshCache()
	for i := 0; i < 3; i++ {
		c.get(&scene.Mesh{}, func(*scene.Mesh) *gpuMesh { return &gpuMesh{} })
	}
	tex := &scene.Texture{GPUHandle: 7}
	c.track(tex)

	meshes, textures := 0, 0
	c.releaseAll(func(*gpuMesh) { meshes++ }, func(*scene.Texture) { textures++ })
	if meshes != 3 || textures != 1 {
		t.Errorf("released %d meshes, %d textures", meshes, textures)
	}
	if c.len() != 0 {
		t.Errorf("len = %d after releaseAll", c.len())
	}
}
