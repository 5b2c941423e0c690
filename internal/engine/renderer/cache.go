package renderer

import "github.com/Faultbox/instructmesh/internal/engine/scene"

// gpuMesh holds the GL objects backing one scene mesh.
type gpuMesh struct {
	vao       uint32
	positions uint32
	uvs       uint32
	colors    uint32
	ebo       uint32
	count     int32

	colorRev uint64
	synced   bool
}

// colorsStale reports whether the mesh's color buffer changed since the last
// upload and records the new revision.
func (gm *gpuMesh) colorsStale(mesh *scene.Mesh) bool {
	rev := mesh.ColorRevision()
	if gm.synced && gm.colorRev == rev {
		return false
	}
	gm.colorRev = rev
	gm.synced = true
	return true
}

// meshCache maps scene meshes and textures to their GPU counterparts.
// Geometry is uploaded once; only colors change afterwards.
type meshCache struct {
	meshes   map[*scene.Mesh]*gpuMesh
	textures map[*scene.Texture]struct{}
}

func newMeshCache() *meshCache {
	return &meshCache{
		meshes:   make(map[*scene.Mesh]*gpuMesh),
		textures: make(map[*scene.Texture]struct{}),
	}
}

func (c *meshCache) get(mesh *scene.Mesh, upload func(*scene.Mesh) *gpuMesh) *gpuMesh {
	gm, ok := c.meshes[mesh]
	if !ok {
		gm = upload(mesh)
		c.meshes[mesh] = gm
	}
	return gm
}

func (c *meshCache) release(mesh *scene.Mesh, free func(*gpuMesh)) {
	if gm, ok := c.meshes[mesh]; ok {
		free(gm)
		delete(c.meshes, mesh)
	}
}

func (c *meshCache) track(tex *scene.Texture) {
	c.textures[tex] = struct{}{}
}

func (c *meshCache) untrack(tex *scene.Texture, free func(*scene.Texture)) {
	if _, ok := c.textures[tex]; ok {
		free(tex)
		delete(c.textures, tex)
	}
}

func (c *meshCache) releaseAll(freeMesh func(*gpuMesh), freeTex func(*scene.Texture)) {
	for mesh, gm := range c.meshes {
		freeMesh(gm)
		delete(c.meshes, mesh)
	}
	for tex := range c.textures {
		freeTex(tex)
		delete(c.textures, tex)
	}
}

func (c *meshCache) len() int {
	return len(c.meshes)
}
