package segmentation

import (
	"github.com/Faultbox/instructmesh/internal/engine/scene"
)

type meshAppearance struct {
	colors    []float32 // never aliased by the mesh
	hadColors bool
}

type materialAppearance struct {
	material     *scene.Material
	texture      *scene.Texture
	vertexColors bool
}

// Snapshot is a model's appearance before any overlay painting: every mesh's
// color buffer (or synthesized neutral gray when it had none) and every
// material's texture map and vertex color flag.
type Snapshot struct {
	model     *scene.Model
	modelID   uint64
	meshes    map[*scene.Mesh]meshAppearance
	materials []materialAppearance
}

// CaptureSnapshot records the current appearance of every mesh in model.
// Meshes shared by several nodes are captured once.
func CaptureSnapshot(model *scene.Model, neutral [3]float32) *Snapshot {
	s := &Snapshot{
		model:   model,
		modelID: model.ID(),
		meshes:  make(map[*scene.Mesh]meshAppearance),
	}

	for _, inst := range model.Meshes() {
		mesh := inst.Mesh()
		if _, ok := s.meshes[mesh]; ok {
			continue
		}
		if mesh.HasColors() {
			s.meshes[mesh] = meshAppearance{colors: append([]float32(nil), mesh.Colors...), hadColors: true}
		} else {
			s.meshes[mesh] = meshAppearance{colors: neutralBuffer(mesh.VertexCount(), neutral)}
		}
	}

	for _, mat := range model.Materials() {
		s.materials = append(s.materials, materialAppearance{
			material:     mat,
			texture:      mat.Map,
			vertexColors: mat.VertexColors,
		})
	}
	return s
}

// Model returns the model the snapshot was taken from.
func (s *Snapshot) Model() *scene.Model {
	return s.model
}

// Covers reports whether the snapshot belongs to model as currently attached.
func (s *Snapshot) Covers(model *scene.Model) bool {
	return s != nil && model != nil && s.model == model && s.modelID == model.ID()
}

// baseColor returns the pre-paint color of vertex i, or neutral when the
// snapshot holds no entry for it.
func (s *Snapshot) baseColor(mesh *scene.Mesh, i int, neutral [3]float32) [3]float32 {
	if s == nil {
		return neutral
	}
	app, ok := s.meshes[mesh]
	if !ok || 3*i+2 >= len(app.colors) {
		return neutral
	}
	return [3]float32{app.colors[3*i], app.colors[3*i+1], app.colors[3*i+2]}
}

// restore writes the captured appearance back. Meshes that had no color
// attribute lose the one painting added.
func (s *Snapshot) restore() {
	for mesh, app := range s.meshes {
		if app.hadColors {
			mesh.SetColors(append([]float32(nil), app.colors...))
		} else {
			mesh.SetColors(nil)
		}
	}
	for _, m := range s.materials {
		m.material.Map = m.texture
		m.material.VertexColors = m.vertexColors
		m.material.MarkDirty()
	}
}

func neutralBuffer(n int, c [3]float32) []float32 {
	buf := make([]float32, 3*n)
	for i := 0; i < n; i++ {
		buf[3*i] = c[0]
		buf[3*i+1] = c[1]
		buf[3*i+2] = c[2]
	}
	return buf
}
