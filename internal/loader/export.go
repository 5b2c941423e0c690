package loader

import (
	"fmt"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/instructmesh/internal/engine/scene"
)

// SaveGLB writes the model to path as a binary glTF, one mesh per mesh node,
// painted colors included. Node transforms are baked into the positions,
// which are written in model space so that loading the file again yields the
// same picture.
func SaveGLB(model *scene.Model, path string) error {
	instances := model.Meshes()
	if len(instances) == 0 {
		return fmt.Errorf("model %q has no meshes", model.Name)
	}

	doc := gltf.NewDocument()
	doc.Asset.Generator = "instructmesh"

	toModel := model.Root.Transform.Inverse()
	materials := make(map[*scene.Material]uint32)
	for _, mi := range instances {
		mesh := mi.Mesh()

		positions := make([][3]float32, len(mesh.Positions))
		for i := range mesh.Positions {
			positions[i] = toModel.TransformVec3(mi.WorldPosition(i)).Array()
		}
		indices := mesh.Indices
		if indices == nil {
			indices = make([]uint32, len(positions))
			for i := range indices {
				indices[i] = uint32(i)
			}
		}

		prim := &gltf.Primitive{
			Attributes: map[string]uint32{
				gltf.POSITION: uint32(modeler.WritePosition(doc, positions)),
			},
			Indices: gltf.Index(uint32(modeler.WriteIndices(doc, indices))),
		}
		if mesh.HasColors() {
			colors := make([][4]float32, len(mesh.Positions))
			for i := range colors {
				colors[i] = [4]float32{mesh.Colors[3*i], mesh.Colors[3*i+1], mesh.Colors[3*i+2], 1}
			}
			prim.Attributes[gltf.COLOR_0] = uint32(modeler.WriteColor(doc, colors))
		}
		if mesh.Material != nil {
			idx, ok := materials[mesh.Material]
			if !ok {
				idx = uint32(len(doc.Materials))
				c := mesh.Material.BaseColor
				doc.Materials = append(doc.Materials, &gltf.Material{
					Name: mesh.Material.Name,
					PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
						BaseColorFactor: &[4]float32{c[0], c[1], c[2], c[3]},
						MetallicFactor:  gltf.Float(0),
						RoughnessFactor: gltf.Float(1),
					},
				})
				materials[mesh.Material] = idx
			}
			prim.Material = gltf.Index(idx)
		}

		doc.Meshes = append(doc.Meshes, &gltf.Mesh{Name: mesh.Name, Primitives: []*gltf.Primitive{prim}})
		doc.Nodes = append(doc.Nodes, &gltf.Node{Name: mi.Node.Name, Mesh: gltf.Index(uint32(len(doc.Meshes) - 1))})
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(len(doc.Nodes)-1))
	}

	return gltf.SaveBinary(doc, path)
}
