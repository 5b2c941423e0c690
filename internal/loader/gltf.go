package loader

import (
	"fmt"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/Faultbox/instructmesh/internal/engine/scene"
	"github.com/Faultbox/instructmesh/internal/engine/texture"
	"github.com/Faultbox/instructmesh/pkg/math"
)

// maxNodeDepth guards against cyclic node hierarchies in malformed files.
const maxNodeDepth = 64

// gltfDecoder converts a glTF document into a scene node tree.
type gltfDecoder struct {
	doc      *gltf.Document
	external func(uri string) ([]byte, error) // resolves external image URIs
	log      *zap.Logger

	materials map[uint32]*scene.Material
	textures  map[uint32]*scene.Texture
	fallback  *scene.Material
}

func newGLTFDecoder(doc *gltf.Document, external func(string) ([]byte, error), log *zap.Logger) *gltfDecoder {
	return &gltfDecoder{
		doc:       doc,
		external:  external,
		log:       log,
		materials: make(map[uint32]*scene.Material),
		textures:  make(map[uint32]*scene.Texture),
	}
}

// decode builds a node holding every root node of the default scene.
func (d *gltfDecoder) decode(name string) (*scene.Node, error) {
	root := scene.NewNode(name)
	for _, idx := range d.rootNodes() {
		child, err := d.node(idx, 0)
		if err != nil {
			return nil, err
		}
		root.Add(child)
	}
	return root, nil
}

func (d *gltfDecoder) rootNodes() []uint32 {
	if len(d.doc.Scenes) > 0 {
		sc := uint32(0)
		if d.doc.Scene != nil && int(*d.doc.Scene) < len(d.doc.Scenes) {
			sc = *d.doc.Scene
		}
		return d.doc.Scenes[sc].Nodes
	}

	// No scene: every node that is nobody's child is a root.
	child := make(map[uint32]bool)
	for _, n := range d.doc.Nodes {
		for _, c := range n.Children {
			child[c] = true
		}
	}
	var roots []uint32
	for i := range d.doc.Nodes {
		if !child[uint32(i)] {
			roots = append(roots, uint32(i))
		}
	}
	return roots
}

func (d *gltfDecoder) node(idx uint32, depth int) (*scene.Node, error) {
	if depth > maxNodeDepth {
		return nil, fmt.Errorf("node hierarchy deeper than %d", maxNodeDepth)
	}
	if int(idx) >= len(d.doc.Nodes) {
		return nil, fmt.Errorf("node index %d out of range", idx)
	}
	n := d.doc.Nodes[idx]

	out := scene.NewNode(n.Name)
	out.Transform = nodeTransform(n)

	if n.Mesh != nil {
		meshes, err := d.mesh(*n.Mesh)
		if err != nil {
			return nil, err
		}
		if len(meshes) == 1 {
			out.Mesh = meshes[0]
		} else {
			for _, m := range meshes {
				prim := scene.NewNode(m.Name)
				prim.Mesh = m
				out.Add(prim)
			}
		}
	}

	for _, c := range n.Children {
		child, err := d.node(c, depth+1)
		if err != nil {
			return nil, err
		}
		out.Add(child)
	}
	return out, nil
}

func nodeTransform(n *gltf.Node) math.Mat4 {
	m := n.MatrixOrDefault()
	var mat math.Mat4
	for i := range mat {
		mat[i] = float32(m[i])
	}
	if !mat.IsIdentity() {
		return mat
	}

	t := n.TranslationOrDefault()
	r := n.RotationOrDefault()
	s := n.ScaleOrDefault()
	return math.TRS(
		math.Vec3{X: float32(t[0]), Y: float32(t[1]), Z: float32(t[2])},
		math.Quat{X: float32(r[0]), Y: float32(r[1]), Z: float32(r[2]), W: float32(r[3])},
		math.Vec3{X: float32(s[0]), Y: float32(s[1]), Z: float32(s[2])},
	)
}

// mesh converts every triangle primitive of mesh idx.
func (d *gltfDecoder) mesh(idx uint32) ([]*scene.Mesh, error) {
	if int(idx) >= len(d.doc.Meshes) {
		return nil, fmt.Errorf("mesh index %d out of range", idx)
	}
	gm := d.doc.Meshes[idx]

	var out []*scene.Mesh
	for pi, p := range gm.Primitives {
		if p.Mode != gltf.PrimitiveTriangles {
			d.log.Debug("skipping non-triangle primitive", zap.String("mesh", gm.Name), zap.Int("primitive", pi))
			continue
		}
		m, err := d.primitive(p)
		if err != nil {
			return nil, fmt.Errorf("mesh %q primitive %d: %w", gm.Name, pi, err)
		}
		if m == nil {
			continue
		}
		m.Name = gm.Name
		if len(gm.Primitives) > 1 {
			m.Name = fmt.Sprintf("%s.%d", gm.Name, pi)
		}
		out = append(out, m)
	}
	return out, nil
}

func (d *gltfDecoder) primitive(p *gltf.Primitive) (*scene.Mesh, error) {
	posIdx, ok := p.Attributes[gltf.POSITION]
	if !ok {
		return nil, nil
	}
	positions, err := modeler.ReadPosition(d.doc, d.doc.Accessors[posIdx], nil)
	if err != nil {
		return nil, fmt.Errorf("reading positions: %w", err)
	}

	mesh := &scene.Mesh{Positions: make([]math.Vec3, len(positions))}
	for i, v := range positions {
		mesh.Positions[i] = math.FromArray(v)
	}

	if p.Indices != nil {
		mesh.Indices, err = modeler.ReadIndices(d.doc, d.doc.Accessors[*p.Indices], nil)
		if err != nil {
			return nil, fmt.Errorf("reading indices: %w", err)
		}
		for _, i := range mesh.Indices {
			if int(i) >= len(positions) {
				return nil, fmt.Errorf("index %d out of range for %d vertices", i, len(positions))
			}
		}
	}

	if uvIdx, ok := p.Attributes[gltf.TEXCOORD_0]; ok {
		mesh.UVs, err = modeler.ReadTextureCoord(d.doc, d.doc.Accessors[uvIdx], nil)
		if err != nil {
			return nil, fmt.Errorf("reading texture coordinates: %w", err)
		}
	}

	if colIdx, ok := p.Attributes[gltf.COLOR_0]; ok {
		data, err := modeler.ReadAccessor(d.doc, d.doc.Accessors[colIdx], nil)
		if err != nil {
			return nil, fmt.Errorf("reading colors: %w", err)
		}
		mesh.Colors = colorsToRGB(data)
	}

	mesh.Material, err = d.material(p.Material)
	if err != nil {
		return nil, err
	}
	if mesh.HasColors() {
		mesh.Material.VertexColors = true
	}
	return mesh, nil
}

// colorsToRGB flattens any COLOR_0 layout into float RGB triplets.
func colorsToRGB(data any) []float32 {
	var out []float32
	switch c := data.(type) {
	case [][3]float32:
		for _, v := range c {
			out = append(out, v[0], v[1], v[2])
		}
	case [][4]float32:
		for _, v := range c {
			out = append(out, v[0], v[1], v[2])
		}
	case [][3]uint8:
		for _, v := range c {
			out = append(out, float32(v[0])/255, float32(v[1])/255, float32(v[2])/255)
		}
	case [][4]uint8:
		for _, v := range c {
			out = append(out, float32(v[0])/255, float32(v[1])/255, float32(v[2])/255)
		}
	case [][3]uint16:
		for _, v := range c {
			out = append(out, float32(v[0])/65535, float32(v[1])/65535, float32(v[2])/65535)
		}
	case [][4]uint16:
		for _, v := range c {
			out = append(out, float32(v[0])/65535, float32(v[1])/65535, float32(v[2])/65535)
		}
	}
	return out
}

func (d *gltfDecoder) material(idx *uint32) (*scene.Material, error) {
	if idx == nil || int(*idx) >= len(d.doc.Materials) {
		if d.fallback == nil {
			d.fallback = scene.NewMaterial("default")
		}
		return d.fallback, nil
	}
	if m, ok := d.materials[*idx]; ok {
		return m, nil
	}

	gm := d.doc.Materials[*idx]
	m := scene.NewMaterial(gm.Name)
	if pbr := gm.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			f := *pbr.BaseColorFactor
			m.BaseColor = [4]float32{float32(f[0]), float32(f[1]), float32(f[2]), float32(f[3])}
		}
		if pbr.BaseColorTexture != nil {
			tex, err := d.texture(pbr.BaseColorTexture.Index)
			if err != nil {
				// A broken texture should not prevent the mesh from showing.
				d.log.Warn("skipping base color texture", zap.String("material", gm.Name), zap.Error(err))
			}
			m.Map = tex
		}
	}
	d.materials[*idx] = m
	return m, nil
}

func (d *gltfDecoder) texture(idx uint32) (*scene.Texture, error) {
	if int(idx) >= len(d.doc.Textures) || d.doc.Textures[idx].Source == nil {
		return nil, fmt.Errorf("texture %d has no image", idx)
	}
	src := *d.doc.Textures[idx].Source
	if t, ok := d.textures[src]; ok {
		return t, nil
	}
	if int(src) >= len(d.doc.Images) {
		return nil, fmt.Errorf("image index %d out of range", src)
	}
	img := d.doc.Images[src]

	data, err := d.imageData(img)
	if err != nil {
		return nil, err
	}
	name := img.Name
	if name == "" {
		name = img.URI
	}
	tex, err := texture.Decode(name, data, img.MimeType)
	if err != nil {
		return nil, err
	}
	d.textures[src] = tex
	return tex, nil
}

func (d *gltfDecoder) imageData(img *gltf.Image) ([]byte, error) {
	switch {
	case img.BufferView != nil:
		if int(*img.BufferView) >= len(d.doc.BufferViews) {
			return nil, fmt.Errorf("buffer view %d out of range", *img.BufferView)
		}
		bv := d.doc.BufferViews[*img.BufferView]
		if int(bv.Buffer) >= len(d.doc.Buffers) {
			return nil, fmt.Errorf("buffer %d out of range", bv.Buffer)
		}
		buf := d.doc.Buffers[bv.Buffer].Data
		start, end := int(bv.ByteOffset), int(bv.ByteOffset)+int(bv.ByteLength)
		if end > len(buf) {
			return nil, fmt.Errorf("buffer view %d exceeds buffer", *img.BufferView)
		}
		return buf[start:end], nil
	case img.IsEmbeddedResource():
		return img.MarshalData()
	case img.URI != "" && d.external != nil:
		return d.external(img.URI)
	default:
		return nil, fmt.Errorf("image %q has no data", img.Name)
	}
}
