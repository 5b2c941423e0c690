package loader

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/instructmesh/internal/engine/scene"
	"github.com/Faultbox/instructmesh/internal/engine/texture"
	"github.com/Faultbox/instructmesh/pkg/math"
)

// objDecoder parses the Wavefront OBJ subset produced by mesh generators:
// positions (optionally followed by RGB vertex colors), texture coordinates,
// polygonal faces and MTL materials with a diffuse color and map.
type objDecoder struct {
	related func(rel string) ([]byte, error) // loads files next to the OBJ
	log     *zap.Logger

	positions []math.Vec3
	colors    [][3]float32
	uvs       [][2]float32

	materials map[string]*scene.Material
	groups    []*objGroup
	current   *objGroup
	line      int
}

// objGroup collects the faces sharing one material.
type objGroup struct {
	material string
	mesh     *scene.Mesh
	remap    map[[2]int]uint32 // (position, uv) -> mesh vertex
	colored  bool
}

func decodeOBJ(data []byte, name string, related func(string) ([]byte, error), log *zap.Logger) (*scene.Node, error) {
	d := &objDecoder{
		related:   related,
		log:       log,
		materials: make(map[string]*scene.Material),
	}
	if err := d.parse(data, d.objLine); err != nil {
		return nil, err
	}

	root := scene.NewNode(name)
	var meshes []*scene.Mesh
	for _, g := range d.groups {
		if g.mesh.TriangleCount() == 0 {
			continue
		}
		g.mesh.Material = d.materialFor(g.material)
		if !g.colored {
			g.mesh.Colors = nil
		} else {
			g.mesh.Material.VertexColors = true
		}
		meshes = append(meshes, g.mesh)
	}
	if len(meshes) == 0 {
		return nil, fmt.Errorf("OBJ has no faces")
	}

	if len(meshes) == 1 {
		root.Mesh = meshes[0]
		return root, nil
	}
	for _, m := range meshes {
		child := scene.NewNode(m.Name)
		child.Mesh = m
		root.Add(child)
	}
	return root, nil
}

func (d *objDecoder) parse(data []byte, handle func(fields []string) error) error {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	d.line = 0
	for sc.Scan() {
		d.line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if err := handle(fields); err != nil {
			return fmt.Errorf("line %d: %w", d.line, err)
		}
	}
	return sc.Err()
}

func (d *objDecoder) objLine(fields []string) error {
	switch fields[0] {
	case "v":
		return d.vertex(fields[1:])
	case "vt":
		uv, err := parseFloats(fields[1:], 2)
		if err != nil {
			return err
		}
		// OBJ has V pointing up, images have rows top-down.
		d.uvs = append(d.uvs, [2]float32{uv[0], 1 - uv[1]})
	case "f":
		return d.face(fields[1:])
	case "usemtl":
		if len(fields) > 1 {
			d.use(fields[1])
		}
	case "mtllib":
		for _, lib := range fields[1:] {
			d.loadMTL(lib)
		}
	}
	// vn, o, g, s and others do not affect what the viewer shows.
	return nil
}

func (d *objDecoder) vertex(args []string) error {
	v, err := parseFloats(args, 3)
	if err != nil {
		return err
	}
	d.positions = append(d.positions, math.Vec3{X: v[0], Y: v[1], Z: v[2]})

	c := [3]float32{-1, -1, -1}
	if len(args) >= 6 {
		rgb, err := parseFloats(args[3:], 3)
		if err != nil {
			return err
		}
		for i, x := range rgb {
			if x > 1 {
				x /= 255
			}
			c[i] = x
		}
	}
	d.colors = append(d.colors, c)
	return nil
}

func (d *objDecoder) use(material string) {
	for _, g := range d.groups {
		if g.material == material {
			d.current = g
			return
		}
	}
	g := &objGroup{
		material: material,
		mesh:     &scene.Mesh{Name: material, Indices: []uint32{}},
		remap:    make(map[[2]int]uint32),
	}
	if material == "" {
		g.mesh.Name = "default"
	}
	d.groups = append(d.groups, g)
	d.current = g
}

func (d *objDecoder) face(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("face needs at least 3 vertices, got %d", len(args))
	}
	if d.current == nil {
		d.use("")
	}

	corners := make([]uint32, len(args))
	for i, a := range args {
		idx, err := d.corner(a)
		if err != nil {
			return err
		}
		corners[i] = idx
	}
	// Triangle fan.
	m := d.current.mesh
	for i := 2; i < len(corners); i++ {
		m.Indices = append(m.Indices, corners[0], corners[i-1], corners[i])
	}
	return nil
}

// corner resolves one "v", "v/vt", "v//vn" or "v/vt/vn" reference to a
// vertex of the current group's mesh.
func (d *objDecoder) corner(ref string) (uint32, error) {
	parts := strings.Split(ref, "/")
	pi, err := objIndex(parts[0], len(d.positions))
	if err != nil {
		return 0, fmt.Errorf("vertex %q: %w", ref, err)
	}
	ti := -1
	if len(parts) > 1 && parts[1] != "" {
		if ti, err = objIndex(parts[1], len(d.uvs)); err != nil {
			return 0, fmt.Errorf("texture coordinate %q: %w", ref, err)
		}
	}

	g := d.current
	key := [2]int{pi, ti}
	if idx, ok := g.remap[key]; ok {
		return idx, nil
	}

	m := g.mesh
	idx := uint32(len(m.Positions))
	m.Positions = append(m.Positions, d.positions[pi])
	if ti >= 0 || len(m.UVs) > 0 {
		// Keep UVs parallel to positions once any corner has one.
		for len(m.UVs) < len(m.Positions)-1 {
			m.UVs = append(m.UVs, [2]float32{})
		}
		uv := [2]float32{}
		if ti >= 0 {
			uv = d.uvs[ti]
		}
		m.UVs = append(m.UVs, uv)
	}
	c := d.colors[pi]
	if c[0] >= 0 {
		g.colored = true
	} else {
		c = [3]float32{1, 1, 1}
	}
	m.Colors = append(m.Colors, c[0], c[1], c[2])

	g.remap[key] = idx
	return idx, nil
}

// objIndex converts a 1-based (or negative, relative) OBJ index.
func objIndex(s string, n int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		i = n + i
	} else {
		i--
	}
	if i < 0 || i >= n {
		return 0, fmt.Errorf("index out of range (have %d)", n)
	}
	return i, nil
}

func parseFloats(args []string, n int) ([]float32, error) {
	if len(args) < n {
		return nil, fmt.Errorf("expected %d values, got %d", n, len(args))
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(args[i], 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(f)
	}
	return out, nil
}

// loadMTL reads a material library. Missing libraries only cost the
// materials; the geometry still loads.
func (d *objDecoder) loadMTL(lib string) {
	if d.related == nil {
		return
	}
	data, err := d.related(lib)
	if err != nil {
		d.log.Warn("material library not loaded", zap.String("mtllib", lib), zap.Error(err))
		return
	}

	var mat *scene.Material
	line := d.line
	err = d.parse(data, func(fields []string) error {
		switch fields[0] {
		case "newmtl":
			name := strings.Join(fields[1:], " ")
			mat = scene.NewMaterial(name)
			d.materials[name] = mat
		case "Kd":
			if mat == nil {
				return nil
			}
			kd, err := parseFloats(fields[1:], 3)
			if err != nil {
				return err
			}
			mat.BaseColor = [4]float32{kd[0], kd[1], kd[2], mat.BaseColor[3]}
		case "d":
			if mat == nil || len(fields) < 2 {
				return nil
			}
			if a, err := strconv.ParseFloat(fields[1], 32); err == nil {
				mat.BaseColor[3] = float32(a)
			}
		case "map_Kd":
			if mat == nil || len(fields) < 2 {
				return nil
			}
			// Options such as -s or -o precede the file name.
			mat.Map = d.loadTexture(fields[len(fields)-1])
		}
		return nil
	})
	d.line = line
	if err != nil {
		d.log.Warn("material library malformed", zap.String("mtllib", lib), zap.Error(err))
	}
}

func (d *objDecoder) loadTexture(file string) *scene.Texture {
	data, err := d.related(file)
	if err != nil {
		d.log.Warn("texture not loaded", zap.String("file", file), zap.Error(err))
		return nil
	}
	tex, err := texture.Decode(file, data, "")
	if err != nil {
		d.log.Warn("texture not decoded", zap.String("file", file), zap.Error(err))
		return nil
	}
	return tex
}

func (d *objDecoder) materialFor(name string) *scene.Material {
	if m, ok := d.materials[name]; ok {
		return m
	}
	m := scene.NewMaterial(name)
	d.materials[name] = m
	return m
}
