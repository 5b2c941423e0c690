package segmentation

import (
	"github.com/Faultbox/instructmesh/internal/config"
	"github.com/Faultbox/instructmesh/internal/engine/scene"
	"github.com/Faultbox/instructmesh/pkg/math"
)

// Painter colors mesh vertices near a segment's points.
type Painter struct {
	ratio     float32
	highlight [3]float32
	neutral   [3]float32
	limit     int
}

// NewPainter creates a painter from the segmentation settings.
func NewPainter(cfg config.SegmentationConfig) *Painter {
	return &Painter{
		ratio:     cfg.ThresholdRatio,
		highlight: cfg.HighlightColor,
		neutral:   cfg.NeutralColor,
		limit:     cfg.BruteForceLimit,
	}
}

// Neutral returns the color used for vertices with no original color.
func (p *Painter) Neutral() [3]float32 {
	return p.neutral
}

// Threshold returns the highlight radius for model: a fixed fraction of the
// largest dimension of its world bounding box.
func (p *Painter) Threshold(model *scene.Model) float32 {
	return p.ratio * model.Bounds().MaxDimension()
}

// Paint recolors every mesh of model. Vertices within the threshold of any
// point get the highlight color, all others their snapshot color (or neutral
// gray). Points are in model space, as the backend reports them. Every
// material is switched to vertex colors with its texture map disabled. Paint
// is idempotent and returns the number of highlighted vertices.
func (p *Painter) Paint(model *scene.Model, snap *Snapshot, points []math.Vec3) int {
	world := make([]math.Vec3, len(points))
	for i, pt := range points {
		world[i] = model.ToWorld(pt)
	}

	instances := model.Meshes()
	vertices := 0
	for _, inst := range instances {
		vertices += inst.Mesh().VertexCount()
	}
	index := newProximity(world, p.Threshold(model), vertices, p.limit)

	buffers := make(map[*scene.Mesh][]float32, len(instances))
	marked := make(map[*scene.Mesh][]bool, len(instances))
	highlighted := 0
	for _, inst := range instances {
		mesh := inst.Mesh()
		n := mesh.VertexCount()

		buf, ok := buffers[mesh]
		if !ok {
			buf = mesh.Colors
			if len(buf) != 3*n {
				buf = make([]float32, 3*n)
			}
			for i := 0; i < n; i++ {
				c := snap.baseColor(mesh, i, p.neutral)
				copy(buf[3*i:3*i+3], c[:])
			}
			buffers[mesh] = buf
			marked[mesh] = make([]bool, n)
		}

		// A mesh shared by several nodes is highlighted where any instance is close.
		mask := marked[mesh]
		for i := 0; i < n; i++ {
			if mask[i] || !index.within(inst.WorldPosition(i)) {
				continue
			}
			mask[i] = true
			copy(buf[3*i:3*i+3], p.highlight[:])
			highlighted++
		}
	}

	for mesh, buf := range buffers {
		mesh.SetColors(buf)
	}
	for _, mat := range model.Materials() {
		mat.VertexColors = true
		mat.Map = nil
		mat.MarkDirty()
	}
	return highlighted
}

// Restore puts back the appearance recorded in snap.
func (p *Painter) Restore(snap *Snapshot) {
	if snap == nil {
		return
	}
	snap.restore()
}
