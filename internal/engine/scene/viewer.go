// Package scene holds the viewer's scene graph, meshes and materials, and the
// Viewer that owns the camera and the single active model slot.
package scene

import (
	"go.uber.org/zap"

	"github.com/Faultbox/instructmesh/internal/engine/camera"
	"github.com/Faultbox/instructmesh/internal/logger"
)

// Fallback surface size used when the container reports no size.
const (
	DefaultWidth  = 800
	DefaultHeight = 600
)

// ReplaceHook is called with the outgoing model before it is detached.
type ReplaceHook func(old *Model)

// Viewer owns the scene graph, the camera and at most one active model.
type Viewer struct {
	camera *camera.Camera
	root   *Node
	model  *Model

	width  int
	height int

	nextID uint64
	hooks  []ReplaceHook
	log    *zap.Logger
}

// NewViewer creates a viewer for a surface of the given size.
func NewViewer(cam *camera.Camera, width, height int) *Viewer {
	v := &Viewer{
		camera: cam,
		root:   NewNode("scene"),
		log:    logger.Named("viewer"),
	}
	v.Resize(width, height)
	return v
}

// Camera returns the active camera.
func (v *Viewer) Camera() *camera.Camera {
	return v.camera
}

// Root returns the scene graph root.
func (v *Viewer) Root() *Node {
	return v.root
}

// Model returns the active model, or nil.
func (v *Viewer) Model() *Model {
	return v.model
}

// HasModel reports whether a model is attached.
func (v *Viewer) HasModel() bool {
	return v.model != nil
}

// OnModelReplaced registers a hook fired before the active model is removed
// or replaced. Hooks run in registration order.
func (v *Viewer) OnModelReplaced(hook ReplaceHook) {
	v.hooks = append(v.hooks, hook)
}

// AddModel makes m the active model, explicitly removing the previous one.
func (v *Viewer) AddModel(m *Model) {
	v.RemoveModel()
	if m == nil {
		return
	}

	v.nextID++
	m.id = v.nextID
	v.root.Add(m.Root)
	v.model = m

	b := m.Bounds()
	v.log.Info("model attached",
		zap.String("name", m.Name),
		zap.Uint64("id", m.id),
		zap.Int("meshes", len(m.Meshes())),
		zap.Float32("max_dim", b.MaxDimension()),
	)
}

// RemoveModel detaches the active model, if any.
func (v *Viewer) RemoveModel() {
	old := v.model
	if old == nil {
		return
	}
	for _, hook := range v.hooks {
		hook(old)
	}

	kept := v.root.Children[:0]
	for _, c := range v.root.Children {
		if c != old.Root {
			kept = append(kept, c)
		}
	}
	v.root.Children = kept
	v.model = nil

	v.log.Debug("model detached", zap.String("name", old.Name), zap.Uint64("id", old.id))
	old.id = 0
}

// FitToCamera frames the active model. It is a no-op without a model.
func (v *Viewer) FitToCamera() {
	if v.model == nil {
		return
	}
	b := v.model.Bounds()
	if b.IsEmpty() {
		return
	}
	v.camera.FitToBounds(b.Min, b.Max)
}

// Resize updates the surface size. Non-positive sizes fall back to the
// default so the viewport never becomes degenerate. Calling it repeatedly
// with the same size has no further effect.
func (v *Viewer) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	if width == v.width && height == v.height {
		return
	}
	v.width = width
	v.height = height
	v.camera.SetAspect(float32(width) / float32(height))
}

// Size returns the current surface size in pixels.
func (v *Viewer) Size() (int, int) {
	return v.width, v.height
}
