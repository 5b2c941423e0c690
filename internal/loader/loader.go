// Package loader turns GLB, glTF and OBJ files into scene models.
//
// Generated meshes are Z-up; every loaded model gets a root transform that
// rotates it -90 degrees about X so it stands upright in the Y-up viewer.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
	"go.uber.org/zap"

	"github.com/Faultbox/instructmesh/internal/assets"
	"github.com/Faultbox/instructmesh/internal/engine/scene"
	"github.com/Faultbox/instructmesh/internal/logger"
	"github.com/Faultbox/instructmesh/pkg/math"
)

// UpAxisRotation is the rotation about X, in degrees, applied to every
// loaded model.
const UpAxisRotation = -90

// Format identifies a mesh file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatGLB
	FormatGLTF
	FormatOBJ
)

func (f Format) String() string {
	switch f {
	case FormatGLB:
		return "glb"
	case FormatGLTF:
		return "gltf"
	case FormatOBJ:
		return "obj"
	default:
		return "unknown"
	}
}

// Loader fetches and decodes models.
type Loader struct {
	assets *assets.Manager
	log    *zap.Logger
}

// New creates a loader fetching through m. A nil manager gets a default one.
func New(m *assets.Manager) *Loader {
	if m == nil {
		m = assets.NewManager(nil, assets.DefaultCacheBytes)
	}
	return &Loader{assets: m, log: logger.Named("loader")}
}

// Assets returns the underlying asset manager.
func (l *Loader) Assets() *assets.Manager {
	return l.assets
}

// Load fetches ref (URL or path) and decodes it into a model.
func (l *Loader) Load(ctx context.Context, ref string) (*scene.Model, error) {
	data, err := l.assets.Load(ctx, ref)
	if err != nil {
		return nil, err
	}

	name := modelName(ref)
	related := func(rel string) ([]byte, error) {
		return l.assets.Load(ctx, assets.Resolve(ref, rel))
	}

	format := Detect(ref, data)
	var root *scene.Node
	switch format {
	case FormatGLB, FormatGLTF:
		root, err = l.decodeGLTF(ref, data, name, related)
	case FormatOBJ:
		root, err = decodeOBJ(data, name, related, l.log)
	default:
		err = fmt.Errorf("unrecognized model format")
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", ref, err)
	}

	root.Transform = math.RotationXDegrees(UpAxisRotation)
	model := scene.NewModel(name, root)
	model.Source = ref

	l.log.Info("model loaded",
		zap.String("ref", ref),
		zap.Stringer("format", format),
		zap.Int("meshes", len(model.Meshes())),
		zap.Int("bytes", len(data)),
	)
	return model, nil
}

// Detect guesses the format from the file magic, then the extension.
func Detect(ref string, data []byte) Format {
	if bytes.HasPrefix(data, []byte("glTF")) {
		return FormatGLB
	}
	switch strings.ToLower(path.Ext(stripQuery(ref))) {
	case ".glb":
		return FormatGLB
	case ".gltf":
		return FormatGLTF
	case ".obj":
		return FormatOBJ
	}
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("{")) {
		return FormatGLTF
	}
	if len(trimmed) > 0 {
		return FormatOBJ
	}
	return FormatUnknown
}

func (l *Loader) decodeGLTF(ref string, data []byte, name string, related func(string) ([]byte, error)) (*scene.Node, error) {
	var doc *gltf.Document
	if !assets.IsRemote(ref) && strings.EqualFold(filepath.Ext(ref), ".gltf") {
		// Local glTF may keep its buffers in side files.
		var err error
		if doc, err = gltf.Open(ref); err != nil {
			return nil, err
		}
	} else {
		doc = new(gltf.Document)
		if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
			return nil, err
		}
	}
	return newGLTFDecoder(doc, related, l.log).decode(name)
}

func modelName(ref string) string {
	base := path.Base(filepath.ToSlash(stripQuery(ref)))
	return strings.TrimSuffix(base, path.Ext(base))
}

func stripQuery(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 && assets.IsRemote(ref) {
		return ref[:i]
	}
	return ref
}
