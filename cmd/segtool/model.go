package main

import (
	"context"
	"strings"

	"github.com/Faultbox/instructmesh/internal/assets"
	"github.com/Faultbox/instructmesh/internal/config"
	"github.com/Faultbox/instructmesh/internal/engine/camera"
	"github.com/Faultbox/instructmesh/internal/engine/scene"
	"github.com/Faultbox/instructmesh/internal/loader"
	"github.com/Faultbox/instructmesh/internal/network"
)

// openModel loads ref into a fresh headless viewer framed like the GUI would
// frame it. Backend-relative refs such as /files/x/model.glb are resolved
// against the backend.
func openModel(ctx context.Context, cfg *config.Config, client *network.Client, ref string) (*scene.Viewer, error) {
	if strings.HasPrefix(ref, "/files/") {
		ref = client.ResolveURL(ref)
	}
	ldr := loader.New(assets.NewManager(client.HTTPClient(), assets.DefaultCacheBytes))
	model, err := ldr.Load(ctx, ref)
	if err != nil {
		return nil, err
	}

	w, h := cfg.Viewer.Width, cfg.Viewer.Height
	viewer := scene.NewViewer(camera.New(cfg.Viewer.FOV, float32(w)/float32(h)), w, h)
	viewer.AddModel(model)
	viewer.FitToCamera()
	return viewer, nil
}
