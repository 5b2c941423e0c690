package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/instructmesh/internal/engine/scene"
	"github.com/Faultbox/instructmesh/internal/logger"
	"github.com/Faultbox/instructmesh/internal/network"
	"github.com/Faultbox/instructmesh/internal/segmentation"
)

// ErrBusy is returned when a generation, optimization or model load is
// already running.
var ErrBusy = errors.New("another operation is in progress")

// ErrNoGeneration is returned by operations that need a generated model.
var ErrNoGeneration = errors.New("no generation to work on")

// Generator is the part of the backend that produces models.
type Generator interface {
	Generate(ctx context.Context, req network.GenerateRequest) (*network.GenerateResponse, error)
	Optimize(ctx context.Context, generationID string) (*network.OptimizeResponse, error)
	ResolveURL(ref string) string
}

// ModelLoader fetches and decodes a model.
type ModelLoader interface {
	Load(ctx context.Context, ref string) (*scene.Model, error)
}

// Invalidator drops cached downloads so a reload sees fresh bytes.
type Invalidator interface {
	Invalidate(ref string)
}

// Workflow drives generation, optimization and model loading, and feeds the
// results into the viewer. Like the segmentation session it does its remote
// work on goroutines and applies results in Update, so it needs no locks.
type Workflow struct {
	gen     Generator
	loader  ModelLoader
	cache   Invalidator
	viewer  *scene.Viewer
	session *segmentation.Session
	log     *zap.Logger

	generationID string
	modelRef     string
	busy         string

	pending  int
	results  chan func()
	onStatus func(msg string, err error)
}

// NewWorkflow wires the workflow to the viewer and its segmentation session.
// cache may be nil.
func NewWorkflow(gen Generator, loader ModelLoader, cache Invalidator, viewer *scene.Viewer, session *segmentation.Session) *Workflow {
	return &Workflow{
		gen:     gen,
		loader:  loader,
		cache:   cache,
		viewer:  viewer,
		session: session,
		log:     logger.Named("workflow"),
		results: make(chan func(), 4),
	}
}

// OnStatus registers the callback receiving user-facing messages.
func (w *Workflow) OnStatus(fn func(msg string, err error)) {
	w.onStatus = fn
}

// GenerationID returns the generation the current model belongs to, or "".
func (w *Workflow) GenerationID() string { return w.generationID }

// ModelRef returns where the current model was loaded from.
func (w *Workflow) ModelRef() string { return w.modelRef }

// Busy returns the name of the running operation, or "".
func (w *Workflow) Busy() string { return w.busy }

// Generate asks the backend for a new model and shows it when ready.
func (w *Workflow) Generate(ctx context.Context, req network.GenerateRequest) error {
	if err := w.begin("generate"); err != nil {
		return err
	}
	w.notify(fmt.Sprintf("Generating %q...", req.Text), nil)

	w.run(ctx, func(ctx context.Context) func() {
		resp, err := w.gen.Generate(ctx, req)
		var model *scene.Model
		ref := ""
		if err == nil {
			ref = w.gen.ResolveURL(nonEmpty(resp.Files.GLB, resp.ModelURL))
			model, err = w.loader.Load(ctx, ref)
		}
		return func() {
			if err != nil {
				// A failed generation leaves nothing to segment.
				w.generationID = ""
				w.notify("Generation failed", err)
				return
			}
			w.show(model, ref, resp.GenerationID)
			w.notify(fmt.Sprintf("Generated %s", resp.GenerationID), nil)
		}
	})
	return nil
}

// Open loads a model from a path or URL. generationID may be empty, in which
// case segmentation is unavailable for it.
func (w *Workflow) Open(ctx context.Context, ref, generationID string) error {
	if err := w.begin("open"); err != nil {
		return err
	}
	w.notify("Loading "+ref, nil)

	w.run(ctx, func(ctx context.Context) func() {
		model, err := w.loader.Load(ctx, ref)
		return func() {
			if err != nil {
				w.notify("Loading failed", err)
				return
			}
			w.show(model, ref, generationID)
			w.notify("Loaded "+model.Name, nil)
		}
	})
	return nil
}

// Optimize runs the backend's structural optimization on the current
// generation and shows the optimized mesh.
func (w *Workflow) Optimize(ctx context.Context) error {
	if w.generationID == "" {
		return ErrNoGeneration
	}
	if err := w.begin("optimize"); err != nil {
		return err
	}
	id := w.generationID
	w.notify("Optimizing "+id+"...", nil)

	w.run(ctx, func(ctx context.Context) func() {
		resp, err := w.gen.Optimize(ctx, id)
		var model *scene.Model
		ref := ""
		if err == nil {
			ref = w.gen.ResolveURL(resp.OptimizedModelURL)
			model, err = w.loader.Load(ctx, ref)
		}
		return func() {
			if err != nil {
				w.notify("Optimization failed", err)
				return
			}
			if resp.StressesURL != "" || resp.StressesOptimizedURL != "" {
				w.log.Info("stress plots available",
					zap.String("before", w.gen.ResolveURL(resp.StressesURL)),
					zap.String("after", w.gen.ResolveURL(resp.StressesOptimizedURL)),
				)
			}
			w.show(model, ref, id)
			w.notify(nonEmpty(resp.Message, "Optimization complete"), nil)
		}
	})
	return nil
}

// Reload fetches the current model again, bypassing the download cache.
func (w *Workflow) Reload(ctx context.Context) error {
	if w.modelRef == "" {
		return segmentation.ErrNoModelLoaded
	}
	if w.cache != nil {
		w.cache.Invalidate(w.modelRef)
	}
	return w.Open(ctx, w.modelRef, w.generationID)
}

// EnableSegmentation starts a segmentation session for the current model.
func (w *Workflow) EnableSegmentation(ctx context.Context) error {
	return w.session.Enable(ctx, w.generationID)
}

// Update applies finished operations and segmentation responses. Call it once
// per frame.
func (w *Workflow) Update() {
	for {
		select {
		case apply := <-w.results:
			w.finish(apply)
		default:
			w.session.Dispatch()
			return
		}
	}
}

// Await blocks until every started operation and segmentation request has
// been applied.
func (w *Workflow) Await(ctx context.Context) error {
	for w.pending > 0 {
		select {
		case apply := <-w.results:
			w.finish(apply)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return w.session.Await(ctx)
}

func (w *Workflow) begin(op string) error {
	if w.busy != "" {
		return fmt.Errorf("%s: %w (%s)", op, ErrBusy, w.busy)
	}
	w.busy = op
	return nil
}

func (w *Workflow) run(ctx context.Context, call func(ctx context.Context) func()) {
	w.pending++
	go func() {
		w.results <- call(ctx)
	}()
}

func (w *Workflow) finish(apply func()) {
	w.pending--
	w.busy = ""
	apply()
}

// show replaces the viewer's model. The viewer's replace hooks disable the
// segmentation session for the outgoing model.
func (w *Workflow) show(model *scene.Model, ref, generationID string) {
	w.viewer.AddModel(model)
	w.viewer.FitToCamera()
	w.modelRef = ref
	w.generationID = generationID
}

func (w *Workflow) notify(msg string, err error) {
	if err != nil {
		w.log.Warn(msg, zap.Error(err))
	} else {
		w.log.Info(msg)
	}
	if w.onStatus != nil {
		w.onStatus(msg, err)
	}
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
