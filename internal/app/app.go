// Package app implements the viewer's main loop: it owns the window, turns
// input into camera moves and segmentation prompts, and renders the model.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/instructmesh/internal/assets"
	"github.com/Faultbox/instructmesh/internal/config"
	"github.com/Faultbox/instructmesh/internal/engine/camera"
	"github.com/Faultbox/instructmesh/internal/engine/input"
	"github.com/Faultbox/instructmesh/internal/engine/picking"
	"github.com/Faultbox/instructmesh/internal/engine/renderer"
	"github.com/Faultbox/instructmesh/internal/engine/scene"
	"github.com/Faultbox/instructmesh/internal/engine/screenshot"
	"github.com/Faultbox/instructmesh/internal/engine/window"
	"github.com/Faultbox/instructmesh/internal/loader"
	"github.com/Faultbox/instructmesh/internal/logger"
	"github.com/Faultbox/instructmesh/internal/network"
	"github.com/Faultbox/instructmesh/internal/segmentation"
)

const title = "InstructMesh"

// Action is a keyboard command.
type Action int

const (
	ActionNone Action = iota
	ActionSegment
	ActionClear
	ActionOptimize
	ActionReload
	ActionFit
	ActionScreenshot
	ActionQuit
)

var keymap = map[sdl.Scancode]Action{
	sdl.SCANCODE_S:      ActionSegment,
	sdl.SCANCODE_C:      ActionClear,
	sdl.SCANCODE_O:      ActionOptimize,
	sdl.SCANCODE_R:      ActionReload,
	sdl.SCANCODE_F:      ActionFit,
	sdl.SCANCODE_P:      ActionScreenshot,
	sdl.SCANCODE_ESCAPE: ActionQuit,
}

// ActionForKey maps a key to its command.
func ActionForKey(key sdl.Scancode) Action {
	return keymap[key]
}

// App is the viewer instance.
type App struct {
	cfg      *config.Config
	running  bool
	window   *window.Window
	renderer *renderer.Renderer
	input    *input.Input
	gesture  input.Gesture
	shots    *screenshot.Writer

	screenshotRequested bool

	viewer   *scene.Viewer
	session  *segmentation.Session
	workflow *Workflow
	assets   *assets.Manager

	ctx    context.Context
	cancel context.CancelFunc
	status string
	log    *zap.Logger
}

// New creates the window, renderer and viewer.
func New(cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg, log: logger.Named("app")}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.log.Info("initializing viewer",
		zap.Int("width", cfg.Viewer.Width),
		zap.Int("height", cfg.Viewer.Height),
		zap.String("backend", cfg.Backend.BaseURL),
	)

	var err error
	a.window, err = window.New(window.Config{
		Title:      title,
		Width:      cfg.Viewer.Width,
		Height:     cfg.Viewer.Height,
		Fullscreen: cfg.Viewer.Fullscreen,
		VSync:      cfg.Viewer.VSync,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	// Renderer comes after the window, since the GL context must exist.
	fbW, fbH := a.window.DrawableSize()
	a.renderer, err = renderer.New(renderer.Config{Width: fbW, Height: fbH, VSync: cfg.Viewer.VSync})
	if err != nil {
		a.window.Close()
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	a.input = input.New()
	a.shots = screenshot.NewWriter(cfg.Viewer.ScreenshotDir, "instructmesh")

	client := network.New(network.Config{
		BaseURL:         cfg.Backend.BaseURL,
		RequestTimeout:  cfg.Backend.RequestTimeout,
		GenerateTimeout: cfg.Backend.GenerateTimeout,
	})
	a.assets = assets.NewManager(client.HTTPClient(), assets.DefaultCacheBytes)

	w, h := a.window.GetSize()
	a.viewer = scene.NewViewer(camera.New(cfg.Viewer.FOV, float32(w)/float32(h)), w, h)
	a.session = segmentation.NewSession(client, a.viewer, segmentation.NewPainter(cfg.Segmentation))
	a.workflow = NewWorkflow(client, loader.New(a.assets), a.assets, a.viewer, a.session)

	// Session first: it restores the outgoing model before its GPU copy goes.
	a.viewer.OnModelReplaced(a.session.ModelReplaced)
	a.viewer.OnModelReplaced(a.renderer.Release)

	a.session.OnStatus(func(st segmentation.Status) { a.setStatus(st.Message, st.Err) })
	a.workflow.OnStatus(a.setStatus)

	a.log.Info("viewer initialized")
	return a, nil
}

// Start kicks off the startup model, if the configuration names one.
func (a *App) Start() error {
	st := a.cfg.Startup
	switch {
	case st.ModelPath != "":
		return a.workflow.Open(a.ctx, st.ModelPath, st.GenerationID)
	case st.Prompt != "":
		return a.workflow.Generate(a.ctx, network.GenerateRequest{
			Text:   st.Prompt,
			Images: st.Images,
			Seed:   a.cfg.Backend.Seed,
		})
	}
	a.setStatus("Drop a GLB or OBJ file to open it", nil)
	return nil
}

// Run starts the main loop.
func (a *App) Run() error {
	a.running = true

	lastTime := time.Now()
	frameCount := 0
	fpsTimer := time.Now()

	a.log.Info("starting main loop")

	for a.running {
		now := time.Now()
		dt := now.Sub(lastTime).Seconds()
		lastTime = now

		if a.input.Update() {
			a.running = false
			break
		}
		for _, event := range a.input.Events() {
			a.handleEvent(event)
		}

		a.workflow.Update()

		a.renderer.Begin()
		a.renderer.DrawModel(a.viewer.Model(), a.viewer.Camera().ViewProjection())
		a.renderer.End()
		if a.screenshotRequested {
			a.screenshotRequested = false
			a.captureScreenshot()
		}
		a.window.SwapBuffers()

		frameCount++
		if time.Since(fpsTimer) >= time.Second {
			a.log.Debug("fps", zap.Int("count", frameCount), zap.String("dt", fmt.Sprintf("%.2fms", dt*1000)))
			frameCount = 0
			fpsTimer = time.Now()
		}
	}

	return nil
}

// Close cleans up resources. Pending remote calls are cancelled.
func (a *App) Close() {
	a.log.Info("closing viewer")
	a.cancel()

	if a.viewer != nil {
		a.viewer.RemoveModel()
	}
	if a.assets != nil {
		a.assets.Close()
	}
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.window != nil {
		a.window.Close()
	}
}

func (a *App) handleEvent(event input.Event) {
	switch event.Type {
	case input.EventWindowResize:
		a.viewer.Resize(a.window.GetSize())
		a.renderer.Resize(a.window.DrawableSize())
		return
	case input.EventKeyDown:
		a.handleAction(ActionForKey(event.Key))
		return
	case input.EventDropFile:
		a.report(a.workflow.Open(a.ctx, event.Path, ""))
		return
	}

	g := a.gesture.Feed(event)
	switch g.Kind {
	case input.GestureDrag:
		a.viewer.Camera().HandleDrag(float32(g.DX), float32(g.DY))
	case input.GestureZoom:
		a.viewer.Camera().HandleZoom(g.Zoom)
	case input.GestureClick:
		a.handleClick(g)
	}
}

func (a *App) handleClick(g input.GestureEvent) {
	var button picking.Button
	switch g.Button {
	case input.ButtonLeft:
		button = picking.ButtonPrimary
	case input.ButtonRight:
		button = picking.ButtonSecondary
	default:
		return
	}
	if a.session.State() == segmentation.Disabled {
		return
	}

	w, h := a.viewer.Size()
	rect := picking.Rect{Width: float32(w), Height: float32(h)}
	ev := picking.PointerEvent{ClientX: float32(g.X), ClientY: float32(g.Y), Button: button}
	_, err := a.session.HandlePointer(a.ctx, ev, rect, a.viewer.Camera())
	a.report(err)
}

func (a *App) handleAction(action Action) {
	switch action {
	case ActionSegment:
		a.report(a.workflow.EnableSegmentation(a.ctx))
	case ActionClear:
		a.session.Clear(a.ctx)
	case ActionOptimize:
		a.report(a.workflow.Optimize(a.ctx))
	case ActionReload:
		a.report(a.workflow.Reload(a.ctx))
	case ActionFit:
		a.viewer.FitToCamera()
	case ActionScreenshot:
		a.screenshotRequested = true
	case ActionQuit:
		a.running = false
	}
}

func (a *App) captureScreenshot() {
	pixels, w, h := a.renderer.ReadPixels()
	name, err := a.shots.SavePixels(pixels, w, h)
	if err != nil {
		a.setStatus("Screenshot failed", err)
		return
	}
	a.log.Info("screenshot saved", zap.String("path", name))
	a.setStatus("Saved "+name, nil)
}

// report surfaces errors from operations that fail before any remote call.
func (a *App) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, segmentation.ErrBusy):
		// Clicks while a segment is in flight are dropped quietly.
		a.log.Debug("input dropped", zap.Error(err))
	case errors.Is(err, segmentation.ErrNoModelLoaded):
		a.setStatus("Generate or open a model first", err)
	default:
		a.setStatus(err.Error(), err)
	}
}

func (a *App) setStatus(msg string, err error) {
	if msg == a.status {
		return
	}
	a.status = msg
	if err != nil {
		a.log.Warn(msg, zap.Error(err))
	}
	a.window.SetTitle(title + " - " + msg)
}
