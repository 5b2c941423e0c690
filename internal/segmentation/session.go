// Package segmentation implements the interactive point-prompt segmentation
// session and the vertex color overlay that visualizes its results.
//
// Remote calls run on background goroutines. Their completions are queued
// and only applied by Dispatch or Await, so every piece of session and mesh
// state is touched from a single goroutine (the render loop).
package segmentation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/instructmesh/internal/engine/camera"
	"github.com/Faultbox/instructmesh/internal/engine/picking"
	"github.com/Faultbox/instructmesh/internal/engine/scene"
	"github.com/Faultbox/instructmesh/internal/logger"
	"github.com/Faultbox/instructmesh/internal/network"
	"github.com/Faultbox/instructmesh/pkg/math"
)

// State is the session state.
type State int

const (
	Disabled State = iota
	Enabling
	Enabled
	Segmenting
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Enabling:
		return "enabling"
	case Enabled:
		return "enabled"
	case Segmenting:
		return "segmenting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Sign is the label of a prompt point.
type Sign int

const (
	Positive Sign = iota
	Negative
)

func (s Sign) String() string {
	if s == Negative {
		return "negative"
	}
	return "positive"
}

func (s Sign) label() int {
	if s == Negative {
		return network.LabelNegative
	}
	return network.LabelPositive
}

// PromptPoint is one click sent to the segmentation model. Point is in model
// space, the coordinates the backend receives.
type PromptPoint struct {
	Point math.Vec3
	Sign  Sign
}

// Segment is the latest mask returned by the backend, as model-space points.
type Segment struct {
	ID           int
	PointIndices []int
	Points       []math.Vec3
	Confidence   float64
	TotalPoints  int
	ModelID      string
}

// Status is a user-facing message about the session.
type Status struct {
	State   State
	Message string
	Err     error // nil for informational messages
}

// Backend is the subset of the remote API the session needs.
type Backend interface {
	LoadModelForSegmentation(ctx context.Context, generationID string) (*network.LoadModelResponse, error)
	Segment(ctx context.Context, req network.SegmentRequest) (*network.SegmentResponse, error)
	ClearPrompts(ctx context.Context) error
}

// ModelSource provides the viewer's active model.
type ModelSource interface {
	Model() *scene.Model
}

// completion is the result of a remote call, applied on the dispatching
// goroutine.
type completion struct {
	op      string
	epoch   uint64
	modelID uint64
	always  bool // applied even when stale
	apply   func() error
}

// Session tracks prompts, the held segment and the appearance snapshot for
// the active model.
type Session struct {
	backend Backend
	models  ModelSource
	painter *Painter
	mapper  picking.Mapper
	log     *zap.Logger

	state        State
	generationID string
	prompts      []PromptPoint
	segment      *Segment
	snapshot     *Snapshot
	numPoints    int

	epoch   uint64
	counter int
	dropped int

	pending  int
	results  chan completion
	onStatus func(Status)
}

// NewSession creates a disabled session.
func NewSession(backend Backend, models ModelSource, painter *Painter) *Session {
	return &Session{
		backend: backend,
		models:  models,
		painter: painter,
		log:     logger.Named("segmentation"),
		results: make(chan completion, 16),
	}
}

// OnStatus registers the callback receiving user-facing messages.
func (s *Session) OnStatus(fn func(Status)) {
	s.onStatus = fn
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// GenerationID returns the generation the session was enabled for.
func (s *Session) GenerationID() string { return s.generationID }

// Prompts returns a copy of the prompt sequence.
func (s *Session) Prompts() []PromptPoint {
	return append([]PromptPoint(nil), s.prompts...)
}

// PromptCount returns the number of prompts sent in this session.
func (s *Session) PromptCount() int { return len(s.prompts) }

// Segment returns the held segment, or nil.
func (s *Session) Segment() *Segment { return s.segment }

// Snapshot returns the appearance snapshot, or nil when none is held.
func (s *Session) Snapshot() *Snapshot { return s.snapshot }

// SnapshotCaptured reports whether a snapshot is held.
func (s *Session) SnapshotCaptured() bool { return s.snapshot != nil }

// Epoch returns the counter used to discard stale responses.
func (s *Session) Epoch() uint64 { return s.epoch }

// Counter returns the number of segments received since startup.
func (s *Session) Counter() int { return s.counter }

// DroppedClicks returns the number of clicks ignored while busy.
func (s *Session) DroppedClicks() int { return s.dropped }

// NumPoints returns the point cloud size reported when the model was loaded.
func (s *Session) NumPoints() int { return s.numPoints }

// Pending returns the number of remote calls whose results are not applied yet.
func (s *Session) Pending() int { return s.pending }

// Enable starts a session for generationID on the viewer's active model.
// Calling it while enabled resets the prompts and keeps the snapshot.
func (s *Session) Enable(ctx context.Context, generationID string) error {
	model := s.models.Model()
	if model == nil || generationID == "" {
		return ErrNoModelLoaded
	}
	if s.state == Enabling || s.state == Segmenting {
		return ErrBusy
	}

	if s.state == Enabled {
		s.painter.Restore(s.snapshot)
		s.prompts = nil
		s.segment = nil
	}
	s.state = Enabling
	s.generationID = generationID
	s.notify("Loading model for segmentation...", nil)

	s.log.Info("enabling segmentation",
		zap.String("generation_id", generationID),
		zap.Uint64("epoch", s.epoch),
	)

	s.issue(ctx, "load_3d_model", model.ID(), false, func(ctx context.Context) func() error {
		resp, err := s.backend.LoadModelForSegmentation(ctx, generationID)
		return func() error { return s.finishEnable(resp, err) }
	})
	return nil
}

func (s *Session) finishEnable(resp *network.LoadModelResponse, err error) error {
	if err != nil {
		s.reset()
		s.notify("Failed to load model for segmentation", err)
		return err
	}

	s.captureSnapshot()
	s.prompts = nil
	s.segment = nil
	s.numPoints = resp.NumPoints
	s.state = Enabled
	s.notify(fmt.Sprintf("Segmentation ready (%d points). Left click to include, right click to exclude.", resp.NumPoints), nil)
	return nil
}

// captureSnapshot records the active model's appearance unless a snapshot
// for the same model is already held. A snapshot must never be retaken once
// painting has started.
func (s *Session) captureSnapshot() {
	model := s.models.Model()
	if s.snapshot.Covers(model) {
		return
	}
	s.snapshot = CaptureSnapshot(model, s.painter.Neutral())
	s.log.Debug("appearance snapshot captured",
		zap.String("model", model.Name),
		zap.Int("meshes", len(s.snapshot.meshes)),
	)
}

// Click sends a prompt at the world-space point. At most one segment request
// is in flight; clicks while it is pending are dropped with ErrBusy.
func (s *Session) Click(ctx context.Context, point math.Vec3, sign Sign) error {
	switch s.state {
	case Segmenting:
		s.dropped++
		s.log.Debug("click dropped while segmenting", zap.Int("dropped", s.dropped))
		return ErrBusy
	case Enabled:
	default:
		return ErrNotEnabled
	}

	model := s.models.Model()
	if model == nil {
		return ErrNoModelLoaded
	}
	local := model.ToModel(point)
	s.prompts = append(s.prompts, PromptPoint{Point: local, Sign: sign})
	s.state = Segmenting
	s.notify(fmt.Sprintf("Segmenting (%s prompt %d)...", sign, len(s.prompts)), nil)

	req := network.SegmentRequest{X: local.X, Y: local.Y, Z: local.Z, PromptLabel: sign.label()}
	s.issue(ctx, "segment_3d_model", model.ID(), false, func(ctx context.Context) func() error {
		resp, err := s.backend.Segment(ctx, req)
		return func() error { return s.finishSegment(resp, err) }
	})
	return nil
}

func (s *Session) finishSegment(resp *network.SegmentResponse, err error) error {
	s.state = Enabled
	if err != nil {
		switch {
		case errors.Is(err, ErrSegmentTooSmall):
			s.notify("Segment too small, try another point", err)
		case errors.Is(err, ErrRemoteUnavailable):
			s.notify("Segmentation backend unavailable", err)
		default:
			s.notify("Segmentation failed", err)
		}
		return err
	}

	seg := &Segment{
		ID:           resp.Segment.SegmentID,
		PointIndices: resp.Segment.PointIndices,
		Points:       make([]math.Vec3, len(resp.Segment.Points)),
		Confidence:   resp.Segment.IoUScore,
		TotalPoints:  resp.TotalPoints,
		ModelID:      resp.Segment.ModelID,
	}
	for i, p := range resp.Segment.Points {
		seg.Points[i] = math.FromArray(p)
	}

	s.captureSnapshot()
	s.segment = seg
	highlighted := s.painter.Paint(s.models.Model(), s.snapshot, seg.Points)
	s.counter++

	s.log.Info("segment applied",
		zap.Int("segment", s.counter),
		zap.Int("points", len(seg.Points)),
		zap.Int("highlighted_vertices", highlighted),
		zap.Float64("confidence", seg.Confidence),
	)
	s.notify(fmt.Sprintf("Segment %d: %d points, confidence %.2f", s.counter, len(seg.Points), seg.Confidence), nil)
	return nil
}

// HandlePointer maps a pointer press to a prompt. Primary presses add a
// positive prompt, secondary presses a negative one. A press that misses the
// model returns false and no error.
func (s *Session) HandlePointer(ctx context.Context, ev picking.PointerEvent, rect picking.Rect, cam *camera.Camera) (bool, error) {
	hit, ok := s.mapper.Pick(ev, rect, cam, s.models.Model())
	if !ok {
		return false, nil
	}
	sign := Positive
	if ev.Button == picking.ButtonSecondary {
		sign = Negative
	}
	return true, s.Click(ctx, hit.Point, sign)
}

// Clear ends the session: the backend is told to forget its prompts (best
// effort), the mesh is restored from the snapshot and any pending response
// is discarded when it arrives.
func (s *Session) Clear(ctx context.Context) {
	wasActive := s.state != Disabled
	s.reset()

	if wasActive {
		s.issue(ctx, "clear_3d_prompts", 0, true, func(ctx context.Context) func() error {
			err := s.backend.ClearPrompts(ctx)
			return func() error {
				if err != nil {
					s.log.Warn("failed to clear remote prompts", zap.Error(err))
				}
				return nil
			}
		})
	}
	s.notify("Segmentation cleared", nil)
}

// ModelReplaced forces the session to Disabled before the viewer detaches
// old. It is meant to be registered as a viewer replace hook.
func (s *Session) ModelReplaced(old *scene.Model) {
	if s.state == Disabled && s.snapshot == nil {
		return
	}
	s.log.Info("model replaced, disabling segmentation",
		zap.String("state", s.state.String()),
		zap.Int("prompts", len(s.prompts)),
	)
	s.reset()
}

// reset restores the mesh, drops all session state and invalidates
// in-flight responses.
func (s *Session) reset() {
	s.epoch++
	if s.snapshot != nil {
		s.painter.Restore(s.snapshot)
	}
	s.snapshot = nil
	s.prompts = nil
	s.segment = nil
	s.numPoints = 0
	s.generationID = ""
	s.state = Disabled
}

// issue runs call on a goroutine and queues the closure it returns.
func (s *Session) issue(ctx context.Context, op string, modelID uint64, always bool, call func(ctx context.Context) func() error) {
	s.pending++
	epoch := s.epoch
	go func() {
		apply := call(ctx)
		s.results <- completion{op: op, epoch: epoch, modelID: modelID, always: always, apply: apply}
	}()
}

// Dispatch applies every completed remote call without blocking. It returns
// the number of completions processed.
func (s *Session) Dispatch() int {
	n := 0
	for {
		select {
		case c := <-s.results:
			s.apply(c)
			n++
		default:
			return n
		}
	}
}

// Await blocks until every issued remote call has been applied or ctx is
// done.
func (s *Session) Await(ctx context.Context) error {
	for s.pending > 0 {
		select {
		case c := <-s.results:
			s.apply(c)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Session) apply(c completion) {
	s.pending--
	if !c.always && s.stale(c) {
		s.log.Debug("discarding response",
			zap.String("op", c.op),
			zap.Uint64("epoch", c.epoch),
			zap.Uint64("current_epoch", s.epoch),
			zap.Error(errStaleResponse),
		)
		return
	}
	if err := c.apply(); err != nil {
		s.log.Warn("segmentation request failed", zap.String("op", c.op), zap.Error(err))
	}
}

func (s *Session) stale(c completion) bool {
	if c.epoch != s.epoch {
		return true
	}
	model := s.models.Model()
	return model == nil || model.ID() != c.modelID
}

func (s *Session) notify(msg string, err error) {
	if s.onStatus != nil {
		s.onStatus(Status{State: s.state, Message: msg, Err: err})
	}
}
