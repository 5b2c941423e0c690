package segmentation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/instructmesh/internal/config"
	"github.com/Faultbox/instructmesh/internal/engine/camera"
	"github.com/Faultbox/instructmesh/internal/engine/picking"
	"github.com/Faultbox/instructmesh/internal/engine/scene"
	"github.com/Faultbox/instructmesh/internal/network"
	"github.com/Faultbox/instructmesh/pkg/math"
)

type fakeBackend struct {
	mu       sync.Mutex
	loads    []string
	requests []network.SegmentRequest
	clears   int

	loadErr    error
	segmentErr error
	clearErr   error
	points     [][3]float32

	// gate, when set, holds Segment until it is closed.
	gate chan struct{}
}

func (f *fakeBackend) LoadModelForSegmentation(ctx context.Context, id string) (*network.LoadModelResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, id)
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return &network.LoadModelResponse{Success: true, ModelID: id, NumPoints: 10000}, nil
}

func (f *fakeBackend) Segment(ctx context.Context, req network.SegmentRequest) (*network.SegmentResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	id, gate, err, points := len(f.requests), f.gate, f.segmentErr, f.points
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &network.SegmentResponse{
		Success:     true,
		Segment:     network.Segment{SegmentID: id, Points: points, NumPoints: len(points), IoUScore: 0.9},
		TotalPoints: 10000,
	}, nil
}

func (f *fakeBackend) ClearPrompts(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return f.clearErr
}

func (f *fakeBackend) segmentCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// tetra is the four-vertex mesh (origin plus unit axes) colored blue.
func tetra(name string) *scene.Model {
	root := scene.NewNode(name)
	mesh := &scene.Mesh{
		Name: name,
		Positions: []math.Vec3{
			{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 0, Y: 0, Z: 1},
		},
		Indices:  []uint32{0, 1, 2, 0, 2, 3, 0, 1, 3, 1, 2, 3},
		Colors:   []float32{0, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1},
		Material: scene.NewMaterial(name),
	}
	mesh.Material.Map = &scene.Texture{Name: "albedo", Width: 1, Height: 1, Pix: []uint8{255, 255, 255, 255}}
	root.Mesh = mesh
	return scene.NewModel(name, root)
}

type harness struct {
	viewer   *scene.Viewer
	backend  *fakeBackend
	session  *Session
	statuses []Status
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		viewer:  scene.NewViewer(camera.New(45, 1), 400, 400),
		backend: &fakeBackend{points: [][3]float32{{0, 0, 0}}},
	}
	h.session = NewSession(h.backend, h.viewer, NewPainter(config.Default().Segmentation))
	h.session.OnStatus(func(s Status) { h.statuses = append(h.statuses, s) })
	h.viewer.OnModelReplaced(h.session.ModelReplaced)
	return h
}

func (h *harness) await(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.session.Await(ctx))
}

func (h *harness) enable(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, h.session.Enable(context.Background(), id))
	assert.Equal(t, Enabling, h.session.State())
	h.await(t)
	require.Equal(t, Enabled, h.session.State())
}

func (h *harness) lastStatus() Status {
	return h.statuses[len(h.statuses)-1]
}

func TestEnableWithoutModelIsRejectedLocally(t *testing.T) {
	h := newHarness(t)

	err := h.session.Enable(context.Background(), "gen-1")
	assert.ErrorIs(t, err, ErrNoModelLoaded)

	h.viewer.AddModel(tetra("m"))
	err = h.session.Enable(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoModelLoaded)

	assert.Empty(t, h.backend.loads)
	assert.Equal(t, Disabled, h.session.State())
}

func TestFailedGenerationPreventsEnable(t *testing.T) {
	var loadCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/generate":
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "generation failed"})
		case "/load_3d_model":
			loadCalls.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "num_points": 10})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := network.New(network.Config{BaseURL: srv.URL, RequestTimeout: 5 * time.Second, GenerateTimeout: 5 * time.Second})
	viewer := scene.NewViewer(camera.New(45, 1), 400, 400)
	session := NewSession(client, viewer, NewPainter(config.Default().Segmentation))

	gen, err := client.Generate(context.Background(), network.GenerateRequest{Text: "a lamp"})
	require.Error(t, err)
	require.Nil(t, gen)

	err = session.Enable(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoModelLoaded)
	assert.Zero(t, session.Pending())
	assert.Zero(t, loadCalls.Load())
}

func TestEnableCapturesSnapshotOnce(t *testing.T) {
	h := newHarness(t)
	model := tetra("m")
	h.viewer.AddModel(model)

	h.enable(t, "gen-1")
	first := h.session.Snapshot()
	require.NotNil(t, first)
	assert.Equal(t, 10000, h.session.NumPoints())
	assert.Contains(t, h.lastStatus().Message, "10000 points")

	require.NoError(t, h.session.Click(context.Background(), math.Vec3{}, Positive))
	h.await(t)
	mesh := model.Root.Mesh
	require.Equal(t, []float32{1, 0.2, 0.2}, mesh.Colors[0:3])

	h.enable(t, "gen-1")
	assert.Same(t, first, h.session.Snapshot(), "snapshot survives a second enable")
	assert.Zero(t, h.session.PromptCount())
	assert.Nil(t, h.session.Segment())
	assert.Equal(t, []float32{0, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1}, mesh.Colors, "re-enable shows the original appearance")
	assert.Equal(t, []string{"gen-1", "gen-1"}, h.backend.loads)
}

func TestEnableFailureReturnsToDisabled(t *testing.T) {
	h := newHarness(t)
	h.viewer.AddModel(tetra("m"))
	h.backend.loadErr = &network.Error{Op: "load_3d_model", Message: "connection refused", Kind: network.ErrUnavailable}

	require.NoError(t, h.session.Enable(context.Background(), "gen-1"))
	h.await(t)

	assert.Equal(t, Disabled, h.session.State())
	assert.False(t, h.session.SnapshotCaptured())
	assert.Empty(t, h.session.GenerationID())
	assert.ErrorIs(t, h.lastStatus().Err, ErrRemoteUnavailable)
}

func TestFourVertexScenario(t *testing.T) {
	h := newHarness(t)
	model := tetra("m")
	h.viewer.AddModel(model)
	h.enable(t, "gen-1")

	require.NoError(t, h.session.Click(context.Background(), math.Vec3{}, Positive))
	assert.Equal(t, Segmenting, h.session.State())
	h.await(t)

	assert.Equal(t, Enabled, h.session.State())
	assert.Equal(t, []float32{
		1, 0.2, 0.2,
		0, 0, 1,
		0, 0, 1,
		0, 0, 1,
	}, model.Root.Mesh.Colors)

	mat := model.Root.Mesh.Material
	assert.True(t, mat.VertexColors)
	assert.Nil(t, mat.Map)
	assert.Equal(t, 1, h.session.Counter())
	require.NotNil(t, h.session.Segment())
	assert.Len(t, h.session.Segment().Points, 1)
}

func TestClickSequenceThenClear(t *testing.T) {
	h := newHarness(t)
	model := tetra("m")
	h.viewer.AddModel(model)
	mesh := model.Root.Mesh
	original := append([]float32(nil), mesh.Colors...)
	texture := mesh.Material.Map

	h.enable(t, "gen-1")

	h.backend.points = [][3]float32{{1, 0, 0}}
	require.NoError(t, h.session.Click(context.Background(), math.Vec3{X: 1}, Positive))
	h.await(t)
	h.backend.points = [][3]float32{{1, 0, 0}, {0, 0, 0}}
	require.NoError(t, h.session.Click(context.Background(), math.Vec3{Y: 1}, Negative))
	h.await(t)

	require.Equal(t, []PromptPoint{
		{Point: math.Vec3{X: 1}, Sign: Positive},
		{Point: math.Vec3{Y: 1}, Sign: Negative},
	}, h.session.Prompts())
	assert.Equal(t, network.LabelPositive, h.backend.requests[0].PromptLabel)
	assert.Equal(t, network.LabelNegative, h.backend.requests[1].PromptLabel)
	assert.NotEqual(t, original, mesh.Colors)

	h.session.Clear(context.Background())
	h.await(t)

	assert.Equal(t, Disabled, h.session.State())
	assert.Zero(t, h.session.PromptCount())
	assert.Nil(t, h.session.Segment())
	assert.False(t, h.session.SnapshotCaptured())
	assert.Equal(t, original, mesh.Colors)
	assert.Same(t, texture, mesh.Material.Map)
	assert.False(t, mesh.Material.VertexColors)
	assert.Equal(t, 1, h.backend.clears)
}

func TestClearFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.viewer.AddModel(tetra("m"))
	h.enable(t, "gen-1")
	h.backend.clearErr = &network.Error{Op: "clear_3d_prompts", Kind: network.ErrUnavailable}

	h.session.Clear(context.Background())
	h.await(t)

	assert.Equal(t, Disabled, h.session.State())
	assert.NoError(t, h.lastStatus().Err)
}

func TestAtMostOneSegmentInFlight(t *testing.T) {
	h := newHarness(t)
	h.viewer.AddModel(tetra("m"))
	h.enable(t, "gen-1")

	gate := make(chan struct{})
	h.backend.mu.Lock()
	h.backend.gate = gate
	h.backend.mu.Unlock()

	ctx := context.Background()
	require.NoError(t, h.session.Click(ctx, math.Vec3{}, Positive))
	assert.ErrorIs(t, h.session.Click(ctx, math.Vec3{X: 1}, Positive), ErrBusy)
	assert.ErrorIs(t, h.session.Click(ctx, math.Vec3{Y: 1}, Negative), ErrBusy)
	assert.Equal(t, 0, h.session.Dispatch(), "nothing completes while the request is held")

	close(gate)
	h.await(t)

	assert.Equal(t, 1, h.backend.segmentCalls())
	assert.Equal(t, 2, h.session.DroppedClicks())
	assert.Equal(t, 1, h.session.PromptCount())

	// Once the response is applied clicks go through again.
	require.NoError(t, h.session.Click(ctx, math.Vec3{X: 1}, Positive))
	h.await(t)
	assert.Equal(t, 2, h.backend.segmentCalls())
}

func TestModelSwapDisablesSession(t *testing.T) {
	h := newHarness(t)
	first := tetra("first")
	h.viewer.AddModel(first)
	original := append([]float32(nil), first.Root.Mesh.Colors...)
	h.enable(t, "gen-1")

	require.NoError(t, h.session.Click(context.Background(), math.Vec3{}, Positive))
	h.await(t)
	require.Equal(t, 1, h.session.PromptCount())

	h.viewer.AddModel(tetra("second"))

	assert.Equal(t, Disabled, h.session.State())
	assert.Zero(t, h.session.PromptCount())
	assert.Nil(t, h.session.Segment())
	assert.False(t, h.session.SnapshotCaptured())
	assert.Equal(t, original, first.Root.Mesh.Colors)
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	h := newHarness(t)
	model := tetra("m")
	h.viewer.AddModel(model)
	original := append([]float32(nil), model.Root.Mesh.Colors...)
	h.enable(t, "gen-1")

	gate := make(chan struct{})
	h.backend.mu.Lock()
	h.backend.gate = gate
	h.backend.mu.Unlock()

	require.NoError(t, h.session.Click(context.Background(), math.Vec3{}, Positive))
	epoch := h.session.Epoch()
	h.session.Clear(context.Background())
	assert.Greater(t, h.session.Epoch(), epoch)

	close(gate)
	h.await(t)

	assert.Equal(t, Disabled, h.session.State())
	assert.Nil(t, h.session.Segment())
	assert.Zero(t, h.session.Counter())
	assert.Equal(t, original, model.Root.Mesh.Colors)
}

func TestStaleEnableAfterModelSwap(t *testing.T) {
	h := newHarness(t)
	h.viewer.AddModel(tetra("first"))

	require.NoError(t, h.session.Enable(context.Background(), "gen-1"))
	h.viewer.AddModel(tetra("second"))
	h.await(t)

	assert.Equal(t, Disabled, h.session.State())
	assert.False(t, h.session.SnapshotCaptured())
}

func TestSegmentTooSmallKeepsVisualization(t *testing.T) {
	h := newHarness(t)
	model := tetra("m")
	h.viewer.AddModel(model)
	h.enable(t, "gen-1")

	require.NoError(t, h.session.Click(context.Background(), math.Vec3{}, Positive))
	h.await(t)
	painted := append([]float32(nil), model.Root.Mesh.Colors...)
	held := h.session.Segment()

	h.backend.segmentErr = &network.Error{Op: "segment_3d_model", StatusCode: 400,
		Message: "Segment too small: only 5 points", Kind: network.ErrSegmentTooSmall}
	require.NoError(t, h.session.Click(context.Background(), math.Vec3{X: 1}, Negative))
	h.await(t)

	assert.Equal(t, Enabled, h.session.State())
	assert.Same(t, held, h.session.Segment())
	assert.Equal(t, painted, model.Root.Mesh.Colors)
	assert.Equal(t, 1, h.session.Counter())
	assert.Equal(t, 2, h.session.PromptCount())
	assert.ErrorIs(t, h.lastStatus().Err, ErrSegmentTooSmall)
}

func TestClickRequiresEnabledSession(t *testing.T) {
	h := newHarness(t)
	h.viewer.AddModel(tetra("m"))

	assert.ErrorIs(t, h.session.Click(context.Background(), math.Vec3{}, Positive), ErrNotEnabled)

	require.NoError(t, h.session.Enable(context.Background(), "gen-1"))
	assert.ErrorIs(t, h.session.Click(context.Background(), math.Vec3{}, Positive), ErrNotEnabled)
	assert.ErrorIs(t, h.session.Enable(context.Background(), "gen-1"), ErrBusy)
	h.await(t)

	assert.Zero(t, h.session.PromptCount())
	assert.Zero(t, h.backend.segmentCalls())
}

func TestHandlePointer(t *testing.T) {
	h := newHarness(t)

	// A unit quad facing a camera on +Z.
	root := scene.NewNode("quad")
	root.Mesh = &scene.Mesh{
		Positions: []math.Vec3{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}},
		Indices:   []uint32{0, 1, 2, 0, 2, 3},
		Material:  scene.NewMaterial("quad"),
	}
	h.viewer.AddModel(scene.NewModel("quad", root))
	h.enable(t, "gen-1")

	cam := h.viewer.Camera()
	cam.Position = math.Vec3{Z: 5}
	cam.Target = math.Vec3{}
	cam.Near, cam.Far = 0.1, 100
	rect := picking.Rect{Width: 400, Height: 400}
	ctx := context.Background()

	hit, err := h.session.HandlePointer(ctx, picking.PointerEvent{ClientX: 5, ClientY: 5}, rect, cam)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Zero(t, h.session.PromptCount(), "a miss creates no prompt")
	assert.Zero(t, h.backend.segmentCalls())

	hit, err = h.session.HandlePointer(ctx, picking.PointerEvent{ClientX: 200, ClientY: 200, Button: picking.ButtonSecondary}, rect, cam)
	require.NoError(t, err)
	assert.True(t, hit)
	h.await(t)

	prompts := h.session.Prompts()
	require.Len(t, prompts, 1)
	assert.Equal(t, Negative, prompts[0].Sign)
	assert.InDelta(t, 0, prompts[0].Point.X, 1e-4)
	assert.InDelta(t, 0, prompts[0].Point.Z, 1e-4)
	assert.Equal(t, network.LabelNegative, h.backend.requests[0].PromptLabel)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disabled", Disabled.String())
	assert.Equal(t, "segmenting", Segmenting.String())
	assert.Equal(t, "State(9)", State(9).String())
	assert.Equal(t, "negative", Negative.String())
}
