package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/instructmesh/internal/loader"
	"github.com/Faultbox/instructmesh/internal/network"
)

func TestSegmentCommandExportsPaintedMesh(t *testing.T) {
	var clears atomic.Int32
	var (
		mu  sync.Mutex
		got []network.SegmentRequest
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/load_3d_model", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(network.LoadModelResponse{Success: true, ModelID: "gen", NumPoints: 4})
	})
	mux.HandleFunc("/segment_3d_model", func(w http.ResponseWriter, r *http.Request) {
		var req network.SegmentRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		got = append(got, req)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(network.SegmentResponse{
			Success:     true,
			TotalPoints: 4,
			Segment:     network.Segment{SegmentID: 1, Points: [][3]float32{{0, 0, 0}}, IoUScore: 0.9},
		})
	})
	mux.HandleFunc("/clear_3d_prompts", func(w http.ResponseWriter, r *http.Request) {
		clears.Add(1)
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	model := filepath.Join(dir, "tetra.obj")
	require.NoError(t, os.WriteFile(model, []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nv 0 0 1\nf 1 2 3\nf 1 2 4\nf 1 3 4\nf 2 3 4\n"), 0o644))
	out := filepath.Join(dir, "painted.glb")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{
		"segment", model,
		"--backend", srv.URL,
		"--generation", "gen",
		"--prompt", "0,0,0",
		"--prompt", "0,0,1:neg",
		"--out", out,
		"--clear",
	})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()), stdout.String())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, network.SegmentRequest{X: 0, Y: 0, Z: 0, PromptLabel: network.LabelPositive}, got[0])
	assert.Equal(t, network.LabelNegative, got[1].PromptLabel)
	assert.InDelta(t, 1, got[1].Z, 1e-5, "prompts travel in model space")
	assert.EqualValues(t, 1, clears.Load())
	assert.Contains(t, stdout.String(), "confidence 0.900")

	painted, err := loader.New(nil).Load(context.Background(), out)
	require.NoError(t, err)
	mesh := painted.Meshes()[0].Mesh()
	require.True(t, mesh.HasColors())
	assert.InDeltaSlice(t, []float32{1, 0.2, 0.2}, mesh.Colors[0:3], 1e-5)
	assert.InDeltaSlice(t, []float32{0.7, 0.7, 0.7}, mesh.Colors[3:6], 1e-5)
}
