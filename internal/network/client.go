// Package network handles communication with the generation and
// segmentation backend over HTTP.
package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/instructmesh/internal/logger"
)

// Config holds backend connection settings.
type Config struct {
	BaseURL         string
	RequestTimeout  time.Duration
	GenerateTimeout time.Duration
}

// Client talks to the backend. It is safe for concurrent use; the viewer
// calls it from background goroutines.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

// New creates a new backend client.
func New(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.GenerateTimeout == 0 {
		cfg.GenerateTimeout = 15 * time.Minute
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{},
		log:  logger.Named("network"),
	}
}

// BaseURL returns the backend root URL.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// ResolveURL turns a backend-relative URL such as /files/x/model.glb into
// an absolute one. Absolute URLs are returned unchanged.
func (c *Client) ResolveURL(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	return c.cfg.BaseURL + "/" + strings.TrimLeft(ref, "/")
}

// HTTPClient exposes the underlying client for asset downloads.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Health checks that the backend is up.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.doJSON(ctx, "health", http.MethodGet, "/health", nil, &out, c.cfg.RequestTimeout); err != nil {
		return nil, err
	}
	return &out, nil
}

// Generate runs text (plus optional reference images) to 3D generation.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	const op = "generate"
	if strings.TrimSpace(req.Text) == "" && len(req.Images) == 0 {
		return nil, &Error{Op: op, Message: "text or image is required", Kind: ErrRejected}
	}

	body, contentType, err := encodeGenerateForm(req)
	if err != nil {
		return nil, &Error{Op: op, Message: err.Error(), Kind: ErrRejected}
	}

	var out GenerateResponse
	if err := c.do(ctx, op, http.MethodPost, "/generate", contentType, body, &out, c.cfg.GenerateTimeout); err != nil {
		return nil, err
	}
	if !out.Success || out.ModelURL == "" {
		return nil, &Error{Op: op, StatusCode: http.StatusOK, Message: nonEmpty(out.Error, "no model was generated"), Kind: ErrRejected}
	}

	c.log.Info("generation finished",
		zap.String("generation_id", out.GenerationID),
		zap.String("model_url", out.ModelURL),
	)
	return &out, nil
}

// Optimize runs the physics optimization pass on a previous generation.
func (c *Client) Optimize(ctx context.Context, generationID string) (*OptimizeResponse, error) {
	const op = "optimize"
	var out OptimizeResponse
	path := "/optimize/" + url.PathEscape(generationID)
	if err := c.doJSON(ctx, op, http.MethodPost, path, nil, &out, c.cfg.GenerateTimeout); err != nil {
		return nil, err
	}
	if !out.Success || out.OptimizedModelURL == "" {
		return nil, &Error{Op: op, StatusCode: http.StatusOK, Message: nonEmpty(out.Error, "no optimized model"), Kind: ErrRejected}
	}
	return &out, nil
}

// LoadModelForSegmentation asks the backend to sample the generation's mesh
// into a point cloud and reset its prompt state.
func (c *Client) LoadModelForSegmentation(ctx context.Context, generationID string) (*LoadModelResponse, error) {
	const op = "load_3d_model"
	var out LoadModelResponse
	if err := c.doJSON(ctx, op, http.MethodPost, "/load_3d_model", LoadModelRequest{ModelID: generationID}, &out, c.cfg.RequestTimeout); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &Error{Op: op, StatusCode: http.StatusOK, Message: nonEmpty(out.Error, "model not loaded"), Kind: ErrRejected}
	}
	return &out, nil
}

// Segment sends one prompt; the backend accumulates prompts server-side.
func (c *Client) Segment(ctx context.Context, req SegmentRequest) (*SegmentResponse, error) {
	const op = "segment_3d_model"
	var out SegmentResponse
	if err := c.doJSON(ctx, op, http.MethodPost, "/segment_3d_model", req, &out, c.cfg.RequestTimeout); err != nil {
		return nil, err
	}
	if !out.Success {
		msg := nonEmpty(out.Error, "segmentation failed")
		return nil, &Error{Op: op, StatusCode: http.StatusOK, Message: msg, Kind: classify(http.StatusOK, msg)}
	}
	return &out, nil
}

// ClearPrompts tells the backend to forget accumulated prompts.
func (c *Client) ClearPrompts(ctx context.Context) error {
	var out envelope
	return c.doJSON(ctx, "clear_3d_prompts", http.MethodPost, "/clear_3d_prompts", nil, &out, c.cfg.RequestTimeout)
}

// PointCloud fetches the sampled point cloud of the loaded model.
func (c *Client) PointCloud(ctx context.Context) (*PointCloud, error) {
	const op = "get_pointcloud"
	var out PointCloud
	if err := c.doJSON(ctx, op, http.MethodGet, "/get_pointcloud", nil, &out, c.cfg.RequestTimeout); err != nil {
		return nil, err
	}
	if len(out.XYZ) != 3*out.NumPoints {
		return nil, &Error{Op: op, StatusCode: http.StatusOK,
			Message: fmt.Sprintf("xyz has %d values for %d points", len(out.XYZ), out.NumPoints), Kind: ErrRejected}
	}
	return &out, nil
}

// doJSON sends an optional JSON body and decodes a JSON response.
func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any, timeout time.Duration) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Message: err.Error(), Kind: ErrRejected}
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}
	return c.do(ctx, op, method, path, contentType, body, out, timeout)
}

func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader, out any, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return &Error{Op: op, Message: err.Error(), Kind: ErrRejected}
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("backend unreachable",
			zap.String("op", op),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return &Error{Op: op, Message: err.Error(), Kind: ErrUnavailable}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: err.Error(), Kind: ErrUnavailable}
	}

	c.log.Debug("backend call",
		zap.String("op", op),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode >= 300 {
		var env envelope
		_ = json.Unmarshal(data, &env)
		msg := nonEmpty(env.message(), http.StatusText(resp.StatusCode))
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: msg, Kind: classify(resp.StatusCode, msg)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: "decoding response: " + err.Error(), Kind: ErrRejected}
	}

	// Endpoints without a typed response still report success:false.
	if env, ok := out.(*envelope); ok && env.Success != nil && !*env.Success {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: env.message(), Kind: ErrRejected}
	}
	return nil
}

func encodeGenerateForm(req GenerateRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("text", req.Text); err != nil {
		return nil, "", err
	}
	seed := req.Seed
	if seed == 0 {
		seed = 1
	}
	if err := w.WriteField("seed", strconv.Itoa(seed)); err != nil {
		return nil, "", err
	}

	for _, path := range req.Images {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("reading image %s: %w", path, err)
		}
		// The backend only accepts parts with an image/* content type.
		ctype := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
		if !strings.HasPrefix(ctype, "image/") {
			ctype = "image/png"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename=%q`, filepath.Base(path)))
		h.Set("Content-Type", ctype)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
