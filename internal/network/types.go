package network

// Prompt labels understood by the segmentation endpoint.
const (
	LabelNegative = 0
	LabelPositive = 1
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
}

// GenerateRequest describes a text (and optionally image) to 3D generation.
// Images are local file paths uploaded as multipart parts.
type GenerateRequest struct {
	Text   string
	Images []string
	Seed   int
}

// GeneratedFiles lists the artifacts of a generation as backend-relative URLs.
type GeneratedFiles struct {
	GLB  string `json:"glb"`
	OBJ  string `json:"obj"`
	PLY  string `json:"ply"`
	SLAT string `json:"slat"`
}

// GenerateResponse is returned by POST /generate.
type GenerateResponse struct {
	Success      bool           `json:"success"`
	GenerationID string         `json:"generation_id"`
	ModelURL     string         `json:"model_url"`
	Files        GeneratedFiles `json:"files"`
	Error        string         `json:"error,omitempty"`
}

// OptimizeResponse is returned by POST /optimize/{generation_id}.
type OptimizeResponse struct {
	Success              bool   `json:"success"`
	GenerationID         string `json:"generation_id"`
	OptimizedModelURL    string `json:"optimized_model_url"`
	Message              string `json:"message"`
	StressesURL          string `json:"stresses_url,omitempty"`
	StressesOptimizedURL string `json:"stresses_optimized_url,omitempty"`
	Error                string `json:"error,omitempty"`
}

// LoadModelRequest is the body of POST /load_3d_model.
type LoadModelRequest struct {
	ModelID string `json:"model_id"`
}

// LoadModelResponse is returned by POST /load_3d_model.
type LoadModelResponse struct {
	Success   bool   `json:"success"`
	ModelID   string `json:"model_id"`
	NumPoints int    `json:"num_points"`
	GLBPath   string `json:"glb_path"`
	Error     string `json:"error,omitempty"`
}

// SegmentRequest is one click prompt in model space.
type SegmentRequest struct {
	X           float32 `json:"x"`
	Y           float32 `json:"y"`
	Z           float32 `json:"z"`
	PromptLabel int     `json:"prompt_label"`
}

// Segment is the backend's current mask expressed as points.
type Segment struct {
	SegmentID    int          `json:"segment_id"`
	PointIndices []int        `json:"point_indices"`
	NumPoints    int          `json:"num_points"`
	IoUScore     float64      `json:"iou_score"`
	Points       [][3]float32 `json:"points"`
	Colors       [][3]int     `json:"colors"`
	ModelID      string       `json:"model_id"`
}

// SegmentResponse is returned by POST /segment_3d_model.
type SegmentResponse struct {
	Success     bool    `json:"success"`
	Segment     Segment `json:"segment"`
	Mask        []bool  `json:"mask"`
	TotalPoints int     `json:"total_points"`
	ModelID     string  `json:"model_id"`
	Error       string  `json:"error,omitempty"`
}

// PointCloud is returned by GET /get_pointcloud. XYZ and RGB are flattened.
type PointCloud struct {
	Success   bool      `json:"success"`
	XYZ       []float32 `json:"xyz"`
	RGB       []float32 `json:"rgb"`
	NumPoints int       `json:"num_points"`
	ModelID   string    `json:"model_id"`
	Error     string    `json:"error,omitempty"`
}

// envelope captures the failure fields shared by every endpoint. FastAPI
// HTTPExceptions use "detail", handler-level failures use "error".
type envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Detail  string `json:"detail"`
}

func (e envelope) message() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Detail
}
