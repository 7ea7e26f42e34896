package models

import (
	"image"
	"math"
	"sort"
	"time"

	"github.com/samber/lo"
)

// Box is a bounding box in source-frame pixels.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b Box) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(b.X)),
		int(math.Round(b.Y)),
		int(math.Round(b.X+b.Width)),
		int(math.Round(b.Y+b.Height)),
	)
}

type ConfidenceTier string

const (
	TierHigh   ConfidenceTier = "high"
	TierMedium ConfidenceTier = "medium"
	TierLow    ConfidenceTier = "low"
)

// NoClass marks a detection whose backend only supplied a name.
const NoClass = -1

type Detection struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
	Label      string  `json:"label"`
}

func (d Detection) Tier() ConfidenceTier {
	switch {
	case d.Confidence > 0.7:
		return TierHigh
	case d.Confidence > 0.5:
		return TierMedium
	default:
		return TierLow
	}
}

type BackendMode string

const (
	BackendONNX   BackendMode = "onnx"
	BackendRemote BackendMode = "remote"
	BackendDemo   BackendMode = "demo"
)

// DisplayName is the model status text shown next to the metrics.
func (m BackendMode) DisplayName() string {
	switch m {
	case BackendONNX:
		return "YOLOv8 (ONNX)"
	case BackendRemote:
		return "COCO-SSD (remote)"
	default:
		return "Demo mode"
	}
}

type ProcessingTimings struct {
	RequestID   string        `json:"request_id"`
	Resize      time.Duration `json:"resize"`
	Preprocess  time.Duration `json:"preprocess"`
	Inference   time.Duration `json:"inference"`
	Postprocess time.Duration `json:"postprocess"`
	Render      time.Duration `json:"render"`
	Total       time.Duration `json:"total"`
}

// PassResult is the outcome of one detection pass.
type PassResult struct {
	ID             string            `json:"id"`
	Backend        BackendMode       `json:"backend"`
	Detections     []Detection       `json:"detections"`
	ProcessingTime time.Duration     `json:"processing_time"`
	Timings        ProcessingTimings `json:"timings"`
}

func (r *PassResult) ObjectCount() int {
	return len(r.Detections)
}

func (r *PassResult) AverageConfidence() float64 {
	if len(r.Detections) == 0 {
		return 0
	}
	sum := lo.SumBy(r.Detections, func(d Detection) float64 { return d.Confidence })
	return sum / float64(len(r.Detections))
}

// Metrics is the aggregate published to the UI after each pass.
type Metrics struct {
	ObjectCount       int     `json:"objects_count"`
	AverageConfidence float64 `json:"confidence_avg"`
	ProcessingTimeMs  float64 `json:"processing_time_ms"`
	FPS               int     `json:"fps"`
	ModelStatus       string  `json:"model_status"`
	DetectionStatus   string  `json:"detection_status"`
}

// SortDetectionsByConfidence orders detections from most to least confident.
func SortDetectionsByConfidence(detections []Detection) {
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})
}
