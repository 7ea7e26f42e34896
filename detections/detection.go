package detections

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/models"
)

// RawRowBackend runs a model on a (1, 3, S, S) tensor and returns its flat
// output, RowWidth values per row in model-input pixels.
type RawRowBackend interface {
	Run(ctx context.Context, input *models.Tensor) ([]float32, error)
}

// DecodedDetection is one detection from a backend that decodes its own
// output. Box is [x, y, width, height] in source-frame pixels.
type DecodedDetection struct {
	Box       [4]float64 `json:"box"`
	Score     float64    `json:"score"`
	ClassName string     `json:"className"`
}

// DecodedBackend detects objects on the source frame directly.
type DecodedBackend interface {
	Detect(ctx context.Context, frame models.Frame) ([]DecodedDetection, error)
}

// Detector is the common shape every backend is adapted into.
type Detector interface {
	Detect(ctx context.Context, frame models.Frame, timings *models.ProcessingTimings) ([]models.Detection, error)
	Mode() models.BackendMode
}

// NewDetector adapts backend, which must be a RawRowBackend, a
// DecodedBackend or nil. A nil backend yields the demo detector.
func NewDetector(backend interface{}, pre *Preprocessor, post *Postprocessor) (Detector, error) {
	switch b := backend.(type) {
	case nil:
		return NewDemoDetector(), nil
	case RawRowBackend:
		if pre == nil || post == nil {
			return nil, fmt.Errorf("raw row backend needs a preprocessor and a postprocessor")
		}
		return NewRawRowDetector(b, pre, post), nil
	case DecodedBackend:
		var labels LabelTable
		if post != nil {
			labels = post.Labels
		}
		return NewDecodedDetector(b, labels), nil
	default:
		return nil, fmt.Errorf("unsupported backend %T", backend)
	}
}

type rawRowDetector struct {
	backend RawRowBackend
	pre     *Preprocessor
	post    *Postprocessor
}

func NewRawRowDetector(backend RawRowBackend, pre *Preprocessor, post *Postprocessor) Detector {
	return &rawRowDetector{backend: backend, pre: pre, post: post}
}

func (d *rawRowDetector) Mode() models.BackendMode {
	return models.BackendONNX
}

func (d *rawRowDetector) Detect(ctx context.Context, frame models.Frame, timings *models.ProcessingTimings) ([]models.Detection, error) {
	if timings == nil {
		timings = &models.ProcessingTimings{}
	}

	tensor, err := d.pre.Process(ctx, frame, timings)
	if err != nil {
		return nil, fmt.Errorf("prepare input buffer: %w", err)
	}
	defer d.pre.Release(tensor)

	inferStart := time.Now()
	rows, err := d.backend.Run(ctx, tensor)
	if err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}
	timings.Inference = time.Since(inferStart)

	postStart := time.Now()
	detections, err := d.post.Process(rows, frame.Width, frame.Height)
	if err != nil {
		return nil, fmt.Errorf("process predictions: %w", err)
	}
	timings.Postprocess = time.Since(postStart)

	return detections, nil
}

// decodedDetector passes backend results through unfiltered: the confidence
// threshold only applies to raw rows.
type decodedDetector struct {
	backend DecodedBackend
	labels  LabelTable
}

func NewDecodedDetector(backend DecodedBackend, labels LabelTable) Detector {
	return &decodedDetector{backend: backend, labels: labels}
}

func (d *decodedDetector) Mode() models.BackendMode {
	return models.BackendRemote
}

func (d *decodedDetector) Detect(ctx context.Context, frame models.Frame, timings *models.ProcessingTimings) ([]models.Detection, error) {
	if timings == nil {
		timings = &models.ProcessingTimings{}
	}

	inferStart := time.Now()
	decoded, err := d.backend.Detect(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}
	timings.Inference = time.Since(inferStart)

	return lo.Map(decoded, func(det DecodedDetection, _ int) models.Detection {
		label := det.ClassName
		if label == "" {
			label = UnknownLabel
		}
		return models.Detection{
			Box: models.Box{
				X:      det.Box[0],
				Y:      det.Box[1],
				Width:  det.Box[2],
				Height: det.Box[3],
			},
			Confidence: det.Score,
			ClassID:    d.labels.IndexOf(det.ClassName),
			Label:      label,
		}
	}), nil
}
