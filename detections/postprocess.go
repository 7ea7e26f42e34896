package detections

import (
	"fmt"

	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/models"
)

// Postprocessor turns raw model rows [x1, y1, x2, y2, confidence, classId]
// in model-input pixels into detections in source-frame pixels.
type Postprocessor struct {
	InputSize int
	Threshold float64
	Labels    LabelTable
}

func NewPostprocessor(inputSize int, threshold float64, labels LabelTable) *Postprocessor {
	return &Postprocessor{
		InputSize: inputSize,
		Threshold: threshold,
		Labels:    labels,
	}
}

// Process keeps rows whose confidence is strictly above the threshold.
func (p *Postprocessor) Process(rows []float32, originalWidth, originalHeight int) ([]models.Detection, error) {
	if len(rows)%RowWidth != 0 {
		return nil, fmt.Errorf("unexpected output length %d: not a multiple of %d", len(rows), RowWidth)
	}
	if p.InputSize <= 0 {
		return nil, fmt.Errorf("invalid input size %d", p.InputSize)
	}

	scaleX := float64(originalWidth) / float64(p.InputSize)
	scaleY := float64(originalHeight) / float64(p.InputSize)

	detections := make([]models.Detection, 0, 16)
	for i := 0; i < len(rows); i += RowWidth {
		row := rows[i : i+RowWidth]

		confidence := float64(row[4])
		if !(confidence > p.Threshold) {
			continue
		}

		x1, y1 := float64(row[0]), float64(row[1])
		x2, y2 := float64(row[2]), float64(row[3])
		classID, label := p.Labels.Resolve(float64(row[5]))

		detections = append(detections, models.Detection{
			Box: models.Box{
				X:      x1 * scaleX,
				Y:      y1 * scaleY,
				Width:  (x2 - x1) * scaleX,
				Height: (y2 - y1) * scaleY,
			},
			Confidence: confidence,
			ClassID:    classID,
			Label:      label,
		})
	}

	return detections, nil
}
