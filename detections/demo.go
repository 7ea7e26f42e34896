package detections

import (
	"context"

	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/models"
)

// demoDetections keeps the UI populated when no model could be loaded.
// They are not detection results.
var demoDetections = []models.Detection{
	{Box: models.Box{X: 100, Y: 100, Width: 150, Height: 300}, Confidence: 0.92, ClassID: 0, Label: "person"},
	{Box: models.Box{X: 300, Y: 200, Width: 100, Height: 150}, Confidence: 0.88, ClassID: 56, Label: "chair"},
	{Box: models.Box{X: 500, Y: 150, Width: 120, Height: 200}, Confidence: 0.85, ClassID: models.NoClass, Label: "door"},
}

type demoDetector struct{}

func NewDemoDetector() Detector {
	return demoDetector{}
}

func (demoDetector) Mode() models.BackendMode {
	return models.BackendDemo
}

func (demoDetector) Detect(ctx context.Context, _ models.Frame, _ *models.ProcessingTimings) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return DemoDetections(), nil
}

// DemoDetections returns a fresh copy of the fallback set.
func DemoDetections() []models.Detection {
	out := make([]models.Detection, len(demoDetections))
	copy(out, demoDetections)
	return out
}
