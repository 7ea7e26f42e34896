package detections

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/models"
)

var ErrEmptyFrame = errors.New("frame has no pixels")

// Preprocessor stretches frames to the model's square input and converts
// them to normalized planar tensors. The stretch is not aspect preserving;
// Postprocessor rescales boxes with the same per-axis factors.
type Preprocessor struct {
	size       int
	numWorkers int
	bufferPool sync.Pool
}

func NewPreprocessor(size int) *Preprocessor {
	p := &Preprocessor{
		size:       size,
		numWorkers: runtime.GOMAXPROCS(0),
	}
	p.bufferPool.New = func() interface{} {
		return models.NewTensor(size)
	}
	return p
}

func (p *Preprocessor) Size() int {
	return p.size
}

// Process returns the tensor for frame. Hand it back with Release once the
// backend is done with it.
func (p *Preprocessor) Process(ctx context.Context, frame models.Frame, timings *models.ProcessingTimings) (*models.Tensor, error) {
	if frame.Empty() {
		return nil, ErrEmptyFrame
	}
	if timings == nil {
		timings = &models.ProcessingTimings{}
	}

	resizeStart := time.Now()
	src := frame.Image()
	if !src.Opaque() {
		src = dropAlpha(src)
	}
	resized := imaging.Resize(src, p.size, p.size, imaging.Linear)
	timings.Resize = time.Since(resizeStart)

	prepStart := time.Now()
	tensor := p.bufferPool.Get().(*models.Tensor)
	if err := splitChannels(ctx, resized, tensor.Data, p.numWorkers); err != nil {
		p.Release(tensor)
		return nil, fmt.Errorf("split channels: %w", err)
	}
	timings.Preprocess = time.Since(prepStart)

	return tensor, nil
}

func (p *Preprocessor) Release(t *models.Tensor) {
	if t != nil && t.Size == p.size {
		p.bufferPool.Put(t)
	}
}

// dropAlpha returns an opaque copy so resampling does not weight colours by alpha.
func dropAlpha(img *image.NRGBA) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}
