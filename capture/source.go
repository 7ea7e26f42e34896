// Package capture provides the frame sources a detection pass reads from:
// a live camera stream or a decoded still image.
package capture

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/models"
)

var ErrSourceClosed = errors.New("frame source is closed")

// Source yields frames until closed.
type Source interface {
	Next(ctx context.Context) (models.Frame, error)
	Close() error
}

// Opener acquires a camera Source. Failures are returned as *Error.
type Opener interface {
	Open(ctx context.Context) (Source, error)
}

// ImageSource serves the same still frame on every call.
type ImageSource struct {
	mu     sync.Mutex
	frame  models.Frame
	closed bool
}

func NewImageSource(frame models.Frame) *ImageSource {
	return &ImageSource{frame: frame}
}

func (s *ImageSource) Next(ctx context.Context) (models.Frame, error) {
	if err := ctx.Err(); err != nil {
		return models.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.Frame{}, ErrSourceClosed
	}
	return s.frame, nil
}

func (s *ImageSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
