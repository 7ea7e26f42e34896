package capture

import (
	"context"
	"image"
	// Registered decoders for uploaded images.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"time"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/models"
)

var ErrEmptyImage = errors.New("image has no pixels")

type DecodeResult struct {
	Frame  models.Frame
	Format string
	Err    error
}

// DecodeImage decodes an uploaded image into a frame.
func DecodeImage(r io.Reader) (models.Frame, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return models.Frame{}, "", errors.Wrap(err, "decode image")
	}
	if img.Bounds().Empty() {
		return models.Frame{}, format, ErrEmptyImage
	}
	return models.NewFrame(img, models.OriginImage, time.Now()), format, nil
}

// DecodeAsync decodes r on its own goroutine. The channel receives exactly
// one result; a canceled ctx yields its error instead of the frame.
func DecodeAsync(ctx context.Context, r io.Reader) <-chan DecodeResult {
	out := make(chan DecodeResult, 1)
	go func() {
		defer close(out)
		frame, format, err := DecodeImage(r)
		if ctxErr := ctx.Err(); ctxErr != nil && err == nil {
			err = ctxErr
		}
		out <- DecodeResult{Frame: frame, Format: format, Err: err}
	}()
	return out
}
