package detections

import (
	"context"
	"image"

	"golang.org/x/sync/errgroup"
)

// splitChannels writes img into dst as three row-major planes (R, G, B)
// scaled to [0,1]. Alpha is not read.
func splitChannels(ctx context.Context, img *image.NRGBA, dst []float32, numWorkers int) error {
	width := img.Rect.Dx()
	height := img.Rect.Dy()
	channelSize := width * height

	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > height {
		numWorkers = height
	}
	rowsPerWorker := height / numWorkers

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < numWorkers; w++ {
		startY := w * rowsPerWorker
		endY := startY + rowsPerWorker
		if w == numWorkers-1 {
			endY = height
		}

		g.Go(func() error {
			for y := startY; y < endY; y++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				row := img.Pix[y*img.Stride : y*img.Stride+width*4]
				offset := y * width
				for x := 0; x < width; x++ {
					i := offset + x
					px := row[x*4 : x*4+3]
					dst[i] = float32(px[0]) / 255.0
					dst[channelSize+i] = float32(px[1]) / 255.0
					dst[channelSize*2+i] = float32(px[2]) / 255.0
				}
			}
			return nil
		})
	}

	return g.Wait()
}
