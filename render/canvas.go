package render

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync"
)

// Canvas is the shared output surface. Every Repaint replaces the whole
// image; subscribers are called after the swap, outside the lock.
type Canvas struct {
	mu          sync.RWMutex
	img         *image.RGBA
	version     uint64
	subscribers []func(image.Image)
}

func NewCanvas() *Canvas {
	return &Canvas{}
}

func (c *Canvas) Repaint(img *image.RGBA) {
	c.mu.Lock()
	c.img = img
	c.version++
	subscribers := append(([]func(image.Image))(nil), c.subscribers...)
	c.mu.Unlock()

	for _, fn := range subscribers {
		fn(img)
	}
}

// Snapshot returns the last painted image and its repaint count. The image
// is nil before the first repaint.
func (c *Canvas) Snapshot() (image.Image, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.img == nil {
		return nil, c.version
	}
	return c.img, c.version
}

func (c *Canvas) Subscribe(fn func(image.Image)) {
	c.mu.Lock()
	c.subscribers = append(c.subscribers, fn)
	c.mu.Unlock()
}

func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
