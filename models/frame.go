package models

import (
	"image"
	"time"

	"github.com/disintegration/imaging"
)

type FrameOrigin string

const (
	OriginCamera FrameOrigin = "camera"
	OriginImage  FrameOrigin = "image"
)

// Frame is one raster image handed to a detection pass. Pix holds
// non-premultiplied RGBA, row-major, four bytes per pixel.
type Frame struct {
	Width      int
	Height     int
	Pix        []uint8
	Origin     FrameOrigin
	CapturedAt time.Time
}

// NewFrame copies img into a frame with its origin at (0, 0).
func NewFrame(img image.Image, origin FrameOrigin, capturedAt time.Time) Frame {
	dst := imaging.Clone(img)
	b := dst.Bounds()
	return Frame{
		Width:      b.Dx(),
		Height:     b.Dy(),
		Pix:        dst.Pix,
		Origin:     origin,
		CapturedAt: capturedAt,
	}
}

// Image returns a view over the frame pixels. It must not be modified.
func (f Frame) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    f.Pix,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

func (f Frame) Empty() bool {
	return f.Width <= 0 || f.Height <= 0
}

// Tensor is a normalized channels-first buffer of side Size: plane 0 holds
// every R value in row-major order, then G, then B.
type Tensor struct {
	Size int
	Data []float32
}

func NewTensor(size int) *Tensor {
	return &Tensor{
		Size: size,
		Data: make([]float32, 3*size*size),
	}
}

// Plane returns channel c (0=R, 1=G, 2=B).
func (t *Tensor) Plane(c int) []float32 {
	n := t.Size * t.Size
	return t.Data[c*n : (c+1)*n]
}

func (t *Tensor) Shape() []int64 {
	return []int64{1, 3, int64(t.Size), int64(t.Size)}
}
