package render

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/models"
)

const (
	StrokeWidth   = 3
	FontSize      = 14
	labelHeight   = 25
	labelPadding  = 10
	textOffsetX   = 5
	textBaselineY = 8
)

var labelTextColor = color.Black

// Overlay paints a frame and its detections onto a Canvas.
type Overlay struct {
	canvas *Canvas

	mu   sync.Mutex
	face font.Face
}

func NewOverlay(canvas *Canvas) (*Overlay, error) {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return &Overlay{
		canvas: canvas,
		face:   truetype.NewFace(f, &truetype.Options{Size: FontSize}),
	}, nil
}

func (o *Overlay) Canvas() *Canvas {
	return o.canvas
}

// Render fully repaints the canvas with frame and one box plus label per detection.
func (o *Overlay) Render(frame models.Frame, detections []models.Detection) error {
	if frame.Empty() {
		return fmt.Errorf("cannot render an empty frame")
	}

	o.mu.Lock()
	dc := gg.NewContextForImage(frame.Image())
	dc.SetFontFace(o.face)
	for _, det := range detections {
		drawDetection(dc, det)
	}
	o.mu.Unlock()

	img, ok := dc.Image().(*image.RGBA)
	if !ok {
		return fmt.Errorf("unexpected canvas image type %T", dc.Image())
	}
	o.canvas.Repaint(img)
	return nil
}

// Label is the text drawn above a detection box.
func Label(det models.Detection) string {
	return fmt.Sprintf("%s %.1f%%", det.Label, det.Confidence*100)
}

func drawDetection(dc *gg.Context, det models.Detection) {
	c := ColorFor(det.Label)
	x, y := det.Box.X, det.Box.Y
	label := Label(det)

	dc.SetColor(c)
	dc.SetLineWidth(StrokeWidth)
	dc.DrawRectangle(x, y, det.Box.Width, det.Box.Height)
	dc.Stroke()

	textWidth, _ := dc.MeasureString(label)
	dc.DrawRectangle(x, y-labelHeight, textWidth+labelPadding, labelHeight)
	dc.Fill()

	dc.SetColor(labelTextColor)
	dc.DrawString(label, x+textOffsetX, y-textBaselineY)
}
