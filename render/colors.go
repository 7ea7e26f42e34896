package render

import (
	"image/color"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

type labelColor struct {
	substrings []string
	color      color.RGBA
}

var (
	palette      []labelColor
	defaultColor color.RGBA
)

func init() {
	palette = []labelColor{
		{substrings: []string{"person"}, color: mustHex("#ef4444")},
		{substrings: []string{"chair"}, color: mustHex("#10b981")},
		{substrings: []string{"door"}, color: mustHex("#3b82f6")},
		{substrings: []string{"car", "truck", "bus"}, color: mustHex("#f59e0b")},
	}
	defaultColor = mustHex("#00ff00")
}

func mustHex(s string) color.RGBA {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

// ColorFor picks the box colour from the first palette entry whose
// substring occurs in label.
func ColorFor(label string) color.RGBA {
	for _, entry := range palette {
		for _, s := range entry.substrings {
			if strings.Contains(label, s) {
				return entry.color
			}
		}
	}
	return defaultColor
}
