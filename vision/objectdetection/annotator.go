package objectdetection

import (
	"fmt"
	"image"
	"image/color"
	"unicode"
	"unicode/utf8"

	"github.com/fogleman/gg"

	"go.viam.com/peoplecount/rimage"
)

// AnnotatorConfig controls how detections are drawn.
type AnnotatorConfig struct {
	BoxColor  color.RGBA
	TextColor color.Color
	LineWidth float64
	FontSize  float64
}

// DefaultAnnotatorConfig draws green boxes with black label text.
func DefaultAnnotatorConfig() AnnotatorConfig {
	return AnnotatorConfig{
		BoxColor:  color.RGBA{G: 0xff, A: 0xff},
		TextColor: color.Black,
		LineWidth: 2,
		FontSize:  14,
	}
}

// An Annotator draws a batch of detections onto a copy of a frame.
type Annotator struct {
	cfg AnnotatorConfig
}

// NewAnnotator returns an Annotator. Zero fields fall back to the defaults.
func NewAnnotator(cfg AnnotatorConfig) *Annotator {
	def := DefaultAnnotatorConfig()
	if cfg.BoxColor == (color.RGBA{}) {
		cfg.BoxColor = def.BoxColor
	}
	if cfg.TextColor == nil {
		cfg.TextColor = def.TextColor
	}
	if cfg.LineWidth <= 0 {
		cfg.LineWidth = def.LineWidth
	}
	if cfg.FontSize <= 0 {
		cfg.FontSize = def.FontSize
	}
	return &Annotator{cfg: cfg}
}

// Render returns an annotated copy of `img` and the number of detections drawn. The input image
// is not modified.
func (a *Annotator) Render(img image.Image, batch Batch) (*image.RGBA, int) {
	out := rimage.CloneToRGBA(img)
	origin := img.Bounds().Min
	dc := gg.NewContextForRGBA(out)

	for _, d := range batch {
		box := d.Box.Sub(origin)
		rimage.DrawRectangleEmpty(dc, box, a.cfg.BoxColor, a.cfg.LineWidth)
		rimage.DrawLabel(dc, LabelText(d), box.Min, a.cfg.BoxColor, a.cfg.TextColor, a.cfg.FontSize)
	}
	return out, len(batch)
}

// LabelText is the caption drawn next to a detection, e.g. "Person 0.87".
func LabelText(d Detection) string {
	return fmt.Sprintf("%s %.2f", capitalize(d.Label), d.Score)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
