package rimage

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

var font *truetype.Font

// init sets up the fonts we want to use.
func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Font returns the font we use for drawing.
func Font() *truetype.Font {
	return font
}

// labelPadding is the gap in pixels between label text and the edge of its background.
const labelPadding = 3

// DrawRectangleEmpty strokes the outline of `r` into the context.
func DrawRectangleEmpty(dc *gg.Context, r image.Rectangle, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.SetLineCap(gg.LineCapSquare)
	dc.DrawLine(float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Min.Y))
	dc.DrawLine(float64(r.Max.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y))
	dc.DrawLine(float64(r.Max.X), float64(r.Max.Y), float64(r.Min.X), float64(r.Max.Y))
	dc.DrawLine(float64(r.Min.X), float64(r.Max.Y), float64(r.Min.X), float64(r.Min.Y))
	dc.Stroke()
}

// DrawLabel writes `text` on a filled background whose bottom-left corner sits at `anchor`.
// When there is no room above the anchor the label is pushed down so it stays inside the image.
// It returns the rectangle covered by the label.
func DrawLabel(dc *gg.Context, text string, anchor image.Point, bg, fg color.Color, size float64) image.Rectangle {
	dc.SetFontFace(truetype.NewFace(Font(), &truetype.Options{Size: size}))
	textW, textH := dc.MeasureString(text)

	boxW := textW + 2*labelPadding
	boxH := textH + 2*labelPadding
	left := float64(anchor.X)
	top := float64(anchor.Y) - boxH
	if top < 0 {
		top = float64(anchor.Y)
	}

	dc.SetColor(bg)
	dc.DrawRectangle(left, top, boxW, boxH)
	dc.Fill()

	dc.SetColor(fg)
	dc.DrawString(text, left+labelPadding, top+labelPadding+textH)

	return image.Rect(int(left), int(top), int(left+boxW+0.5), int(top+boxH+0.5))
}
