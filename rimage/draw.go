package rimage

import (
	"image"
	"image/color"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	captionFont = func() *truetype.Font {
		f, err := truetype.Parse(goregular.TTF)
		if err != nil {
			panic(err)
		}
		return f
	}()

	facesMu sync.Mutex
	faces   = map[float64]font.Face{}
)

// fontFace returns the caption face at the given point size. Faces are cached; a face
// must not be used by two contexts at once, so callers hold facesMu while drawing.
func fontFace(size float64) font.Face {
	face, ok := faces[size]
	if !ok {
		face = truetype.NewFace(captionFont, &truetype.Options{Size: size})
		faces[size] = face
	}
	return face
}

// DrawStringCentered draws text centered horizontally and vertically on p.
func DrawStringCentered(dc *gg.Context, text string, p image.Point, c color.Color, size float64) {
	facesMu.Lock()
	defer facesMu.Unlock()
	dc.SetFontFace(fontFace(size))
	dc.SetColor(c)
	dc.DrawStringAnchored(text, float64(p.X), float64(p.Y), 0.5, 0.5)
}

// DrawRectangleEmpty strokes the outline of r.
func DrawRectangleEmpty(dc *gg.Context, r image.Rectangle, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
	dc.Stroke()
}
