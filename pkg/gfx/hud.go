package gfx

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	hudLineHeight = 14
	hudCharWidth  = 7
)

// HudSize is the pixel size needed for lines.
func HudSize(lines []string) (w, h int) {
	for _, l := range lines {
		w = max(w, len(l)*hudCharWidth+4)
	}
	return w, len(lines) * hudLineHeight
}

// DrawHud writes lines top left into img over a dark backdrop.
func DrawHud(img draw.Image, lines []string) {
	for i, l := range lines {
		if l == "" {
			continue
		}
		y := i * hudLineHeight
		draw.Draw(img, image.Rect(0, y, len(l)*hudCharWidth+4, y+hudLineHeight),
			&image.Uniform{C: color.RGBA{A: 160}}, image.Point{}, draw.Over)
		(&font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(color.RGBA{R: 255, G: 255, B: 255, A: 255}),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(2, y+11),
		}).DrawString(l)
	}
}

// RenderHud returns the lines as a standalone image.
func RenderHud(lines []string) *image.RGBA {
	w, h := HudSize(lines)
	img := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	DrawHud(img, lines)
	return img
}
