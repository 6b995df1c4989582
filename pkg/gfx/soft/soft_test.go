package soft

import (
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/vizrig/vizrig/pkg/gfx"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func setup(t *testing.T) (*Renderer, gfx.Texture, gfx.Texture, gfx.Program) {
	t.Helper()
	r := New(8, 8)
	src, _ := r.NewTexture(1, 1)
	if err := r.Upload(src, solid(8, 8, color.RGBA{R: 255, A: 255})); err != nil {
		t.Fatal(err)
	}
	dst, _ := r.NewTexture(8, 8)
	p, _ := r.NewProgram(gfx.Source{Body: "color = texture(src_tex0, src_coord0);"}, nil)
	return r, src, dst, p
}

func TestRenderCopies(t *testing.T) {
	r, src, dst, p := setup(t)
	if w, h := src.Size(); w != 8 || h != 8 {
		t.Errorf("upload did not resize: %dx%d", w, h)
	}
	if err := r.Render(p, dst, []gfx.Texture{src}, gfx.DefaultParams()); err != nil {
		t.Fatal(err)
	}
	if got := r.Image(dst).RGBAAt(4, 4); got != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("pixel = %v", got)
	}
	if len(r.Calls) != 1 || r.Calls[0].Dst != dst {
		t.Errorf("calls = %v", r.Calls)
	}
}

func TestRenderPlacementAndMod(t *testing.T) {
	r, src, _, p := setup(t)
	params := gfx.DefaultParams()
	params.Dst = gfx.Rect{W: 0.5, H: 0.5}
	params.ColorMod = [4]uint8{255, 255, 255, 0}
	if err := r.StartFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.Render(p, nil, []gfx.Texture{src}, params); err != nil {
		t.Fatal(err)
	}
	// fully transparent through the color mod, the window stays black
	if got := r.Image(nil).RGBAAt(1, 1); got != (color.RGBA{A: 255}) {
		t.Errorf("modded pixel = %v", got)
	}

	params.ColorMod = [4]uint8{255, 255, 255, 255}
	if err := r.Render(p, nil, []gfx.Texture{src}, params); err != nil {
		t.Fatal(err)
	}
	if got := r.Image(nil).RGBAAt(1, 1); got.R != 255 {
		t.Errorf("placed pixel = %v", got)
	}
	if got := r.Image(nil).RGBAAt(6, 6); got.R != 0 {
		t.Errorf("outside pixel = %v", got)
	}
	if err := r.FinishFrame(); err != nil {
		t.Fatal(err)
	}
}

func TestRenderFeedback(t *testing.T) {
	r, _, dst, p := setup(t)
	if err := r.Clear(dst, [4]float32{0, 0, 1, 1}); err != nil {
		t.Fatal(err)
	}
	if err := r.Render(p, dst, []gfx.Texture{dst}, gfx.DefaultParams()); err != nil {
		t.Fatal(err)
	}
	if got := r.Image(dst).RGBAAt(3, 3); got != (color.RGBA{B: 255, A: 255}) {
		t.Errorf("pixel = %v", got)
	}
}

func TestRenderLUT(t *testing.T) {
	r, src, dst, p := setup(t)
	// swaps red and blue
	cube, err := gfx.ParseCube(strings.NewReader("LUT_3D_SIZE 2\n" +
		"0 0 0\n0 0 1\n0 1 0\n0 1 1\n1 0 0\n1 0 1\n1 1 0\n1 1 1\n"))
	if err != nil {
		t.Fatal(err)
	}
	l, _ := r.NewLUT(cube)
	params := gfx.DefaultParams()
	params.Lut = l
	if err = r.Render(p, dst, []gfx.Texture{src}, params); err != nil {
		t.Fatal(err)
	}
	if got := r.Image(dst).RGBAAt(4, 4); got != (color.RGBA{B: 255, A: 255}) {
		t.Errorf("pixel = %v", got)
	}
}

func TestFrameErrors(t *testing.T) {
	r := New(4, 4)
	if err := r.FinishFrame(); !errors.Is(err, gfx.ErrDevice) {
		t.Errorf("finish without start: %v", err)
	}
	_ = r.StartFrame()
	if err := r.StartFrame(); !errors.Is(err, gfx.ErrDevice) {
		t.Errorf("double start: %v", err)
	}
	tex, _ := r.NewTexture(2, 2)
	_ = r.DeleteTexture(tex)
	if err := r.Clear(tex, [4]float32{}); !errors.Is(err, gfx.ErrDevice) {
		t.Errorf("deleted texture: %v", err)
	}
}
