// Package soft is a CPU renderer without a window.
// It does not run shader code: a pass layers its inputs in order,
// which is what the default mixer body does.
package soft

import (
	"fmt"
	"image"
	"image/color"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/vizrig/vizrig/pkg/gfx"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

type texture struct {
	img *image.RGBA
}

func (t *texture) Size() (uint32, uint32) {
	b := t.img.Bounds()
	return uint32(b.Dx()), uint32(b.Dy())
}

type program struct {
	src  gfx.Source
	vars []gfx.Var
}

func (p *program) Source() gfx.Source { return p.src }

type lut struct {
	cube *gfx.Cube
}

func (l *lut) Path() string { return l.cube.Path }

// Call is one recorded Render.
type Call struct {
	Source gfx.Source
	Dst    gfx.Texture
	Srcs   []gfx.Texture
	Params gfx.Params
}

type Renderer struct {
	window  *texture
	started bool
	frames  int
	hud     []string

	Calls []Call
}

func New(w, h uint32) *Renderer {
	return &Renderer{window: newTexture(w, h)}
}

func newTexture(w, h uint32) *texture {
	return &texture{img: image.NewRGBA(image.Rect(0, 0, int(w), int(h)))}
}

func (r *Renderer) cast(t gfx.Texture) (*texture, error) {
	if t == nil {
		return r.window, nil
	}
	tex, ok := t.(*texture)
	if !ok || tex.img == nil {
		return nil, fmt.Errorf("%w: foreign or deleted texture %T", gfx.ErrDevice, t)
	}
	return tex, nil
}

func (r *Renderer) NewTexture(w, h uint32) (gfx.Texture, error) {
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: empty texture %dx%d", gfx.ErrDevice, w, h)
	}
	return newTexture(w, h), nil
}

func (r *Renderer) Upload(t gfx.Texture, img image.Image) error {
	tex, err := r.cast(t)
	if err != nil {
		return err
	}
	b := img.Bounds()
	if b.Dx() != tex.img.Bounds().Dx() || b.Dy() != tex.img.Bounds().Dy() {
		tex.img = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	}
	draw.Draw(tex.img, tex.img.Bounds(), img, b.Min, draw.Src)
	return nil
}

func (r *Renderer) Clear(t gfx.Texture, rgba [4]float32) error {
	tex, err := r.cast(t)
	if err != nil {
		return err
	}
	c := color.NRGBA{R: unit8(rgba[0]), G: unit8(rgba[1]), B: unit8(rgba[2]), A: unit8(rgba[3])}
	draw.Draw(tex.img, tex.img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return nil
}

func (r *Renderer) DeleteTexture(t gfx.Texture) error {
	tex, err := r.cast(t)
	if err != nil {
		return err
	}
	tex.img = nil
	return nil
}

func (r *Renderer) NewProgram(src gfx.Source, vars []gfx.Var) (gfx.Program, error) {
	return &program{src: src, vars: vars}, nil
}

func (r *Renderer) DeleteProgram(gfx.Program) error { return nil }

func (r *Renderer) NewLUT(cube *gfx.Cube) (gfx.LUT, error) { return &lut{cube: cube}, nil }

func (r *Renderer) DeleteLUT(gfx.LUT) error { return nil }

func (r *Renderer) Render(p gfx.Program, dst gfx.Texture, srcs []gfx.Texture, params gfx.Params) error {
	prog, ok := p.(*program)
	if !ok {
		return fmt.Errorf("%w: foreign program %T", gfx.ErrDevice, p)
	}
	target, err := r.cast(dst)
	if err != nil {
		return err
	}
	rec := params
	rec.Vars = make([]gfx.Var, len(params.Vars))
	for i := range params.Vars {
		rec.Vars[i] = params.Vars[i].Clone()
	}
	r.Calls = append(r.Calls, Call{Source: prog.src, Dst: dst, Srcs: srcs, Params: rec})

	tb := target.img.Bounds()
	layer := image.NewRGBA(tb)
	m := gfx.Placement(params, float32(tb.Dx()), float32(tb.Dy()))
	for _, s := range srcs {
		src, err := r.cast(s)
		if err != nil {
			return err
		}
		// a pass may read the texture it writes
		img := src.img
		if src == target {
			img = clone(img)
		}
		sr, aff := srcTransform(params, m, img.Bounds())
		if sr.Empty() {
			continue
		}
		draw.ApproxBiLinear.Transform(layer, aff, img, sr, draw.Over, nil)
	}
	var cube *gfx.Cube
	if l, ok := params.Lut.(*lut); ok {
		cube = l.cube
	}
	grade(layer, gfx.ColorMod(params), cube)
	draw.Draw(target.img, tb, layer, tb.Min, draw.Over)
	return nil
}

// srcTransform returns the sampled source pixels and the affine map
// from source pixels into target pixels.
func srcTransform(p gfx.Params, placement mgl32.Mat3, b image.Rectangle) (image.Rectangle, f64.Aff3) {
	w, h := float32(b.Dx()), float32(b.Dy())
	x0, y0 := p.Src.X*w, p.Src.Y*h
	sw, sh := p.Src.W*w, p.Src.H*h
	sr := image.Rect(int(x0), int(y0), int(x0+sw+0.5), int(y0+sh+0.5)).Intersect(b)
	if sw == 0 || sh == 0 {
		return image.Rectangle{}, f64.Aff3{}
	}
	toUnit := mgl32.Scale2D(1/sw, 1/sh).Mul3(mgl32.Translate2D(-x0, -y0))
	if p.FlipH {
		toUnit = mgl32.Translate2D(1, 0).Mul3(mgl32.Scale2D(-1, 1)).Mul3(toUnit)
	}
	if p.FlipV {
		toUnit = mgl32.Translate2D(0, 1).Mul3(mgl32.Scale2D(1, -1)).Mul3(toUnit)
	}
	a := placement.Mul3(toUnit)
	return sr, f64.Aff3{
		float64(a.At(0, 0)), float64(a.At(0, 1)), float64(a.At(0, 2)),
		float64(a.At(1, 0)), float64(a.At(1, 1)), float64(a.At(1, 2)),
	}
}

func grade(img *image.RGBA, mod mgl32.Vec4, cube *gfx.Cube) {
	identity := mod == mgl32.Vec4{1, 1, 1, 1}
	if identity && cube == nil {
		return
	}
	for i := 0; i+3 < len(img.Pix); i += 4 {
		a := float32(img.Pix[i+3]) / 255
		if a == 0 {
			continue
		}
		rgb := [3]float32{
			float32(img.Pix[i]) / 255 / a,
			float32(img.Pix[i+1]) / 255 / a,
			float32(img.Pix[i+2]) / 255 / a,
		}
		if cube != nil {
			rgb = cube.Apply(rgb)
		}
		a *= mod[3]
		for c := 0; c < 3; c++ {
			img.Pix[i+c] = unit8(rgb[c] * mod[c] * a)
		}
		img.Pix[i+3] = unit8(a)
	}
}

func clone(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

func unit8(v float32) uint8 {
	return uint8(min(max(v, 0), 1)*255 + 0.5)
}

func (r *Renderer) WindowSize() (uint32, uint32) { return r.window.Size() }

func (r *Renderer) Resize(w, h uint32) error {
	if w == 0 || h == 0 {
		return fmt.Errorf("%w: empty window %dx%d", gfx.ErrDevice, w, h)
	}
	r.window = newTexture(w, h)
	return nil
}

func (r *Renderer) StartFrame() error {
	if r.started {
		return fmt.Errorf("%w: frame already started", gfx.ErrDevice)
	}
	r.started = true
	r.hud = nil
	return r.Clear(nil, [4]float32{0, 0, 0, 1})
}

func (r *Renderer) DrawText(lines []string) error {
	r.hud = append(r.hud, lines...)
	gfx.DrawHud(r.window.img, lines)
	return nil
}

func (r *Renderer) FinishFrame() error {
	if !r.started {
		return fmt.Errorf("%w: no frame started", gfx.ErrDevice)
	}
	r.started = false
	r.frames++
	return nil
}

func (r *Renderer) Destroy() error { return nil }

// Image exposes texture pixels, the window for nil.
func (r *Renderer) Image(t gfx.Texture) *image.RGBA {
	tex, err := r.cast(t)
	if err != nil {
		return nil
	}
	return tex.img
}

func (r *Renderer) Frames() int { return r.frames }

// Hud returns the text drawn during the current or last frame.
func (r *Renderer) Hud() []string { return r.hud }
