// Package gfx is the contract between the engine and a GPU backend.
package gfx

import (
	"errors"
	"image"

	"github.com/vizrig/vizrig/pkg/event"
)

// ErrDevice marks failures of the rendering device itself.
// Everything wrapping it is treated as fatal for the running program.
var ErrDevice = errors.New("render device")

// Texture is a backend owned image.
type Texture interface {
	Size() (w, h uint32)
}

// Program is a compiled composite pass.
type Program interface {
	Source() Source
}

// LUT is a color lookup table loaded on the device.
type LUT interface {
	Path() string
}

// Source is a composite pass in three parts.
// Prelude holds global declarations, Header and Body run in that order
// inside the entry point and must assign the vec4 `color`.
// Inputs are visible as src_tex<i> sampled at src_coord<i>.
type Source struct {
	Prelude string
	Header  string
	Body    string
}

// Rect is in units of the texture size: {0, 0, 1, 1} covers all of it.
type Rect struct {
	X, Y, W, H float32
}

var Full = Rect{W: 1, H: 1}

// Params controls one Render call.
type Params struct {
	Src Rect
	Dst Rect
	// Rotation in degrees clockwise around Center.
	Rotation float64
	// Center is relative to the Dst origin in units of the target size,
	// nil means the middle of Dst.
	Center *[2]float32
	FlipH  bool
	FlipV  bool
	// ColorMod multiplies the output, 255 is identity.
	ColorMod [4]uint8
	Vars     []Var
	Lut      LUT
	Debug    bool
}

func DefaultParams() Params {
	return Params{Src: Full, Dst: Full, ColorMod: [4]uint8{255, 255, 255, 255}}
}

// Renderer is implemented by the GPU backends.
// All methods are called from the frame goroutine only.
type Renderer interface {
	NewTexture(w, h uint32) (Texture, error)
	// Upload replaces the texture content, resizing it to the image when needed.
	Upload(t Texture, img image.Image) error
	Clear(t Texture, rgba [4]float32) error
	DeleteTexture(t Texture) error

	NewProgram(src Source, vars []Var) (Program, error)
	DeleteProgram(p Program) error
	// Render runs p over srcs into dst.
	// A nil dst is the window surface.
	Render(p Program, dst Texture, srcs []Texture, params Params) error

	NewLUT(cube *Cube) (LUT, error)
	DeleteLUT(l LUT) error

	WindowSize() (w, h uint32)
	Resize(w, h uint32) error
	StartFrame() error
	// DrawText puts the HUD lines over the window.
	DrawText(lines []string) error
	FinishFrame() error
	Destroy() error
}

// Input is what a window collected since the last poll.
type Input struct {
	Keys    []event.Key
	Quit    bool
	Resized bool
	W, H    uint32
}

// Window is implemented by renderers with an on-screen surface.
type Window interface {
	Poll() Input
}
