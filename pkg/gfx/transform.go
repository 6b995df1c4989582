package gfx

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Placement maps the unit square onto target pixels of a w by h surface,
// y pointing down.
func Placement(p Params, w, h float32) mgl32.Mat3 {
	dx, dy := p.Dst.X*w, p.Dst.Y*h
	dw, dh := p.Dst.W*w, p.Dst.H*h
	cx, cy := dw/2, dh/2
	if p.Center != nil {
		cx, cy = p.Center[0]*w, p.Center[1]*h
	}
	m := mgl32.Translate2D(dx+cx, dy+cy)
	if p.Rotation != 0 {
		m = m.Mul3(mgl32.HomogRotate2D(float32(p.Rotation * math.Pi / 180)))
	}
	return m.Mul3(mgl32.Translate2D(-cx, -cy)).Mul3(mgl32.Scale2D(dw, dh))
}

// SrcCoord turns a unit square position into a source sampling position.
func SrcCoord(p Params, u, v float32) (float32, float32) {
	if p.FlipH {
		u = 1 - u
	}
	if p.FlipV {
		v = 1 - v
	}
	return p.Src.X + u*p.Src.W, p.Src.Y + v*p.Src.H
}

// ColorMod as normalized floats.
func ColorMod(p Params) mgl32.Vec4 {
	c := p.ColorMod
	return mgl32.Vec4{float32(c[0]) / 255, float32(c[1]) / 255, float32(c[2]) / 255, float32(c[3]) / 255}
}
