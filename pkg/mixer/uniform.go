package mixer

import (
	"errors"
	"fmt"

	"github.com/vizrig/vizrig/pkg/gfx"
	"github.com/vizrig/vizrig/pkg/renderspec"
)

// ErrBadValue is a value whose type does not match the declared uniform.
var ErrBadValue = errors.New("bad uniform value")

// uniforms is the typed value store behind a composite pass.
type uniforms struct {
	vars []gfx.Var
	// reshaped is set when an array length changed and the pass
	// has to be rebuilt with new declarations
	reshaped bool
}

func (u *uniforms) lookup(name string) *gfx.Var {
	for i := range u.vars {
		if u.vars[i].Name == name {
			return &u.vars[i]
		}
	}
	return nil
}

// set writes a value into the named uniform. Unknown names are ignored.
func (u *uniforms) set(name string, val renderspec.Value) error {
	v := u.lookup(name)
	if v == nil {
		return nil
	}
	want := map[renderspec.ValueKind]gfx.Kind{
		renderspec.ValueFloat:    gfx.KindFloat,
		renderspec.ValueVector:   gfx.KindFloat,
		renderspec.ValueInteger:  gfx.KindInt,
		renderspec.ValueIVector:  gfx.KindInt,
		renderspec.ValueUnsigned: gfx.KindUint,
		renderspec.ValueUVector:  gfx.KindUint,
	}[val.Kind]
	if want != v.Kind {
		return fmt.Errorf("%w: %v is %v, got %v", ErrBadValue, name, v.Kind, val.Kind)
	}

	switch val.Kind {
	case renderspec.ValueFloat:
		v.F = scalar(v.F, val.Float)
	case renderspec.ValueInteger:
		v.I = scalar(v.I, val.Int)
	case renderspec.ValueUnsigned:
		v.U = scalar(v.U, val.Uint)
	case renderspec.ValueVector:
		v.F = resize(u, v, val.Floats, false)
	case renderspec.ValueIVector:
		v.I = resize(u, v, val.Ints, false)
	case renderspec.ValueUVector:
		v.U = resize(u, v, val.Uints, true)
	}
	return nil
}

func scalar[T any](dst []T, x T) []T {
	if len(dst) == 0 {
		return []T{x}
	}
	dst[0] = x
	return dst
}

// resize stores vals as whole array elements.
// A single vector element keeps at least one element for float and int
// values and two for unsigned ones, anything else the other way round.
func resize[T any](u *uniforms, v *gfx.Var, vals []T, unsigned bool) []T {
	es := v.ElemSize()
	single := v.DimA == 1 && es > 1
	least := 2 * es
	if single != unsigned {
		least = es
	}
	n := max(len(vals), least)
	n = (n + es - 1) / es * es

	out := make([]T, n)
	copy(out, vals)
	if dimA := n / es; dimA != v.DimA {
		v.DimA = dimA
		u.reshaped = true
	}
	return out
}
