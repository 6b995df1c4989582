package gfx

import (
	"fmt"
	"strings"
)

type Kind uint8

const (
	KindFloat Kind = iota
	KindInt
	KindUint
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Var is a shader uniform: DimA elements of DimM columns by DimV rows.
// Only the slice matching Kind is used.
type Var struct {
	Name string
	Kind Kind
	DimV int
	DimM int
	DimA int
	F    []float32
	I    []int32
	U    []uint32
}

func Float(name string, v ...float32) Var {
	return Var{Name: name, Kind: KindFloat, DimV: len(v), DimM: 1, DimA: 1, F: v}
}

func Int(name string, v ...int32) Var {
	return Var{Name: name, Kind: KindInt, DimV: len(v), DimM: 1, DimA: 1, I: v}
}

func Uint(name string, v ...uint32) Var {
	return Var{Name: name, Kind: KindUint, DimV: len(v), DimM: 1, DimA: 1, U: v}
}

// ElemSize is the scalar count of one array element.
func (v *Var) ElemSize() int { return v.DimV * v.DimM }

func (v *Var) Len() int {
	switch v.Kind {
	case KindInt:
		return len(v.I)
	case KindUint:
		return len(v.U)
	}
	return len(v.F)
}

func (v Var) Clone() Var {
	v.F = append([]float32(nil), v.F...)
	v.I = append([]int32(nil), v.I...)
	v.U = append([]uint32(nil), v.U...)
	return v
}

// GLSLType is the element type name, e.g. vec3, ivec2 or mat2x3.
func (v *Var) GLSLType() string {
	if v.DimM > 1 {
		if v.DimM == v.DimV {
			return fmt.Sprintf("mat%d", v.DimM)
		}
		return fmt.Sprintf("mat%dx%d", v.DimM, v.DimV)
	}
	if v.DimV <= 1 {
		return v.Kind.String()
	}
	prefix := map[Kind]string{KindFloat: "", KindInt: "i", KindUint: "u"}[v.Kind]
	return fmt.Sprintf("%svec%d", prefix, v.DimV)
}

// Decl is the uniform declaration line.
func (v *Var) Decl() string {
	var b strings.Builder
	b.WriteString("uniform ")
	b.WriteString(v.GLSLType())
	b.WriteByte(' ')
	b.WriteString(v.Name)
	if v.DimA > 1 {
		fmt.Fprintf(&b, "[%d]", v.DimA)
	}
	b.WriteByte(';')
	return b.String()
}
