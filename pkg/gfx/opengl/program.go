package opengl

import (
	"fmt"
	"strings"

	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/vizrig/vizrig/pkg/gfx"
)

func (r *Renderer) newProgram(src gfx.Source, vars []gfx.Var) (*program, error) {
	frag := fragmentSource(src, vars)
	if r.debug {
		r.log.Debug().Msgf("fragment shader:\n%s", frag)
	}
	vs, err := compile(vertexSource, gl.VERTEX_SHADER)
	if err != nil {
		return nil, err
	}
	defer gl.DeleteShader(vs)
	fs, err := compile(frag, gl.FRAGMENT_SHADER)
	if err != nil {
		return nil, err
	}
	defer gl.DeleteShader(fs)

	id := gl.CreateProgram()
	gl.AttachShader(id, vs)
	gl.AttachShader(id, fs)
	gl.LinkProgram(id)
	var status int32
	gl.GetProgramiv(id, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		msg := infoLog(id, gl.GetProgramiv, gl.GetProgramInfoLog)
		gl.DeleteProgram(id)
		return nil, fmt.Errorf("%w: link: %v", gfx.ErrDevice, msg)
	}
	return &program{id: id, src: src, locs: make(map[string]int32)}, nil
}

func compile(source string, kind uint32) (uint32, error) {
	id := gl.CreateShader(kind)
	csrc, free := gl.Strs(source + "\x00")
	gl.ShaderSource(id, 1, csrc, nil)
	free()
	gl.CompileShader(id)
	var status int32
	gl.GetShaderiv(id, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		msg := infoLog(id, gl.GetShaderiv, gl.GetShaderInfoLog)
		gl.DeleteShader(id)
		return 0, fmt.Errorf("%w: compile: %v", gfx.ErrDevice, msg)
	}
	return id, nil
}

func infoLog(id uint32, iv func(uint32, uint32, *int32), get func(uint32, int32, *int32, *uint8)) string {
	var n int32
	iv(id, gl.INFO_LOG_LENGTH, &n)
	if n == 0 {
		return ""
	}
	buf := strings.Repeat("\x00", int(n+1))
	get(id, n, nil, gl.Str(buf))
	return strings.TrimRight(buf, "\x00")
}

// loc caches uniform locations, -1 for unused ones is fine for glUniform.
func (p *program) loc(name string) int32 {
	if l, ok := p.locs[name]; ok {
		return l
	}
	l := gl.GetUniformLocation(p.id, gl.Str(name+"\x00"))
	p.locs[name] = l
	return l
}

func (p *program) bind(v *gfx.Var) {
	l := p.loc(v.Name)
	if l < 0 || v.Len() == 0 || v.DimV < 1 || v.DimV > 4 {
		return
	}
	n := int32(max(v.DimA, 1))
	switch v.Kind {
	case gfx.KindFloat:
		if v.DimM > 1 {
			matrix(v.DimM, v.DimV)(l, n, false, &v.F[0])
			return
		}
		[]func(int32, int32, *float32){gl.Uniform1fv, gl.Uniform2fv, gl.Uniform3fv, gl.Uniform4fv}[v.DimV-1](l, n, &v.F[0])
	case gfx.KindInt:
		[]func(int32, int32, *int32){gl.Uniform1iv, gl.Uniform2iv, gl.Uniform3iv, gl.Uniform4iv}[v.DimV-1](l, n, &v.I[0])
	case gfx.KindUint:
		[]func(int32, int32, *uint32){gl.Uniform1uiv, gl.Uniform2uiv, gl.Uniform3uiv, gl.Uniform4uiv}[v.DimV-1](l, n, &v.U[0])
	}
}

// matrix picks the setter for cols x rows.
func matrix(cols, rows int) func(int32, int32, bool, *float32) {
	switch [2]int{cols, rows} {
	case [2]int{2, 3}:
		return gl.UniformMatrix2x3fv
	case [2]int{2, 4}:
		return gl.UniformMatrix2x4fv
	case [2]int{3, 2}:
		return gl.UniformMatrix3x2fv
	case [2]int{3, 4}:
		return gl.UniformMatrix3x4fv
	case [2]int{4, 2}:
		return gl.UniformMatrix4x2fv
	case [2]int{4, 3}:
		return gl.UniformMatrix4x3fv
	case [2]int{3, 3}:
		return gl.UniformMatrix3fv
	case [2]int{4, 4}:
		return gl.UniformMatrix4fv
	}
	return gl.UniformMatrix2fv
}
