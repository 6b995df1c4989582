// Package opengl renders through OpenGL 3.3 core into an SDL window.
package opengl

import (
	"fmt"
	"image"
	"image/draw"
	"strings"

	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/hashicorp/go-multierror"
	"github.com/vizrig/vizrig/pkg/gfx"
	"github.com/vizrig/vizrig/pkg/logger"
)

// MaxInputs is how many src_tex<i> samplers a pass declares.
const MaxInputs = 8

type texture struct {
	id   uint32
	fbo  uint32
	w, h uint32
}

func (t *texture) Size() (uint32, uint32) { return t.w, t.h }

type program struct {
	id   uint32
	src  gfx.Source
	locs map[string]int32
}

func (p *program) Source() gfx.Source { return p.src }

type lut struct {
	id   uint32
	cube *gfx.Cube
}

func (l *lut) Path() string { return l.cube.Path }

type Renderer struct {
	win     *window
	quad    uint32
	vbo     uint32
	scratch *texture
	hud     *texture
	blit    *program
	started bool
	debug   bool
	log     *logger.Logger
}

func New(cfg Config) (*Renderer, error) {
	win, err := newWindow(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gfx.ErrDevice, err)
	}
	log := cfg.Log
	if log == nil {
		log = logger.Default()
	}
	r := &Renderer{win: win, debug: cfg.Debug, log: log.Extend(log.With().Str("m", "GL"))}
	version, vendor, renderer, glsl := GLInfo()
	r.log.Info().Msgf("OpenGL %v, %v, %v, GLSL %v", version, vendor, renderer, glsl)
	r.initQuad()
	if r.blit, err = r.newProgram(gfx.Source{Body: "color = texture(src_tex0, src_coord0);"}, nil); err != nil {
		_ = win.destroy()
		return nil, err
	}
	return r, r.check("init")
}

func (r *Renderer) initQuad() {
	verts := []float32{0, 0, 1, 0, 0, 1, 1, 1}
	gl.GenVertexArrays(1, &r.quad)
	gl.BindVertexArray(r.quad)
	gl.GenBuffers(1, &r.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(verts)*4, gl.Ptr(verts), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(0, 2, gl.FLOAT, false, 0, 0)
	gl.BindVertexArray(0)
}

func (r *Renderer) check(op string) error {
	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("%w: %s: gl error 0x%x", gfx.ErrDevice, op, code)
	}
	return nil
}

func (r *Renderer) cast(t gfx.Texture) (*texture, error) {
	tex, ok := t.(*texture)
	if !ok || tex.id == 0 {
		return nil, fmt.Errorf("%w: foreign or deleted texture %T", gfx.ErrDevice, t)
	}
	return tex, nil
}

func (r *Renderer) NewTexture(w, h uint32) (gfx.Texture, error) {
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: empty texture %dx%d", gfx.ErrDevice, w, h)
	}
	t := &texture{w: w, h: h}
	gl.GenTextures(1, &t.id)
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.REPEAT)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(w), int32(h), 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return t, r.check("texture")
}

func (r *Renderer) Upload(t gfx.Texture, img image.Image) error {
	tex, err := r.cast(t)
	if err != nil {
		return err
	}
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != rgba.Rect.Dx()*4 {
		rgba = image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	}
	w, h := uint32(rgba.Rect.Dx()), uint32(rgba.Rect.Dy())
	gl.BindTexture(gl.TEXTURE_2D, tex.id)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	if w != tex.w || h != tex.h {
		tex.w, tex.h = w, h
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(w), int32(h), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(rgba.Pix))
	} else {
		gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(w), int32(h), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(rgba.Pix))
	}
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return r.check("upload")
}

func (r *Renderer) framebuffer(t *texture) (uint32, error) {
	if t.fbo != 0 {
		return t.fbo, nil
	}
	gl.GenFramebuffers(1, &t.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, t.id, 0)
	if status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER); status != gl.FRAMEBUFFER_COMPLETE {
		return 0, fmt.Errorf("%w: framebuffer incomplete: 0x%X", gfx.ErrDevice, status)
	}
	return t.fbo, nil
}

// bindTarget binds the framebuffer of t or the window for nil.
func (r *Renderer) bindTarget(t gfx.Texture) (w, h uint32, err error) {
	if t == nil {
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		w, h = r.win.size()
	} else {
		tex, err := r.cast(t)
		if err != nil {
			return 0, 0, err
		}
		fbo, err := r.framebuffer(tex)
		if err != nil {
			return 0, 0, err
		}
		gl.BindFramebuffer(gl.FRAMEBUFFER, fbo)
		w, h = tex.w, tex.h
	}
	gl.Viewport(0, 0, int32(w), int32(h))
	return w, h, nil
}

func (r *Renderer) Clear(t gfx.Texture, rgba [4]float32) error {
	if _, _, err := r.bindTarget(t); err != nil {
		return err
	}
	gl.ClearColor(rgba[0], rgba[1], rgba[2], rgba[3])
	gl.Clear(gl.COLOR_BUFFER_BIT)
	return r.check("clear")
}

func (r *Renderer) DeleteTexture(t gfx.Texture) error {
	tex, err := r.cast(t)
	if err != nil {
		return err
	}
	if tex.fbo != 0 {
		gl.DeleteFramebuffers(1, &tex.fbo)
	}
	gl.DeleteTextures(1, &tex.id)
	tex.id, tex.fbo = 0, 0
	return r.check("delete texture")
}

func (r *Renderer) NewProgram(src gfx.Source, vars []gfx.Var) (gfx.Program, error) {
	return r.newProgram(src, vars)
}

func (r *Renderer) DeleteProgram(p gfx.Program) error {
	prog, ok := p.(*program)
	if !ok {
		return fmt.Errorf("%w: foreign program %T", gfx.ErrDevice, p)
	}
	gl.DeleteProgram(prog.id)
	prog.id = 0
	return nil
}

func (r *Renderer) NewLUT(cube *gfx.Cube) (gfx.LUT, error) {
	l := &lut{cube: cube}
	n := int32(cube.Size)
	gl.GenTextures(1, &l.id)
	gl.BindTexture(gl.TEXTURE_3D, l.id)
	for _, p := range []uint32{gl.TEXTURE_WRAP_S, gl.TEXTURE_WRAP_T, gl.TEXTURE_WRAP_R} {
		gl.TexParameteri(gl.TEXTURE_3D, p, gl.CLAMP_TO_EDGE)
	}
	gl.TexParameteri(gl.TEXTURE_3D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_3D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexImage3D(gl.TEXTURE_3D, 0, gl.RGB32F, n, n, n, 0, gl.RGB, gl.FLOAT, gl.Ptr(cube.Data))
	gl.BindTexture(gl.TEXTURE_3D, 0)
	return l, r.check("lut")
}

func (r *Renderer) DeleteLUT(l gfx.LUT) error {
	if x, ok := l.(*lut); ok && x.id != 0 {
		gl.DeleteTextures(1, &x.id)
		x.id = 0
	}
	return nil
}

func (r *Renderer) Render(p gfx.Program, dst gfx.Texture, srcs []gfx.Texture, params gfx.Params) error {
	prog, ok := p.(*program)
	if !ok || prog.id == 0 {
		return fmt.Errorf("%w: foreign or deleted program %T", gfx.ErrDevice, p)
	}
	if len(srcs) > MaxInputs {
		return fmt.Errorf("%w: %d inputs, at most %d", gfx.ErrDevice, len(srcs), MaxInputs)
	}

	inputs := make([]*texture, len(srcs))
	for i, s := range srcs {
		tex, err := r.cast(s)
		if err != nil {
			return err
		}
		// a framebuffer can't be sampled while it is drawn into
		if dst != nil && s == dst {
			if tex, err = r.copyToScratch(tex); err != nil {
				return err
			}
		}
		inputs[i] = tex
	}

	w, h, err := r.bindTarget(dst)
	if err != nil {
		return err
	}
	gl.UseProgram(prog.id)
	for i, tex := range inputs {
		gl.ActiveTexture(gl.TEXTURE0 + uint32(i))
		gl.BindTexture(gl.TEXTURE_2D, tex.id)
		gl.Uniform1i(prog.loc(fmt.Sprintf("src_tex%d", i)), int32(i))
	}

	place := gfx.Placement(params, float32(w), float32(h))
	gl.UniformMatrix3fv(prog.loc("u_place"), 1, false, &place[0])
	gl.Uniform2f(prog.loc("u_target"), float32(w), float32(h))
	flipY := float32(0)
	if dst == nil {
		flipY = 1
	}
	gl.Uniform1f(prog.loc("u_flip_y"), flipY)
	gl.Uniform4f(prog.loc("u_src"), params.Src.X, params.Src.Y, params.Src.W, params.Src.H)
	gl.Uniform2f(prog.loc("u_flip"), b2f(params.FlipH), b2f(params.FlipV))
	mod := gfx.ColorMod(params)
	gl.Uniform4fv(prog.loc("u_color_mod"), 1, &mod[0])

	hasLut := int32(0)
	if l, ok := params.Lut.(*lut); ok && l.id != 0 {
		hasLut = 1
		gl.ActiveTexture(gl.TEXTURE0 + MaxInputs)
		gl.BindTexture(gl.TEXTURE_3D, l.id)
		gl.Uniform3fv(prog.loc("u_lut_min"), 1, &l.cube.DomainMin[0])
		gl.Uniform3fv(prog.loc("u_lut_max"), 1, &l.cube.DomainMax[0])
		gl.Uniform1f(prog.loc("u_lut_size"), float32(l.cube.Size))
	}
	gl.Uniform1i(prog.loc("u_has_lut"), hasLut)
	// samplers of different types must never share a unit
	gl.Uniform1i(prog.loc("u_lut"), MaxInputs)

	for i := range params.Vars {
		prog.bind(&params.Vars[i])
	}

	gl.BindVertexArray(r.quad)
	gl.DrawArrays(gl.TRIANGLE_STRIP, 0, 4)
	gl.BindVertexArray(0)
	gl.UseProgram(0)
	return r.check("render")
}

func (r *Renderer) copyToScratch(src *texture) (*texture, error) {
	if r.scratch == nil || r.scratch.w != src.w || r.scratch.h != src.h {
		if r.scratch != nil {
			_ = r.DeleteTexture(r.scratch)
		}
		t, err := r.NewTexture(src.w, src.h)
		if err != nil {
			return nil, err
		}
		r.scratch = t.(*texture)
	}
	from, err := r.framebuffer(src)
	if err != nil {
		return nil, err
	}
	to, err := r.framebuffer(r.scratch)
	if err != nil {
		return nil, err
	}
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, from)
	gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, to)
	gl.BlitFramebuffer(0, 0, int32(src.w), int32(src.h), 0, 0, int32(src.w), int32(src.h),
		gl.COLOR_BUFFER_BIT, gl.NEAREST)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	return r.scratch, r.check("copy")
}

func (r *Renderer) WindowSize() (uint32, uint32) { return r.win.size() }

// Resize follows the window, the drawable size is read back on every frame.
func (r *Renderer) Resize(w, h uint32) error {
	if w == 0 || h == 0 {
		return fmt.Errorf("%w: empty window %dx%d", gfx.ErrDevice, w, h)
	}
	return nil
}

func (r *Renderer) StartFrame() error {
	if r.started {
		return fmt.Errorf("%w: frame already started", gfx.ErrDevice)
	}
	r.started = true
	return r.Clear(nil, [4]float32{0, 0, 0, 1})
}

func (r *Renderer) DrawText(lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	img := gfx.RenderHud(lines)
	if r.hud == nil {
		t, err := r.NewTexture(uint32(img.Rect.Dx()), uint32(img.Rect.Dy()))
		if err != nil {
			return err
		}
		r.hud = t.(*texture)
	}
	if err := r.Upload(r.hud, img); err != nil {
		return err
	}
	ww, wh := r.win.size()
	params := gfx.DefaultParams()
	params.Dst = gfx.Rect{W: float32(r.hud.w) / float32(ww), H: float32(r.hud.h) / float32(wh)}
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.ONE, gl.ONE_MINUS_SRC_ALPHA)
	err := r.Render(r.blit, nil, []gfx.Texture{r.hud}, params)
	gl.Disable(gl.BLEND)
	return err
}

func (r *Renderer) FinishFrame() error {
	if !r.started {
		return fmt.Errorf("%w: no frame started", gfx.ErrDevice)
	}
	r.started = false
	r.win.swap()
	return r.check("finish")
}

func (r *Renderer) Destroy() error {
	var result *multierror.Error
	for _, t := range []*texture{r.scratch, r.hud} {
		if t != nil {
			result = multierror.Append(result, r.DeleteTexture(t))
		}
	}
	result = multierror.Append(result, r.DeleteProgram(r.blit))
	gl.DeleteBuffers(1, &r.vbo)
	gl.DeleteVertexArrays(1, &r.quad)
	result = multierror.Append(result, r.win.destroy())
	return result.ErrorOrNil()
}

func b2f(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

// fragmentSource puts a pass together.
func fragmentSource(src gfx.Source, vars []gfx.Var) string {
	var b strings.Builder
	b.WriteString("#version 330 core\nin vec2 v_coord;\nout vec4 frag_color;\n")
	for i := 0; i < MaxInputs; i++ {
		fmt.Fprintf(&b, "uniform sampler2D src_tex%d;\n#define src_coord%d v_coord\n", i, i)
	}
	b.WriteString(lutDecl)
	for i := range vars {
		b.WriteString(vars[i].Decl())
		b.WriteByte('\n')
	}
	b.WriteString(src.Prelude)
	b.WriteString("\nvoid main() {\nvec4 color = vec4(0.0);\n")
	b.WriteString(src.Header)
	b.WriteByte('\n')
	b.WriteString(src.Body)
	b.WriteString("\n" + lutApply + "frag_color = color * u_color_mod;\n}\n")
	return b.String()
}

const vertexSource = `#version 330 core
layout(location = 0) in vec2 a_unit;
uniform mat3 u_place;
uniform vec2 u_target;
uniform float u_flip_y;
uniform vec4 u_src;
uniform vec2 u_flip;
out vec2 v_coord;
void main() {
	vec3 p = u_place * vec3(a_unit, 1.0);
	vec2 ndc = p.xy / u_target * 2.0 - 1.0;
	if (u_flip_y > 0.5) ndc.y = -ndc.y;
	vec2 uv = mix(a_unit, 1.0 - a_unit, u_flip);
	v_coord = u_src.xy + uv * u_src.zw;
	gl_Position = vec4(ndc, 0.0, 1.0);
}
`

const lutDecl = `uniform vec4 u_color_mod;
uniform bool u_has_lut;
uniform sampler3D u_lut;
uniform vec3 u_lut_min;
uniform vec3 u_lut_max;
uniform float u_lut_size;
`

const lutApply = `if (u_has_lut) {
	vec3 x = clamp((color.rgb - u_lut_min) / (u_lut_max - u_lut_min), 0.0, 1.0);
	color.rgb = texture(u_lut, (x * (u_lut_size - 1.0) + 0.5) / u_lut_size).rgb;
}
`
