// Package mixer runs the shader nodes that composite decoded streams,
// image sets and other mixer outputs into a texture and onto the window.
package mixer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/vizrig/vizrig/pkg/asset"
	"github.com/vizrig/vizrig/pkg/gfx"
	"github.com/vizrig/vizrig/pkg/logger"
	"github.com/vizrig/vizrig/pkg/media"
	"github.com/vizrig/vizrig/pkg/rational"
	"github.com/vizrig/vizrig/pkg/renderspec"
)

const (
	// frameWrap keeps the frame uniform exact as a float32.
	frameWrap = 1 << 24
	// maxCatchUp bounds the frames decoded for one input in one mix.
	maxCatchUp = 1000
)

// ErrNoFrame means an input gave nothing to show.
var ErrNoFrame = errors.New("no frame")

var transparent = [4]float32{0, 0, 0, 0}

// Video is a decoded stream input.
type Video interface {
	Info() asset.VidInfo
	DecodeFrame(up media.Uploader) error
	LastFrame() gfx.Texture
	LastFrameDuration() int64
}

// Input is one resolved mix input, exactly one field is set.
type Input struct {
	Video  Video
	Images *media.TextureSet
	Mixer  *Mixer
}

// Params of one Mix call.
type Params struct {
	Fps int64
	// FramesToMix counts the frames since the last presented one.
	FramesToMix int64
	// Frame is the current frame number.
	Frame     int64
	Target    *renderspec.CopyEx
	Lut       gfx.LUT
	DryRun    bool
	NoDisplay bool
	Debug     bool
}

type inputClock struct {
	info asset.VidInfo
	time rational.Rational
	set  bool
}

// Mixer is the state of one mixer asset.
type Mixer struct {
	info asset.MixerInfo
	log  *logger.Logger

	u    uniforms
	src  gfx.Source
	prog gfx.Program
	blit gfx.Program
	out  gfx.Texture
	// prev holds the previous output while a mixer reads itself
	prev gfx.Texture

	nextTime   rational.Rational
	inputs     []inputClock
	frameCount int64
	rendered   bool
}

func New(info asset.MixerInfo, log *logger.Logger) *Mixer {
	return &Mixer{
		info: info,
		log:  log.Extend(log.With().Str("m", "Mixer").Str("c", info.Name)),
	}
}

func (m *Mixer) Info() asset.MixerInfo { return m.info }

// PresentTime is the time of the next produced frame in seconds.
func (m *Mixer) PresentTime() rational.Rational { return m.nextTime }

// LastFrame is the output texture, nil before Prepare.
func (m *Mixer) LastFrame() gfx.Texture { return m.out }

func (m *Mixer) FrameCount() int64 { return m.frameCount }

// Prepare builds the composite pass and the output texture once.
func (m *Mixer) Prepare(r gfx.Renderer) error {
	if m.prog != nil {
		return nil
	}
	var d declarations
	for _, s := range []*string{m.info.Header, m.info.Prelude, m.info.Body} {
		if s != nil {
			d.parse(*s)
		}
	}
	for _, err := range d.skipped {
		m.log.Warn().Err(err).Msg("skipped")
	}
	d.vars = append(d.vars, gfx.Float("frame", 0))

	var prelude strings.Builder
	if m.info.Prelude != nil {
		prelude.WriteString(*m.info.Prelude)
		prelude.WriteByte('\n')
	}
	prelude.WriteString(d.addendum.String())

	m.u = uniforms{vars: d.vars}
	m.src = gfx.Source{Prelude: prelude.String(), Body: m.info.BodyOrDefault()}
	if m.info.Header != nil {
		m.src.Header = *m.info.Header
	}

	prog, err := r.NewProgram(m.src, m.u.vars)
	if err != nil {
		return fmt.Errorf("mixer %v: %w", m.info.Name, err)
	}
	m.prog = prog
	if m.blit == nil {
		if m.blit, err = r.NewProgram(gfx.Source{Body: asset.DefaultMixerBody}, nil); err != nil {
			return fmt.Errorf("mixer %v: %w", m.info.Name, err)
		}
	}
	if m.out == nil {
		if m.out, err = r.NewTexture(m.info.Width, m.info.Height); err != nil {
			return fmt.Errorf("mixer %v output: %w", m.info.Name, err)
		}
	}
	return nil
}

// rebuild recompiles the pass after a uniform array changed length.
func (m *Mixer) rebuild(r gfx.Renderer) error {
	if !m.u.reshaped {
		return nil
	}
	prog, err := r.NewProgram(m.src, m.u.vars)
	if err != nil {
		return fmt.Errorf("mixer %v: %w", m.info.Name, err)
	}
	if err := r.DeleteProgram(m.prog); err != nil {
		m.log.Warn().Err(err).Msg("delete program")
	}
	m.prog, m.u.reshaped = prog, false
	return nil
}

// Update applies a SendCmd. Unknown uniform names are ignored.
func (m *Mixer) Update(r gfx.Renderer, cmd renderspec.SendCmd) error {
	if err := m.Prepare(r); err != nil {
		return err
	}
	return m.u.set(cmd.Name, cmd.Value)
}

// Mix produces the frame presented FramesToMix frames after the last one
// and draws it onto the window unless asked not to.
func (m *Mixer) Mix(r gfx.Renderer, inputs []Input, p Params) error {
	if p.FramesToMix <= 0 {
		return nil
	}
	if err := m.Prepare(r); err != nil {
		return err
	}

	present := m.nextTime.Add(rational.New(p.FramesToMix-1, p.Fps))
	m.nextTime = present.Add(rational.New(1, p.Fps))

	if len(m.inputs) != len(inputs) {
		m.inputs = make([]inputClock, len(inputs))
	}

	frames := make([]gfx.Texture, len(inputs))
	self := false
	for i, in := range inputs {
		tex, err := m.resolve(r, i, in, present, p.Frame)
		if err != nil {
			return fmt.Errorf("mixer %v input %d: %w", m.info.Name, i, err)
		}
		frames[i] = tex
		self = self || in.Mixer == m
	}

	if self {
		// read the last output while writing a fresh one
		if m.prev == nil {
			prev, err := r.NewTexture(m.info.Width, m.info.Height)
			if err != nil {
				return fmt.Errorf("mixer %v feedback: %w", m.info.Name, err)
			}
			m.prev = prev
		}
		m.out, m.prev = m.prev, m.out
	}
	if err := r.Clear(m.out, transparent); err != nil {
		return fmt.Errorf("mixer %v clear: %w", m.info.Name, err)
	}

	if len(frames) > 0 && all(frames) {
		m.frameCount++
		m.bindStandard(inputs, p)
		if err := m.rebuild(r); err != nil {
			return err
		}
		params := gfx.DefaultParams()
		params.Vars = m.u.vars
		params.Lut = p.Lut
		params.Debug = p.Debug
		if err := r.Render(m.prog, m.out, frames, params); err != nil {
			return fmt.Errorf("mixer %v render: %w", m.info.Name, err)
		}
	}

	if p.DryRun || p.NoDisplay {
		return nil
	}
	if err := r.Render(m.blit, nil, []gfx.Texture{m.out}, m.placement(r, p.Target)); err != nil {
		return fmt.Errorf("mixer %v display: %w", m.info.Name, err)
	}
	return nil
}

func all(frames []gfx.Texture) bool {
	for _, f := range frames {
		if f == nil {
			return false
		}
	}
	return true
}

func (m *Mixer) resolve(r gfx.Renderer, i int, in Input, present rational.Rational, frame int64) (gfx.Texture, error) {
	switch {
	case in.Video != nil && in.Video.Info().Realtime:
		if err := in.Video.DecodeFrame(r); err != nil {
			return nil, err
		}
		return in.Video.LastFrame(), nil

	case in.Video != nil:
		clock, info := &m.inputs[i], in.Video.Info()
		if !clock.set || !clock.info.Equal(info) {
			*clock = inputClock{info: info, time: present, set: true}
		}
		tb := info.Timebase()
		tex := in.Video.LastFrame()
		for step := 0; ; step++ {
			d := rational.Int(in.Video.LastFrameDuration()).Mul(tb)
			if tex != nil && !d.IsZero() && !clock.time.Add(d).Less(present) {
				return tex, nil
			}
			if step >= maxCatchUp {
				m.log.Warn().Msgf("%v is %v s behind, skipping ahead", info.Name, present.Sub(clock.time).Float64())
				clock.time = present
				return tex, nil
			}
			clock.time = clock.time.Add(d)
			if err := in.Video.DecodeFrame(r); err != nil {
				return nil, err
			}
			tex = in.Video.LastFrame()
			if tex == nil && in.Video.LastFrameDuration() == 0 {
				return nil, fmt.Errorf("%w: %v", ErrNoFrame, info.Name)
			}
		}

	case in.Images != nil:
		if in.Images.Len() == 0 {
			return nil, nil
		}
		return in.Images.Texture(int(frame%int64(in.Images.Len())), r)

	case in.Mixer != nil:
		o := in.Mixer
		if !o.rendered && o.out != nil {
			if err := r.Clear(o.out, transparent); err != nil {
				return nil, err
			}
			o.rendered = true
		}
		return o.out, nil
	}
	return nil, errors.New("empty input")
}

// bindStandard sets the shadertoy style uniforms a shader may declare.
func (m *Mixer) bindStandard(inputs []Input, p Params) {
	w, h := float32(m.info.Width), float32(m.info.Height)
	fps := float32(p.Fps)
	values := []struct {
		name string
		val  renderspec.Value
	}{
		{"iFrame", renderspec.Float(float32(m.frameCount))},
		{"iResolution", renderspec.Vector(w, h, 1)},
		{"iTime", renderspec.Float(float32(m.frameCount) / fps)},
		{"iTimeDelta", renderspec.Float(1 / fps)},
		{"iSampleRate", renderspec.Float(fps)},
	}
	for i, in := range inputs {
		var size [2]uint32
		switch {
		case in.Video != nil:
			size = in.Video.Info().Size
		case in.Images != nil:
			size = in.Images.Info().Size
		case in.Mixer != nil:
			size = [2]uint32{in.Mixer.info.Width, in.Mixer.info.Height}
		}
		values = append(values, struct {
			name string
			val  renderspec.Value
		}{fmt.Sprintf("iResolution%d", i), renderspec.Vector(float32(size[0]), float32(size[1]))})
	}
	values = append(values, struct {
		name string
		val  renderspec.Value
	}{"frame", renderspec.Float(float32(p.Frame % frameWrap))})
	for _, v := range values {
		// a shader declaring these with another type keeps its own values
		if err := m.u.set(v.name, v.val); err != nil {
			m.log.Debug().Err(err).Msgf("standard uniform %v", v.name)
		}
	}
}

// placement maps a CopyEx target onto the window.
func (m *Mixer) placement(r gfx.Renderer, t *renderspec.CopyEx) gfx.Params {
	params := gfx.DefaultParams()
	if t == nil {
		return params
	}
	ow, oh := m.out.Size()
	ww, wh := r.WindowSize()
	if t.Src != nil {
		params.Src = normalize(*t.Src, ow, oh)
	}
	if t.Dst != nil {
		params.Dst = normalize(*t.Dst, ww, wh)
	}
	params.Rotation = t.Rotation
	if t.Center != nil {
		params.Center = &[2]float32{float32(t.Center[0]) / float32(ww), float32(t.Center[1]) / float32(wh)}
	}
	params.FlipH, params.FlipV = t.FlipH, t.FlipV
	if t.ColorMod != nil {
		params.ColorMod = *t.ColorMod
	}
	return params
}

func normalize(r renderspec.Rect, w, h uint32) gfx.Rect {
	return gfx.Rect{
		X: float32(r.X) / float32(w),
		Y: float32(r.Y) / float32(h),
		W: float32(r.W) / float32(w),
		H: float32(r.H) / float32(h),
	}
}

// Reset drops every piece of state, the next call rebuilds it.
func (m *Mixer) Reset(r gfx.Renderer) error {
	var result *multierror.Error
	for _, p := range []gfx.Program{m.prog, m.blit} {
		if p != nil {
			result = multierror.Append(result, r.DeleteProgram(p))
		}
	}
	for _, t := range []gfx.Texture{m.out, m.prev} {
		if t != nil {
			result = multierror.Append(result, r.DeleteTexture(t))
		}
	}
	*m = Mixer{info: m.info, log: m.log}
	return result.ErrorOrNil()
}
