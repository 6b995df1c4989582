// Package registry keeps the live media and mixer state of the loaded
// program by name and interprets its render specs against it.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/vizrig/vizrig/pkg/asset"
	"github.com/vizrig/vizrig/pkg/event"
	"github.com/vizrig/vizrig/pkg/gfx"
	"github.com/vizrig/vizrig/pkg/logger"
	"github.com/vizrig/vizrig/pkg/media"
	"github.com/vizrig/vizrig/pkg/mixer"
	"github.com/vizrig/vizrig/pkg/monitoring"
	"github.com/vizrig/vizrig/pkg/rational"
	"github.com/vizrig/vizrig/pkg/renderspec"
)

var ErrNotFound = errors.New("not found")

type entry struct {
	info   asset.Info
	stream *media.Stream
	images *media.TextureSet
	mixer  *mixer.Mixer
}

// Registry owns everything the renderer holds for the program.
// It is only used from the frame goroutine.
type Registry struct {
	fps   int64
	r     gfx.Renderer
	demux media.Demuxer
	log   *logger.Logger

	entries map[string]*entry
	luts    map[string]gfx.LUT

	lastFrameRendered int64
}

// New makes an empty registry that considers frame-1 already presented.
func New(fps, frame int64, r gfx.Renderer, d media.Demuxer, log *logger.Logger) *Registry {
	return &Registry{
		fps:               fps,
		r:                 r,
		demux:             d,
		log:               log.Extend(log.With().Str("m", "Registry")),
		entries:           make(map[string]*entry),
		luts:              make(map[string]gfx.LUT),
		lastFrameRendered: frame - 1,
	}
}

func (g *Registry) Fps() int64 { return g.fps }

// Add inserts a loaded asset, replacing a different one of the same name.
// Image sets come decoded, streams and mixers start empty.
func (g *Registry) Add(info asset.Info, images *media.TextureSet) {
	name := info.Name()
	if cur, ok := g.entries[name]; ok && cur.info.Equal(info) {
		return
	}
	g.Remove(name)

	e := &entry{info: info}
	switch {
	case info.Tex != nil:
		e.images = images
	case info.Vid != nil:
		e.stream = media.NewStream(*info.Vid, g.demux, g.log)
	case info.Mixer != nil:
		e.mixer = mixer.New(*info.Mixer, g.log)
	}
	g.entries[name] = e
	g.log.Debug().Msgf("added %v", name)
}

// Remove releases the textures of an asset. Cleanup errors are only logged.
func (g *Registry) Remove(name string) {
	e, ok := g.entries[name]
	if !ok {
		return
	}
	delete(g.entries, name)
	var err error
	switch {
	case e.images != nil:
		err = e.images.Release(g.r)
	case e.stream != nil:
		err = e.stream.Reset(g.r)
	case e.mixer != nil:
		err = e.mixer.Reset(g.r)
	}
	if err != nil {
		g.log.Warn().Err(err).Msgf("cleanup of %v", name)
	}
	g.log.Debug().Msgf("removed %v", name)
}

// Close removes everything including the cached LUTs.
func (g *Registry) Close() error {
	for _, name := range g.Names() {
		g.Remove(name)
	}
	var result *multierror.Error
	for path, l := range g.luts {
		result = multierror.Append(result, g.r.DeleteLUT(l))
		delete(g.luts, path)
	}
	return result.ErrorOrNil()
}

// Info is a snapshot of the resolved asset info by name.
func (g *Registry) Info() map[string]asset.Info {
	out := make(map[string]asset.Info, len(g.entries))
	for name, e := range g.entries {
		out[name] = e.info
	}
	return out
}

func (g *Registry) Names() []string {
	names := make([]string, 0, len(g.entries))
	for name := range g.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (g *Registry) LastFrameRendered() int64 { return g.lastFrameRendered }

func (g *Registry) SetLastFrameRendered(frame int64) { g.lastFrameRendered = frame }

func (g *Registry) PresentTimeForMix(name string) (rational.Rational, error) {
	e, ok := g.entries[name]
	if !ok || e.mixer == nil {
		return rational.Zero, fmt.Errorf("%w: mixer %v", ErrNotFound, name)
	}
	return e.mixer.PresentTime(), nil
}

// LastFrameEvent reports the timing of a stream's last frame.
func (g *Registry) LastFrameEvent(name string) (event.Frame, bool) {
	e, ok := g.entries[name]
	if !ok || e.stream == nil {
		return event.Frame{}, false
	}
	return e.stream.FrameEvent(), true
}

// Render applies one spec for nextFrame.
// Failures are logged, or panic in a dry run. Only device failures are
// returned since the renderer cannot be trusted after them.
func (g *Registry) Render(spec renderspec.RenderSpec, nextFrame int64, dryRun, debug bool) error {
	err := g.render(spec, nextFrame, dryRun, debug)
	if err == nil {
		return nil
	}
	monitoring.RenderErrors.WithLabelValues(spec.Kind()).Inc()
	if dryRun {
		panic(fmt.Sprintf("could not render %v: %v", spec, err))
	}
	if errors.Is(err, gfx.ErrDevice) {
		return err
	}
	g.log.Error().Err(err).Msgf("could not render %v", spec)
	return nil
}

func (g *Registry) render(spec renderspec.RenderSpec, nextFrame int64, dryRun, debug bool) error {
	switch {
	case spec.SendCmd != nil:
		return g.sendCmd(*spec.SendCmd)
	case spec.Mix != nil:
		return g.mix(*spec.Mix, nextFrame-g.lastFrameRendered, nextFrame, dryRun, debug)
	case spec.SeekVid != nil:
		return g.seek(*spec.SeekVid)
	case spec.Reset != nil:
		return g.reset(spec.Reset.Target)
	}
	// None, HudText and SendMidi are handled by the frame loop
	return nil
}

func (g *Registry) sendCmd(cmd renderspec.SendCmd) error {
	e, ok := g.entries[cmd.Mix]
	if !ok || e.mixer == nil {
		return fmt.Errorf("%w: mixer %v for %v", ErrNotFound, cmd.Mix, cmd.Name)
	}
	return e.mixer.Update(g.r, cmd)
}

func (g *Registry) mix(m renderspec.Mix, framesToMix, frame int64, dryRun, debug bool) error {
	if framesToMix <= 0 {
		return nil
	}
	e, ok := g.entries[m.Name]
	if !ok || e.mixer == nil {
		return fmt.Errorf("%w: mixer %v", ErrNotFound, m.Name)
	}

	inputs := make([]mixer.Input, 0, len(m.Inputs))
	for _, in := range m.Inputs {
		src, ok := g.entries[in.Name]
		switch {
		case !ok:
			return fmt.Errorf("%w: input %v", ErrNotFound, in)
		case in.Mixed && src.mixer != nil:
			inputs = append(inputs, mixer.Input{Mixer: src.mixer})
		case !in.Mixed && src.stream != nil:
			inputs = append(inputs, mixer.Input{Video: src.stream})
		case !in.Mixed && src.images != nil:
			inputs = append(inputs, mixer.Input{Images: src.images})
		default:
			return fmt.Errorf("%w: %v has the wrong kind", ErrNotFound, in)
		}
	}

	var lut gfx.LUT
	if m.Lut != nil {
		var err error
		if lut, err = g.lut(*m.Lut); err != nil {
			return err
		}
	}

	start := time.Now()
	err := e.mixer.Mix(g.r, inputs, mixer.Params{
		Fps:         g.fps,
		FramesToMix: framesToMix,
		Frame:       frame,
		Target:      m.Target,
		Lut:         lut,
		DryRun:      dryRun,
		NoDisplay:   m.NoDisplay,
		Debug:       debug,
	})
	if err != nil {
		return fmt.Errorf("mix %v: %w", m.Name, err)
	}
	monitoring.Since(monitoring.MixSeconds.WithLabelValues(m.Name), start)
	if framesToMix > 1 {
		monitoring.FramesDropped.Add(float64(framesToMix - 1))
	}
	return nil
}

func (g *Registry) lut(path string) (gfx.LUT, error) {
	if l, ok := g.luts[path]; ok {
		return l, nil
	}
	cube, err := gfx.LoadCube(path)
	if err != nil {
		return nil, err
	}
	l, err := g.r.NewLUT(cube)
	if err != nil {
		return nil, err
	}
	g.luts[path] = l
	return l, nil
}

func (g *Registry) seek(s renderspec.SeekVid) error {
	e, ok := g.entries[s.Target]
	if !ok || e.stream == nil {
		return fmt.Errorf("%w: video %v", ErrNotFound, s.Target)
	}
	return e.stream.Seek(s.Sec, s.Exact, g.r)
}

func (g *Registry) reset(name string) error {
	e, ok := g.entries[name]
	if !ok {
		return fmt.Errorf("%w: %v to reset", ErrNotFound, name)
	}
	switch {
	case e.stream != nil:
		return e.stream.Reset(g.r)
	case e.mixer != nil:
		return e.mixer.Reset(g.r)
	case e.images != nil:
		return e.images.Reload(g.r, g.log)
	}
	return nil
}
