// Package engine runs the frame cycle: collect events, ask the program
// what to draw, draw it and wait for the next frame boundary.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vizrig/vizrig/pkg/event"
	"github.com/vizrig/vizrig/pkg/gfx"
	"github.com/vizrig/vizrig/pkg/loader"
	"github.com/vizrig/vizrig/pkg/logger"
	"github.com/vizrig/vizrig/pkg/media"
	"github.com/vizrig/vizrig/pkg/monitoring"
	vos "github.com/vizrig/vizrig/pkg/os"
	"github.com/vizrig/vizrig/pkg/registry"
	"github.com/vizrig/vizrig/pkg/remote"
	"github.com/vizrig/vizrig/pkg/renderspec"
)

var (
	ErrDryRun    = errors.New("dry run failed")
	ErrNoProgram = errors.New("no program loaded")
)

type Config struct {
	Fps          int64
	DryRun       bool
	Frames       uint64
	ShowMixTime  bool
	ShaderDebug  bool
	SettingsFile string
}

// Loader swaps programs in, see loader.Loader.
type Loader interface {
	Start(ctx context.Context) bool
	TryFinish(ctx context.Context, block bool, t loader.Target, old loader.Program) (loader.Program, error)
	Changed() bool
}

type Midi interface {
	Drain() []event.Event
	Send(m event.Midi) error
}

type Remote interface {
	Drain() []event.Event
	Broadcast(f remote.Frame) error
}

type Engine struct {
	conf   Config
	r      gfx.Renderer
	demux  media.Demuxer
	loader Loader
	midi   Midi
	remote Remote
	logs   *logger.Capture
	log    *logger.Logger

	now   func() time.Time
	sleep func(time.Duration)

	reg      *registry.Registry
	prog     loader.Program
	frame    int64
	events   []event.Event
	rendered uint64
	w, h     uint32
}

func New(conf Config, r gfx.Renderer, d media.Demuxer, l Loader, log *logger.Logger) *Engine {
	return &Engine{
		conf:   conf,
		r:      r,
		demux:  d,
		loader: l,
		log:    log.Extend(log.With().Str("m", "Engine")),
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

func (e *Engine) WithMidi(m Midi) *Engine            { e.midi = m; return e }
func (e *Engine) WithRemote(r Remote) *Engine        { e.remote = r; return e }
func (e *Engine) WithLogs(c *logger.Capture) *Engine { e.logs = c; return e }
func (e *Engine) nsPerFrame() int64                  { return int64(time.Second) / e.conf.Fps }
func (e *Engine) frameAt(t time.Time) int64          { return t.UnixNano() / e.nsPerFrame() }
func (e *Engine) frameTime(frame int64) time.Time    { return time.Unix(0, frame*e.nsPerFrame()) }
func (e *Engine) Frame() int64                       { return e.frame }
func (e *Engine) Rendered() uint64                   { return e.rendered }
func (e *Engine) Registry() *registry.Registry       { return e.reg }
func (e *Engine) queue(events ...event.Event)        { e.events = append(e.events, events...) }

// Run loads the program and renders until ctx is done, the window is
// closed or the frame limit is reached. In a dry run any error, including
// the ones the registry escalates, ends it with ErrDryRun.
func (e *Engine) Run(ctx context.Context) (err error) {
	if e.conf.DryRun {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrDryRun, r)
			}
		}()
	}

	defer e.shutdown(ctx)
	if err = e.start(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrDryRun, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		quit, err := e.Tick(ctx)
		if err != nil {
			if e.conf.DryRun {
				return fmt.Errorf("%w: %w", ErrDryRun, err)
			}
			if errors.Is(err, gfx.ErrDevice) {
				return err
			}
		}
		if quit || (e.conf.Frames > 0 && e.rendered >= e.conf.Frames) {
			return nil
		}
		e.pace(ctx)
	}
}

// start makes the registry and blocks on the first load. Only a dry run
// fails on a bad program.
func (e *Engine) start(ctx context.Context) error {
	e.frame = e.frameAt(e.now())
	e.w, e.h = e.r.WindowSize()
	e.reg = registry.New(e.conf.Fps, e.frame, e.r, e.demux, e.log)

	e.loader.Start(ctx)
	if err := e.reload(ctx, true); err != nil {
		if e.conf.DryRun {
			return err
		}
		e.log.Error().Err(err).Msg("first load")
	}
	e.restoreSettings(ctx)
	return nil
}

func (e *Engine) reload(ctx context.Context, block bool) error {
	next, err := e.loader.TryFinish(ctx, block, e.reg, e.prog)
	if err != nil {
		return err
	}
	if next != nil {
		e.prog = next
		monitoring.Programs.Set(1)
		e.queue(event.ReloadEvent())
	}
	return nil
}

// Tick renders the current frame. It reports true when the user asked
// to quit.
func (e *Engine) Tick(ctx context.Context) (quit bool, err error) {
	if err = e.reload(ctx, false); err != nil {
		e.log.Error().Err(err).Msg("reload")
		if e.conf.DryRun {
			return false, err
		}
	}
	if quit = e.collect(ctx); quit {
		return true, nil
	}
	defer e.reg.SetLastFrameRendered(e.frame)

	if e.prog == nil {
		if e.conf.DryRun {
			return false, ErrNoProgram
		}
		return false, nil
	}

	start := time.Now()
	specs, err := e.prog.Calc(ctx, e.w, e.h, e.frame, e.conf.Fps, e.events)
	monitoring.Since(monitoring.CalcSeconds, start)
	e.events = e.events[:0]
	if err != nil {
		e.log.Error().Err(err).Msgf("calc of frame %d, program dropped", e.frame)
		e.drop(ctx)
		return false, err
	}

	if err = e.r.StartFrame(); err != nil {
		return false, err
	}
	hud, fired, sent, err := e.dispatch(ctx, specs)
	if len(hud) > 0 {
		if herr := e.r.DrawText(hud); herr != nil {
			e.log.Warn().Err(herr).Msg("hud")
		}
	}
	if ferr := e.r.FinishFrame(); ferr != nil {
		return false, ferr
	}
	e.rendered++
	monitoring.FramesRendered.Inc()

	if e.remote != nil {
		if berr := e.remote.Broadcast(remote.Frame{Frame: e.frame, Hud: hud, Events: fired, Midi: sent}); berr != nil {
			e.log.Warn().Err(berr).Msg("broadcast")
		}
	}
	e.queue(fired...)
	return false, err
}

// collect gathers window, MIDI, remote and log events for the next calc.
func (e *Engine) collect(ctx context.Context) (quit bool) {
	if win, ok := e.r.(gfx.Window); ok {
		in := win.Poll()
		if in.Quit {
			return true
		}
		for _, k := range in.Keys {
			e.queue(event.KeyEvent(k))
		}
		if in.Resized && in.W > 0 && in.H > 0 {
			if err := e.r.Resize(in.W, in.H); err != nil {
				e.log.Warn().Err(err).Msg("resize")
			} else {
				e.w, e.h = in.W, in.H
			}
		}
	}
	if e.midi != nil {
		e.queue(e.midi.Drain()...)
	}
	if e.remote != nil {
		for _, ev := range e.remote.Drain() {
			if ev.Reload && !e.conf.DryRun {
				e.loader.Start(ctx)
			}
			e.queue(ev)
		}
	}
	if e.logs != nil {
		for _, line := range e.logs.Drain() {
			if line != "" {
				e.queue(event.LogEvent(line))
			}
		}
	}
	return false
}

// dispatch draws specs in order. A failing spec drops the program and
// skips the rest.
func (e *Engine) dispatch(ctx context.Context, specs []renderspec.RenderSpec) (hud []string, fired []event.Event, sent []event.Midi, err error) {
	for _, spec := range specs {
		switch {
		case spec.HudText != nil:
			hud = append(hud, strings.Split(strings.TrimRight(spec.HudText.Text, "\n"), "\n")...)
		case spec.SendMidi != nil:
			sent = append(sent, spec.SendMidi.Event)
			if e.midi != nil {
				if merr := e.midi.Send(spec.SendMidi.Event); merr != nil {
					e.log.Warn().Err(merr).Msg("midi out")
				}
			}
		}

		if err = e.reg.Render(spec, e.frame, e.conf.DryRun, e.conf.ShaderDebug); err != nil {
			e.log.Error().Err(err).Msgf("render %v, program dropped", spec.Kind())
			e.drop(ctx)
			return
		}

		if spec.Mix == nil {
			continue
		}
		if e.conf.ShowMixTime {
			if t, terr := e.reg.PresentTimeForMix(spec.Mix.Name); terr == nil {
				hud = append(hud, spec.Mix.Name+"@"+Clock(t.Float64()))
			}
		}
		for _, in := range spec.Mix.Inputs {
			if in.Mixed {
				continue
			}
			if f, ok := e.reg.LastFrameEvent(in.Name); ok {
				fired = append(fired, event.FrameEvent(f))
			}
		}
	}
	return
}

// Clock formats seconds as hh:mm:ss.mmm.
func Clock(sec float64) string {
	ms := int64(sec*1000 + 0.5)
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}

// pace advances to the next frame boundary, skipping the frames that
// passed while this one was rendered.
func (e *Engine) pace(ctx context.Context) {
	if e.conf.DryRun {
		e.frame++
		return
	}
	if e.loader.Changed() && e.loader.Start(ctx) {
		e.log.Info().Msg("module changed, reloading")
	}
	now := e.now()
	e.frame += max(e.frameAt(now)-e.frame, 1)
	if d := e.frameTime(e.frame).Sub(now); d > 0 {
		e.sleep(d)
	}
}

func (e *Engine) drop(ctx context.Context) {
	if e.prog == nil {
		return
	}
	if err := e.prog.Close(ctx); err != nil {
		e.log.Warn().Err(err).Msg("program close")
	}
	e.prog = nil
	monitoring.Programs.Set(0)
}

func (e *Engine) restoreSettings(ctx context.Context) {
	if e.conf.SettingsFile == "" || e.prog == nil {
		return
	}
	data, err := os.ReadFile(e.conf.SettingsFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			e.log.Warn().Err(err).Msg("settings")
		}
		return
	}
	if err = e.prog.ImportSettings(ctx, data); err != nil {
		e.log.Warn().Err(err).Msg("settings import")
		return
	}
	e.log.Info().Msgf("restored %d settings bytes from %v", len(data), e.conf.SettingsFile)
}

func (e *Engine) saveSettings(ctx context.Context) {
	if e.conf.SettingsFile == "" || e.prog == nil {
		return
	}
	data, err := e.prog.ExtractSettings(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("settings extract")
		return
	}
	if err = vos.WriteFileAtomic(e.conf.SettingsFile, data, 0o644); err != nil {
		e.log.Warn().Err(err).Msg("settings write")
	}
}

func (e *Engine) shutdown(ctx context.Context) {
	e.saveSettings(ctx)
	e.drop(ctx)
	if e.reg != nil {
		if err := e.reg.Close(); err != nil {
			e.log.Warn().Err(err).Msg("registry close")
		}
	}
}
