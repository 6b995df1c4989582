// Package loader compiles the visual program in the background and swaps
// it in between frames together with the assets it declares.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vizrig/vizrig/pkg/asset"
	"github.com/vizrig/vizrig/pkg/event"
	"github.com/vizrig/vizrig/pkg/fetch"
	"github.com/vizrig/vizrig/pkg/logger"
	"github.com/vizrig/vizrig/pkg/media"
	"github.com/vizrig/vizrig/pkg/monitoring"
	"github.com/vizrig/vizrig/pkg/renderspec"
	"github.com/vizrig/vizrig/pkg/sandbox"
	"github.com/vizrig/vizrig/pkg/uid"
)

var ErrDryCalc = errors.New("first calc failed")

// Program is the loaded module as the frame loop sees it.
type Program interface {
	Calc(ctx context.Context, w, h uint32, frame, fps int64, events []event.Event) ([]renderspec.RenderSpec, error)
	ExtractSettings(ctx context.Context) ([]byte, error)
	ImportSettings(ctx context.Context, b []byte) error
	Close(ctx context.Context) error
}

type module interface {
	Program
	SetInfo(info map[string]asset.Info) error
}

// Target receives the resolved assets, see registry.Registry.
type Target interface {
	Names() []string
	Add(info asset.Info, images *media.TextureSet)
	Remove(name string)
}

type Config struct {
	Module     string
	PreopenDir string
	Fps        int64
	Width      uint32
	Height     uint32
	DryRun     bool
	// program output
	Stdout io.Writer
	Stderr io.Writer
}

// resolved is what an asset descriptor turned into.
type resolved struct {
	info   asset.Info
	images *media.TextureSet
}

type result struct {
	id      uid.ID
	prog    Program
	modTime time.Time
	assets  map[string]resolved
	cache   map[string]resolved
	err     error
}

type Loader struct {
	conf  Config
	demux media.Demuxer
	fetch *fetch.Fetcher
	log   *logger.Logger

	// open makes the program and lists its assets, swapped in tests
	open func(ctx context.Context) (module, []asset.Asset, error)

	mu       sync.Mutex
	inFlight bool
	done     chan result

	// only touched by whoever holds the in-flight load
	cache   map[string]resolved
	modTime time.Time

	watch watchState
}

func New(conf Config, d media.Demuxer, f *fetch.Fetcher, log *logger.Logger) *Loader {
	l := &Loader{
		conf:  conf,
		demux: d,
		fetch: f,
		log:   log.Extend(log.With().Str("m", "Loader")),
		done:  make(chan result, 1),
		cache: make(map[string]resolved),
	}
	l.open = l.openModule
	return l
}

// Start begins a load unless one is already running.
func (l *Loader) Start(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight {
		return false
	}
	l.inFlight = true
	l.watch.clear()
	go func() { l.done <- l.load(ctx) }()
	return true
}

// InFlight tells if a load has started and was not finished yet.
func (l *Loader) InFlight() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

// TryFinish installs a finished load into t, carrying the settings of old
// over and closing it. Without block it returns nil, nil while the load
// is still running. A failed load leaves t and old untouched.
func (l *Loader) TryFinish(ctx context.Context, block bool, t Target, old Program) (Program, error) {
	if !l.InFlight() {
		return nil, nil
	}
	var r result
	if block {
		r = <-l.done
	} else {
		select {
		case r = <-l.done:
		default:
			return nil, nil
		}
	}
	defer func() {
		l.mu.Lock()
		l.inFlight = false
		l.mu.Unlock()
	}()
	// a broken module is not retried until it changes again
	if !r.modTime.IsZero() {
		l.modTime = r.modTime
	}

	if r.err != nil {
		monitoring.Reloads.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("load %v: %w", r.id, r.err)
	}
	if err := l.install(ctx, r, t, old); err != nil {
		monitoring.Reloads.WithLabelValues("failed").Inc()
		_ = r.prog.Close(ctx)
		return nil, fmt.Errorf("load %v: %w", r.id, err)
	}
	monitoring.Reloads.WithLabelValues("ok").Inc()
	l.log.Info().Str("id", r.id.String()).Msgf("loaded %v with %d assets", l.conf.Module, len(r.assets))
	return r.prog, nil
}

func (l *Loader) install(ctx context.Context, r result, t Target, old Program) error {
	if old != nil {
		settings, err := old.ExtractSettings(ctx)
		if err != nil {
			l.log.Warn().Err(err).Msg("settings were not saved")
		} else if err = r.prog.ImportSettings(ctx, settings); err != nil {
			l.log.Warn().Err(err).Msg("settings were not restored")
		}
	}
	if _, err := r.prog.Calc(ctx, l.conf.Width, l.conf.Height, 1, l.conf.Fps, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrDryCalc, err)
	}

	for _, name := range apply(t, r.assets) {
		l.log.Debug().Msgf("dropped %v", name)
	}
	l.cache = r.cache
	if old != nil {
		if err := old.Close(ctx); err != nil {
			l.log.Warn().Err(err).Msg("old program close")
		}
	}
	return nil
}

// apply adds the assets to t and removes everything else it holds.
func apply(t Target, assets map[string]resolved) (removed []string) {
	for _, name := range t.Names() {
		if _, ok := assets[name]; !ok {
			removed = append(removed, name)
		}
	}
	for _, a := range assets {
		t.Add(a.info, a.images)
	}
	for _, name := range removed {
		t.Remove(name)
	}
	return
}

func (l *Loader) load(ctx context.Context) (r result) {
	r.id = uid.New()
	l.log.Info().Str("id", r.id.String()).Msgf("loading %v", l.conf.Module)

	st, err := os.Stat(l.conf.Module)
	if err != nil {
		r.err = err
		return
	}
	r.modTime = st.ModTime()

	prog, assets, err := l.open(ctx)
	if err != nil {
		r.err = err
		return
	}
	r.assets, r.cache, err = l.resolve(ctx, assets)
	if err == nil {
		infos := make(map[string]asset.Info, len(r.assets))
		for name, a := range r.assets {
			infos[name] = a.info
		}
		err = prog.SetInfo(infos)
	}
	if err != nil {
		_ = prog.Close(ctx)
		r.err = err
		return
	}
	r.prog = prog
	return
}

func (l *Loader) openModule(ctx context.Context) (module, []asset.Asset, error) {
	prog, err := sandbox.OpenFile(ctx, l.conf.Module, sandbox.Config{
		PreopenDir: l.conf.PreopenDir,
		Stdout:     l.conf.Stdout,
		Stderr:     l.conf.Stderr,
	}, l.log)
	if err != nil {
		return nil, nil, err
	}
	assets, err := prog.AssetList(ctx, l.conf.Fps)
	if err != nil {
		_ = prog.Close(ctx)
		return nil, nil, err
	}
	return prog, assets, nil
}

// resolve turns descriptors into info by name, reusing what the previous
// load resolved for an identical descriptor. Failed assets are skipped
// unless in a dry run.
func (l *Loader) resolve(ctx context.Context, assets []asset.Asset) (byName, cache map[string]resolved, err error) {
	byName = make(map[string]resolved, len(assets))
	cache = make(map[string]resolved, len(assets))
	for _, a := range assets {
		if a.IsMissing() {
			l.log.Warn().Msg("program declared a missing asset")
			continue
		}
		key := a.Key()
		res, ok := l.cache[key]
		if !ok {
			if res, err = l.resolveOne(ctx, a); err != nil {
				if l.conf.DryRun {
					return nil, nil, fmt.Errorf("asset %v: %w", a.Name(), err)
				}
				l.log.Error().Err(err).Msgf("asset %v skipped", a.Name())
				continue
			}
		}
		byName[a.Name()] = res
		cache[key] = res
	}
	return byName, cache, nil
}

func (l *Loader) resolveOne(ctx context.Context, a asset.Asset) (resolved, error) {
	switch {
	case a.Texture != nil:
		t := *a.Texture
		if l.fetch != nil {
			globs, err := l.fetch.GetAll(ctx, t.Globs)
			if err != nil {
				return resolved{}, err
			}
			t.Globs = globs
		}
		ts, err := media.LoadTextures(t, l.log)
		if err != nil {
			return resolved{}, err
		}
		info := ts.Info()
		return resolved{info: asset.Info{Tex: &info}, images: ts}, nil
	case a.Video != nil:
		v := *a.Video
		if l.fetch != nil {
			path, err := l.fetch.Get(ctx, v.Path)
			if err != nil {
				return resolved{}, err
			}
			v.Path = path
		}
		info, err := media.Probe(l.demux, v)
		if err != nil {
			return resolved{}, err
		}
		return resolved{info: asset.Info{Vid: &info}}, nil
	case a.Mixer != nil:
		info := asset.NewMixerInfo(*a.Mixer)
		return resolved{info: asset.Info{Mixer: &info}}, nil
	}
	return resolved{}, asset.ErrInvalid
}
