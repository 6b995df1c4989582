package opengl

import (
	"fmt"

	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vizrig/vizrig/pkg/event"
	"github.com/vizrig/vizrig/pkg/gfx"
	"github.com/vizrig/vizrig/pkg/logger"
)

type Config struct {
	Title  string
	W, H   uint32
	Vsync  bool
	Hidden bool
	Debug  bool
	Log    *logger.Logger
}

type window struct {
	w   *sdl.Window
	ctx sdl.GLContext
}

func newWindow(cfg Config) (*window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return nil, fmt.Errorf("sdl: %w", err)
	}
	for _, a := range [][2]int{
		{sdl.GL_CONTEXT_PROFILE_MASK, sdl.GL_CONTEXT_PROFILE_CORE},
		{sdl.GL_CONTEXT_MAJOR_VERSION, 3},
		{sdl.GL_CONTEXT_MINOR_VERSION, 3},
		{sdl.GL_DOUBLEBUFFER, 1},
	} {
		if err := sdl.GLSetAttribute(sdl.GLattr(a[0]), a[1]); err != nil {
			return nil, fmt.Errorf("gl attr: %w", err)
		}
	}

	flags := uint32(sdl.WINDOW_OPENGL | sdl.WINDOW_RESIZABLE | sdl.WINDOW_ALLOW_HIGHDPI)
	if cfg.Hidden {
		flags |= sdl.WINDOW_HIDDEN
	}
	w, err := sdl.CreateWindow(cfg.Title, sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		int32(cfg.W), int32(cfg.H), flags)
	if err != nil {
		return nil, fmt.Errorf("window: %w", err)
	}

	ctx, err := w.GLCreateContext()
	if err != nil {
		err1 := w.Destroy()
		return nil, fmt.Errorf("gl context: %w, destroy err: %w", err, err1)
	}
	if err = w.GLMakeCurrent(ctx); err != nil {
		return nil, fmt.Errorf("gl bind: %w", err)
	}
	interval := 0
	if cfg.Vsync {
		interval = 1
	}
	_ = sdl.GLSetSwapInterval(interval)

	if err = gl.InitWithProcAddrFunc(sdl.GLGetProcAddress); err != nil {
		return nil, fmt.Errorf("gl init: %w", err)
	}
	return &window{w: w, ctx: ctx}, nil
}

func (w *window) size() (uint32, uint32) {
	dw, dh := w.w.GLGetDrawableSize()
	return uint32(dw), uint32(dh)
}

func (w *window) swap() { w.w.GLSwap() }

func (w *window) destroy() error {
	sdl.GLDeleteContext(w.ctx)
	err := w.w.Destroy()
	sdl.Quit()
	return err
}

// Poll drains the SDL queue. Escape counts as quit.
func (r *Renderer) Poll() (in gfx.Input) {
	for e := sdl.PollEvent(); e != nil; e = sdl.PollEvent() {
		switch e := e.(type) {
		case *sdl.QuitEvent:
			in.Quit = true
		case *sdl.KeyboardEvent:
			sym := e.Keysym
			if sym.Sym == sdl.K_ESCAPE {
				in.Quit = true
				continue
			}
			in.Keys = append(in.Keys, event.Key{
				Code:      uint32(sym.Sym),
				Shift:     sym.Mod&sdl.KMOD_SHIFT != 0,
				Alt:       sym.Mod&sdl.KMOD_ALT != 0,
				Ctl:       sym.Mod&sdl.KMOD_CTRL != 0,
				Down:      e.Type == sdl.KEYDOWN,
				Repeat:    e.Repeat != 0,
				Timestamp: int64(e.Timestamp),
			})
		case *sdl.WindowEvent:
			if e.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
				in.Resized = true
				in.W, in.H = r.win.size()
			}
		}
	}
	return in
}

// GLInfo is version, vendor, renderer and glsl version strings.
func GLInfo() (version, vendor, renderer, glsl string) {
	return gl.GoStr(gl.GetString(gl.VERSION)),
		gl.GoStr(gl.GetString(gl.VENDOR)),
		gl.GoStr(gl.GetString(gl.RENDERER)),
		gl.GoStr(gl.GetString(gl.SHADING_LANGUAGE_VERSION))
}
