package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
)

type Config struct {
	Viz        Viz
	Renderer   Renderer
	Decoder    Decoder
	Midi       Midi
	Assets     Assets
	Remote     Remote
	Monitoring Monitoring
	Log        Log
}

type Viz struct {
	Module       string
	Width        uint32 `default:"540"`
	Height       uint32 `default:"960"`
	Fps          int64  `default:"24"`
	DryRun       bool
	Frames       uint64
	ShowMixTime  bool
	ShaderDebug  bool
	PreopenDir   string `default:"/tmp/viz"`
	SettingsFile string
}

type Renderer struct {
	Backend string `default:"gl"`
	Vsync   bool   `default:"true"`
	Title   string `default:"vizrig"`
}

type Decoder struct {
	HwDevice string `default:"videotoolbox"`
}

type Midi struct {
	Inputs  []string
	Outputs []string
}

type Assets struct {
	CacheDir string
	S3       S3
}

type S3 struct {
	Endpoint string
	Key      string
	Secret   string
	Region   string
	Secure   bool `default:"true"`
}

type Remote struct {
	Address string
}

type Monitoring struct {
	Port             int `default:"6601"`
	URLPrefix        string
	MetricEnabled    bool `json:"metric_enabled"`
	ProfilingEnabled bool `json:"profiling_enabled"`
}

func (c *Monitoring) IsEnabled() bool { return c.MetricEnabled || c.ProfilingEnabled }

type Log struct {
	Debug   bool
	NoColor bool
	Json    bool
}

var (
	ErrNoModule   = errors.New("no module path")
	ErrBadBackend = errors.New("unknown renderer backend")
)

// Load reads the config file, then the VIZ_ environment, then args.
// A single positional argument is taken as the module path.
func Load(args []string) (*Config, error) {
	var conf Config
	if err := LoadConfig(&conf, confPath(args)); err != nil {
		return nil, err
	}
	fs := pflag.NewFlagSet("viz", pflag.ContinueOnError)
	conf.WithFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		conf.Viz.Module = fs.Arg(0)
	}
	if err := conf.normalize(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// confPath picks -c/--conf out of args ahead of the real parse
// so the file values become flag defaults.
func confPath(args []string) string {
	var path string
	fs := pflag.NewFlagSet("conf", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}
	fs.StringVarP(&path, "conf", "c", "", "")
	_ = fs.Parse(args)
	return path
}

func (c *Config) WithFlags(fs *pflag.FlagSet) {
	fs.StringP("conf", "c", "", "Directory with a custom config.yaml")
	fs.StringVarP(&c.Viz.Module, "module", "m", c.Viz.Module, "Visual program (.wasm)")
	fs.Uint32Var(&c.Viz.Width, "width", c.Viz.Width, "Canvas width")
	fs.Uint32Var(&c.Viz.Height, "height", c.Viz.Height, "Canvas height")
	fs.Int64Var(&c.Viz.Fps, "fps", c.Viz.Fps, "Frames per second")
	fs.BoolVar(&c.Viz.DryRun, "dry-run", c.Viz.DryRun, "Render without a window and fail on any error")
	fs.Uint64Var(&c.Viz.Frames, "frames", c.Viz.Frames, "Stop after this many frames (0 runs forever)")
	fs.BoolVar(&c.Viz.ShowMixTime, "show-mix-time", c.Viz.ShowMixTime, "Show mixer present times on the HUD")
	fs.BoolVar(&c.Viz.ShaderDebug, "shader-debug", c.Viz.ShaderDebug, "Renderer shader debug")
	fs.StringVar(&c.Viz.PreopenDir, "preopen-dir", c.Viz.PreopenDir, "Host dir mounted at /tmp/viz for the program")
	fs.StringVar(&c.Viz.SettingsFile, "settings", c.Viz.SettingsFile, "Persist program settings in this file")
	fs.StringVar(&c.Renderer.Backend, "renderer", c.Renderer.Backend, "Renderer backend: [gl, soft]")
	fs.StringSliceVar(&c.Midi.Inputs, "midi-in", c.Midi.Inputs, "MIDI input port name filters")
	fs.StringSliceVar(&c.Midi.Outputs, "midi-out", c.Midi.Outputs, "MIDI output port name filters")
	fs.StringVar(&c.Remote.Address, "remote", c.Remote.Address, "Websocket control address, e.g. :9100")
	fs.BoolVar(&c.Monitoring.MetricEnabled, "monitoring.metric", c.Monitoring.MetricEnabled, "Enable prometheus metric")
	fs.BoolVar(&c.Monitoring.ProfilingEnabled, "monitoring.pprof", c.Monitoring.ProfilingEnabled, "Enable golang pprof")
	fs.IntVar(&c.Monitoring.Port, "monitoring.port", c.Monitoring.Port, "Monitoring server port")
	fs.BoolVarP(&c.Log.Debug, "debug", "d", c.Log.Debug, "Debug logging")
	fs.BoolVar(&c.Log.NoColor, "no-color", c.Log.NoColor, "Disable colored log output")
	fs.BoolVar(&c.Log.Json, "log-json", c.Log.Json, "JSON log output")
}

func (c *Config) normalize() error {
	if c.Viz.Module == "" {
		return ErrNoModule
	}
	switch c.Renderer.Backend {
	case "gl", "soft":
	default:
		return fmt.Errorf("%w: %q", ErrBadBackend, c.Renderer.Backend)
	}
	if c.Viz.Fps <= 0 {
		return fmt.Errorf("fps must be positive, got %d", c.Viz.Fps)
	}
	if c.Viz.Width == 0 || c.Viz.Height == 0 {
		return fmt.Errorf("bad canvas size %dx%d", c.Viz.Width, c.Viz.Height)
	}
	if c.Viz.DryRun && c.Viz.Frames == 0 {
		c.Viz.Frames = 1
	}
	if c.Assets.CacheDir == "" {
		c.Assets.CacheDir = filepath.Join(os.TempDir(), "vizrig")
	}
	for _, p := range []*string{&c.Viz.Module, &c.Viz.PreopenDir, &c.Viz.SettingsFile, &c.Assets.CacheDir} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}
