package config

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	conf, err := Load([]string{"prog.wasm"})
	if err != nil {
		t.Fatal(err)
	}
	if conf.Viz.Module != "prog.wasm" {
		t.Errorf("module = %q", conf.Viz.Module)
	}
	if conf.Viz.Width != 540 || conf.Viz.Height != 960 || conf.Viz.Fps != 24 {
		t.Errorf("canvas = %dx%d@%d", conf.Viz.Width, conf.Viz.Height, conf.Viz.Fps)
	}
	if conf.Viz.PreopenDir != "/tmp/viz" || conf.Renderer.Backend != "gl" {
		t.Errorf("defaults not applied: %+v", conf)
	}
	if conf.Assets.CacheDir == "" {
		t.Errorf("no cache dir")
	}
}

func TestLoadFlags(t *testing.T) {
	conf, err := Load([]string{"--module", "a.wasm", "--fps", "30", "--dry-run", "--renderer", "soft",
		"--midi-in", "nano,launch"})
	if err != nil {
		t.Fatal(err)
	}
	if conf.Viz.Fps != 30 || !conf.Viz.DryRun || conf.Renderer.Backend != "soft" {
		t.Errorf("flags not applied: %+v", conf.Viz)
	}
	if conf.Viz.Frames != 1 {
		t.Errorf("dry run frames = %d, want 1", conf.Viz.Frames)
	}
	if len(conf.Midi.Inputs) != 2 || conf.Midi.Inputs[1] != "launch" {
		t.Errorf("midi inputs = %v", conf.Midi.Inputs)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("VIZ_VIZ_FPS", "60")
	conf, err := Load([]string{"x.wasm"})
	if err != nil {
		t.Fatal(err)
	}
	if conf.Viz.Fps != 60 {
		t.Errorf("fps = %d, want 60", conf.Viz.Fps)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{name: "no module", args: nil, want: ErrNoModule},
		{name: "bad backend", args: []string{"x.wasm", "--renderer", "vulkan"}, want: ErrBadBackend},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Load(test.args); !errors.Is(err, test.want) {
				t.Errorf("err = %v, want %v", err, test.want)
			}
		})
	}
}

func TestConfPath(t *testing.T) {
	dir := filepath.Join("x", "y")
	if got := confPath([]string{"--fps", "3", "-c", dir, "a.wasm"}); got != dir {
		t.Errorf("conf path = %q", got)
	}
}
