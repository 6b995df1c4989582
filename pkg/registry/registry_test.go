package registry

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/vizrig/vizrig/pkg/asset"
	"github.com/vizrig/vizrig/pkg/gfx/soft"
	"github.com/vizrig/vizrig/pkg/logger"
	"github.com/vizrig/vizrig/pkg/media"
	"github.com/vizrig/vizrig/pkg/rational"
	"github.com/vizrig/vizrig/pkg/renderspec"
)

const fps = 24

func mixerInfo(name string, w uint32) asset.Info {
	info := asset.NewMixerInfo(asset.Mixer{Name: name, Width: w, Height: 4})
	return asset.Info{Mixer: &info}
}

func images(t *testing.T, name string) (asset.Info, *media.TextureSet) {
	t.Helper()
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	f, err := os.Create(filepath.Join(dir, "a.png"))
	if err != nil {
		t.Fatal(err)
	}
	if err = png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	ts, err := media.LoadTextures(asset.Texture{Name: name, Globs: []string{filepath.Join(dir, "*.png")}}, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	info := ts.Info()
	return asset.Info{Tex: &info}, ts
}

func newRegistry() *Registry { return New(fps, 100, soft.New(16, 16), nil, logger.Nop()) }

func mix(name string, inputs ...renderspec.MixInput) renderspec.RenderSpec {
	return renderspec.RenderSpec{Mix: &renderspec.Mix{Name: name, Inputs: inputs}}
}

func TestAdd(t *testing.T) {
	g := newRegistry()
	g.Add(mixerInfo("m", 4), nil)
	first := g.entries["m"]

	g.Add(mixerInfo("m", 4), nil)
	if g.entries["m"] != first {
		t.Error("equal info replaced the entry")
	}

	g.Add(mixerInfo("m", 8), nil)
	if g.entries["m"] == first || g.entries["m"].mixer.Info().Width != 8 {
		t.Error("changed info was not replaced")
	}

	texInfo, ts := images(t, "bg")
	g.Add(texInfo, ts)
	if !reflect.DeepEqual(g.Names(), []string{"bg", "m"}) {
		t.Errorf("names %v", g.Names())
	}
	if info := g.Info(); len(info) != 2 || info["bg"].Tex == nil || info["bg"].Tex.Count != 1 {
		t.Errorf("info %+v", info)
	}

	g.Remove("m")
	g.Remove("never there")
	if !reflect.DeepEqual(g.Names(), []string{"bg"}) {
		t.Errorf("names after remove %v", g.Names())
	}
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
	if len(g.Names()) != 0 {
		t.Error("close kept entries")
	}
}

func TestMixFramesToMix(t *testing.T) {
	g := newRegistry()
	g.Add(mixerInfo("m", 4), nil)
	if g.LastFrameRendered() != 99 {
		t.Fatalf("a new registry presented %d", g.LastFrameRendered())
	}

	if err := g.Render(mix("m"), 100, false, false); err != nil {
		t.Fatal(err)
	}
	g.SetLastFrameRendered(100)
	if err := g.Render(mix("m"), 103, false, false); err != nil {
		t.Fatal(err)
	}
	present, err := g.PresentTimeForMix("m")
	if err != nil {
		t.Fatal(err)
	}
	// one frame, then three at once
	if present.Cmp(rational.New(4, fps)) != 0 {
		t.Errorf("present time %v", present)
	}

	// nothing to mix for a frame already presented
	g.SetLastFrameRendered(103)
	if err := g.Render(mix("m"), 103, false, false); err != nil {
		t.Fatal(err)
	}
	if p, _ := g.PresentTimeForMix("m"); p.Cmp(present) != 0 {
		t.Errorf("present time moved to %v", p)
	}
}

func TestRenderErrors(t *testing.T) {
	texInfo, ts := images(t, "bg")
	tests := []struct {
		name string
		spec renderspec.RenderSpec
	}{
		{name: "missing mixer", spec: mix("nope")},
		{name: "missing input", spec: mix("m", renderspec.VideoInput("nope"))},
		{name: "texture as mixed input", spec: mix("m", renderspec.MixedInput("bg"))},
		{name: "mixer as video input", spec: mix("m", renderspec.VideoInput("m"))},
		{name: "send to missing mixer", spec: renderspec.RenderSpec{SendCmd: &renderspec.SendCmd{Mix: "nope", Name: "x", Value: renderspec.Float(1)}}},
		{name: "seek a mixer", spec: renderspec.RenderSpec{SeekVid: &renderspec.SeekVid{Target: "m", Sec: 1}}},
		{name: "reset missing", spec: renderspec.RenderSpec{Reset: &renderspec.Reset{Target: "nope"}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g := newRegistry()
			g.Add(mixerInfo("m", 4), nil)
			g.Add(texInfo, ts)

			if err := g.Render(test.spec, 100, false, false); err != nil {
				t.Errorf("logged errors should not return, got %v", err)
			}

			defer func() {
				if recover() == nil {
					t.Error("dry run did not panic")
				}
			}()
			_ = g.Render(test.spec, 100, true, false)
		})
	}
}

func TestRenderNoops(t *testing.T) {
	g := newRegistry()
	g.Add(mixerInfo("m", 4), nil)
	texInfo, ts := images(t, "bg")
	g.Add(texInfo, ts)

	for _, spec := range []renderspec.RenderSpec{
		{},
		{HudText: &renderspec.HudText{Text: "hi"}},
		{SendMidi: &renderspec.SendMidi{}},
		{SendCmd: &renderspec.SendCmd{Mix: "m", Name: "undeclared", Value: renderspec.Float(1)}},
		{Reset: &renderspec.Reset{Target: "m"}},
		{Reset: &renderspec.Reset{Target: "bg"}},
		mix("m", renderspec.VideoInput("bg"), renderspec.MixedInput("m")),
	} {
		if err := g.Render(spec, 100, true, false); err != nil {
			t.Errorf("%v: %v", spec.Kind(), err)
		}
	}
}

func TestLookups(t *testing.T) {
	g := newRegistry()
	if _, err := g.PresentTimeForMix("m"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, ok := g.LastFrameEvent("clip"); ok {
		t.Error("frame event for a missing stream")
	}
	g.Add(mixerInfo("m", 4), nil)
	if _, ok := g.LastFrameEvent("m"); ok {
		t.Error("frame event for a mixer")
	}
}
