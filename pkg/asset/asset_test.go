package asset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
)

func TestAssetWireForm(t *testing.T) {
	in := `[
		"Missing",
		{"Tex":{"name":"bg","globs":["a/*.png"]}},
		{"Vid":{"name":"clip1","path":"a.mp4","repeat":true,"realtime":false,"resolution":[640,360],
			"tbq":[1,30],"codec":null,"format":null,"opts":[["rtbufsize","1M"]],
			"hardware_decode":false,"software_filter":false}},
		{"VidMixer":{"name":"m1","prelude":null,"header":null,"body":"color = vec4(1.0);","width":64,"height":32}}
	]`
	var assets []Asset
	if err := json.Unmarshal([]byte(in), &assets); err != nil {
		t.Fatal(err)
	}
	if len(assets) != 4 {
		t.Fatalf("got %d assets", len(assets))
	}
	if !assets[0].IsMissing() || assets[0].Name() != "missing" {
		t.Errorf("first asset should be missing, got %+v", assets[0])
	}
	if assets[1].Texture == nil || assets[1].Texture.Globs[0] != "a/*.png" {
		t.Errorf("bad texture %+v", assets[1])
	}
	v := assets[2].Video
	if v == nil || !v.Repeat || v.Codec != nil || v.Opts[0] != [2]string{"rtbufsize", "1M"} {
		t.Errorf("bad video %+v", assets[2])
	}
	if m := assets[3].Mixer; m == nil || *m.Body != "color = vec4(1.0);" || m.Prelude != nil {
		t.Errorf("bad mixer %+v", assets[3])
	}

	out, err := json.Marshal(assets[3])
	if err != nil {
		t.Fatal(err)
	}
	var back Asset
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatal(err)
	}
	if back.Key() != assets[3].Key() {
		t.Errorf("key changed across the wire: %s vs %s", back.Key(), assets[3].Key())
	}
}

func TestUnknownVariant(t *testing.T) {
	var a Asset
	if err := json.Unmarshal([]byte(`{"Audio":{}}`), &a); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestVideoValidate(t *testing.T) {
	if err := (Video{Name: "cam", Realtime: true, Repeat: true}).Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("realtime+repeat must be invalid, got %v", err)
	}
	if err := (Video{Name: "cam", Realtime: true}).Validate(); err != nil {
		t.Errorf("unexpected %v", err)
	}
}

func TestInfoEqual(t *testing.T) {
	a := Info{Vid: &VidInfo{Name: "v", Path: "a.mp4", Codec: Str("h264"), TimebaseQ: [2]int64{1, 30}}}
	b := Info{Vid: &VidInfo{Name: "v", Path: "a.mp4", Codec: Str("h264"), TimebaseQ: [2]int64{1, 30}}}
	c := Info{Vid: &VidInfo{Name: "v", Path: "b.mp4", Codec: Str("h264"), TimebaseQ: [2]int64{1, 30}}}
	if !a.Equal(b) {
		t.Errorf("same info should be equal")
	}
	if a.Equal(c) {
		t.Errorf("different path should not be equal")
	}
	if a.Equal(Info{Tex: &TexInfo{Name: "v"}}) {
		t.Errorf("different kinds should not be equal")
	}
}

func TestVideoPaths(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"b.mp4", "a.mp4"} {
		if err := os.WriteFile(filepath.Join(dir, f), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	tests := []struct {
		name    string
		pattern string
		want    int
	}{
		{name: "single", pattern: filepath.Join(dir, "a.*"), want: 1},
		{name: "many", pattern: filepath.Join(dir, "*.mp4"), want: 2},
		{name: "raw", pattern: "/dev/video0", want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VideoPaths(tt.pattern); len(got) != tt.want {
				t.Errorf("VideoPaths(%v) = %v", tt.pattern, got)
			}
		})
	}
	if got := VideoPaths(filepath.Join(dir, "*.mp4")); got[0] != filepath.Join(dir, "a.mp4") {
		t.Errorf("matches should be sorted, got %v", got)
	}
}
