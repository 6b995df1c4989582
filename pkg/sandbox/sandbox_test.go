package sandbox

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/vizrig/vizrig/pkg/asset"
	"github.com/vizrig/vizrig/pkg/event"
	"github.com/vizrig/vizrig/pkg/logger"
)

const (
	specsJSON  = `[{"HudText":{"text":"hi"}},"None"]`
	assetsJSON = `[{"VidMixer":{"name":"m","prelude":null,"header":null,"body":null,"width":4,"height":4}}]`

	specsAt   = 16
	assetsAt  = 512
	scratchAt = 2048
	sizeAt    = 4000
	echoAt    = 8192
)

// wasm encoding helpers

func uleb(v uint64) (b []byte) {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

func sleb(v int64) (b []byte) {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

func cat(parts ...[]byte) []byte { return bytes.Join(parts, nil) }

func vec(items ...[]byte) []byte { return cat(uleb(uint64(len(items))), cat(items...)) }

func name(s string) []byte { return cat(uleb(uint64(len(s))), []byte(s)) }

func section(id byte, content []byte) []byte {
	return cat([]byte{id}, uleb(uint64(len(content))), content)
}

func i32(v int64) []byte { return cat([]byte{0x41}, sleb(v)) }

func call(f uint64) []byte { return cat([]byte{0x10}, uleb(f)) }

func code(expr ...[]byte) []byte {
	body := cat([]byte{0x00}, cat(expr...), []byte{0x0b})
	return cat(uleb(uint64(len(body))), body)
}

func data(at int64, s string) []byte {
	return cat([]byte{0x00}, i32(at), []byte{0x0b}, name(s))
}

// guestModule builds a program that answers with fixed JSON, echoes
// the host buffers back and keeps settings in its own memory.
func guestModule() []byte {
	const (
		sendBytes = iota
		sendSettings
		recvSettingsSize
		recvSettings
		regEventsSize
		recvRegEvents
		gfxInfoSize
		recvGfxInfo
		calc
		assetList
		save
		restore
		echoEvents
		echoInfo
	)
	types := vec(
		[]byte{0x60, 0x02, 0x7f, 0x7f, 0x00},                   // 0 (i32 i32)
		[]byte{0x60, 0x04, 0x7f, 0x7f, 0x7e, 0x7e, 0x01, 0x7f}, // 1 (i32 i32 i64 i64) i32
		[]byte{0x60, 0x01, 0x7e, 0x01, 0x7f},                   // 2 (i64) i32
		[]byte{0x60, 0x00, 0x00},                               // 3 ()
		[]byte{0x60, 0x00, 0x01, 0x7e},                         // 4 () i64
		[]byte{0x60, 0x01, 0x7f, 0x00},                         // 5 (i32)
		[]byte{0x60, 0x00, 0x01, 0x7f},                         // 6 () i32
	)
	imp := func(n string, t byte) []byte { return cat(name("host"), name(n), []byte{0x00, t}) }
	imports := vec(
		imp("send_bytes", 0),
		imp("send_settings", 0),
		imp("recv_settings_size", 4),
		imp("recv_settings", 5),
		imp("reg_events_serialized_size", 6),
		imp("recv_reg_events", 5),
		imp("gfx_info_serialized_size", 6),
		imp("recv_gfx_info", 5),
	)
	funcs := vec([]byte{1}, []byte{2}, []byte{3}, []byte{3}, []byte{3}, []byte{3})
	memory := vec([]byte{0x00, 0x01})
	exp := func(n string, kind byte, idx uint64) []byte { return cat(name(n), []byte{kind}, uleb(idx)) }
	exports := vec(
		exp("memory", 0x02, 0),
		exp("calculate_internal", 0x00, calc),
		exp("asset_list_internal", 0x00, assetList),
		exp("save_settings", 0x00, save),
		exp("restore_settings", 0x00, restore),
		exp("echo_events", 0x00, echoEvents),
		exp("echo_info", 0x00, echoInfo),
	)
	codes := vec(
		// status 1 for negative frames, the fixed specs otherwise
		code(
			[]byte{0x20, 0x02, 0x42, 0x00, 0x53, 0x04, 0x7f},
			i32(1),
			[]byte{0x05},
			i32(specsAt), i32(int64(len(specsJSON))), call(sendBytes), i32(0),
			[]byte{0x0b},
		),
		code(i32(assetsAt), i32(int64(len(assetsJSON))), call(sendBytes), i32(0)),
		code(i32(scratchAt), i32(sizeAt), []byte{0x29, 0x03, 0x00, 0xa7}, call(sendSettings)),
		code(i32(sizeAt), call(recvSettingsSize), []byte{0x37, 0x03, 0x00}, i32(scratchAt), call(recvSettings)),
		code(i32(echoAt), call(recvRegEvents), i32(echoAt), call(regEventsSize), call(sendBytes)),
		code(i32(echoAt), call(recvGfxInfo), i32(echoAt), call(gfxInfoSize), call(sendBytes)),
	)
	datas := vec(data(specsAt, specsJSON), data(assetsAt, assetsJSON))

	return cat(
		[]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00},
		section(1, types),
		section(2, imports),
		section(3, funcs),
		section(5, memory),
		section(7, exports),
		section(10, codes),
		section(11, datas),
	)
}

func open(t *testing.T) *Program {
	t.Helper()
	p, err := Open(context.Background(), guestModule(), Config{PreopenDir: t.TempDir()}, logger.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestAssetList(t *testing.T) {
	p := open(t)
	assets, err := p.AssetList(context.Background(), 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(assets) != 1 || assets[0].Mixer == nil || assets[0].Name() != "m" {
		t.Fatalf("unexpected assets %+v", assets)
	}
}

func TestCalc(t *testing.T) {
	p := open(t)
	ctx := context.Background()

	events := []event.Event{event.ReloadEvent(), event.LogEvent("x")}
	specs, err := p.Calc(ctx, 640, 360, 1, 30, events)
	if err != nil {
		t.Fatal(err)
	}
	if len(specs) != 2 || specs[0].HudText == nil || specs[0].HudText.Text != "hi" || !specs[1].IsNone() {
		t.Errorf("unexpected specs %+v", specs)
	}

	want, _ := json.Marshal(events)
	if _, err := p.mod.ExportedFunction("echo_events").Call(ctx); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p.out, want) {
		t.Errorf("guest saw events %s, want %s", p.out, want)
	}

	if _, err := p.Calc(ctx, 640, 360, -1, 30, nil); !errors.Is(err, ErrStatus) {
		t.Errorf("expected a status error, got %v", err)
	}
}

func TestSetInfo(t *testing.T) {
	p := open(t)
	info := map[string]asset.Info{
		"m": {Mixer: &asset.MixerInfo{Name: "m", Width: 4, Height: 4}},
	}
	if err := p.SetInfo(info); err != nil {
		t.Fatal(err)
	}
	if _, err := p.mod.ExportedFunction("echo_info").Call(context.Background()); err != nil {
		t.Fatal(err)
	}
	var back map[string]asset.Info
	if err := json.Unmarshal(p.out, &back); err != nil {
		t.Fatalf("guest saw %s: %v", p.out, err)
	}
	if !back["m"].Equal(info["m"]) {
		t.Errorf("info changed on the way: %+v", back)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	p := open(t)
	ctx := context.Background()

	empty, err := p.ExtractSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("fresh program should have no settings, got %q", empty)
	}

	if err := p.ImportSettings(ctx, []byte(`{"gain":0.5}`)); err != nil {
		t.Fatal(err)
	}
	p.settings = nil
	got, err := p.ExtractSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"gain":0.5}` {
		t.Errorf("settings %q", got)
	}
}

func TestMissingExports(t *testing.T) {
	empty := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	_, err := Open(context.Background(), empty, Config{}, logger.Nop())
	if !errors.Is(err, ErrExport) {
		t.Errorf("expected ErrExport, got %v", err)
	}
}
