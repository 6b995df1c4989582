// Package sandbox runs the visual program, a WASI module that exchanges
// JSON buffers with the host through the "host" import module.
package sandbox

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/goccy/go-json"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/vizrig/vizrig/pkg/asset"
	"github.com/vizrig/vizrig/pkg/event"
	"github.com/vizrig/vizrig/pkg/logger"
	"github.com/vizrig/vizrig/pkg/renderspec"
)

// GuestDir is where the preopened host directory shows up in the guest.
const GuestDir = "/tmp/viz"

var (
	// ErrStatus is a non zero status returned by the program.
	ErrStatus = errors.New("program status")
	ErrExport = errors.New("missing export")
)

type Config struct {
	// PreopenDir is mounted at GuestDir, created when missing.
	PreopenDir string
	Stdout     io.Writer
	Stderr     io.Writer
}

// Program is one instance of the compiled module.
// Calls are serialized, the guest is single threaded.
type Program struct {
	rt  wazero.Runtime
	mod api.Module
	log *logger.Logger

	calc, assets, save, restore api.Function

	mu sync.Mutex
	// buffers shared with the guest through the host functions
	out, settings, info, events []byte
}

// Open compiles and instantiates the module in wasm.
func Open(ctx context.Context, wasm []byte, conf Config, log *logger.Logger) (*Program, error) {
	p := &Program{
		rt:  wazero.NewRuntime(ctx),
		log: log.Extend(log.With().Str("m", "Sandbox")),
	}
	if err := p.init(ctx, wasm, conf); err != nil {
		_ = p.rt.Close(ctx)
		return nil, err
	}
	return p, nil
}

// OpenFile reads and opens a module file.
func OpenFile(ctx context.Context, path string, conf Config, log *logger.Logger) (*Program, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Open(ctx, wasm, conf, log)
}

func (p *Program) init(ctx context.Context, wasm []byte, conf Config) error {
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, p.rt); err != nil {
		return fmt.Errorf("wasi: %w", err)
	}
	if err := p.hostModule(ctx); err != nil {
		return fmt.Errorf("host module: %w", err)
	}
	compiled, err := p.rt.CompileModule(ctx, wasm)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}

	fs := wazero.NewFSConfig()
	if conf.PreopenDir != "" {
		if err := os.MkdirAll(conf.PreopenDir, 0o755); err != nil {
			return err
		}
		fs = fs.WithDirMount(conf.PreopenDir, GuestDir)
	}
	mc := wazero.NewModuleConfig().
		WithFSConfig(fs).
		WithStdout(orDiscard(conf.Stdout)).
		WithStderr(orDiscard(conf.Stderr)).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader).
		WithStartFunctions("_initialize")
	if p.mod, err = p.rt.InstantiateModule(ctx, compiled, mc); err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}

	for name, fn := range map[string]*api.Function{
		"calculate_internal":  &p.calc,
		"asset_list_internal": &p.assets,
		"save_settings":       &p.save,
		"restore_settings":    &p.restore,
	} {
		if *fn = p.mod.ExportedFunction(name); *fn == nil {
			return fmt.Errorf("%w: %v", ErrExport, name)
		}
	}
	return nil
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

func (p *Program) hostModule(ctx context.Context) error {
	// take copies a guest buffer into dst
	take := func(dst *[]byte) func(context.Context, api.Module, uint32, uint32) {
		return func(_ context.Context, m api.Module, ptr, n uint32) {
			b, ok := m.Memory().Read(ptr, n)
			if !ok {
				panic(fmt.Errorf("read %d bytes at %d out of range", n, ptr))
			}
			*dst = append((*dst)[:0], b...)
		}
	}
	// give copies src into guest memory
	give := func(src *[]byte) func(context.Context, api.Module, uint32) {
		return func(_ context.Context, m api.Module, ptr uint32) {
			if !m.Memory().Write(ptr, *src) {
				panic(fmt.Errorf("write %d bytes at %d out of range", len(*src), ptr))
			}
		}
	}
	_, err := p.rt.NewHostModuleBuilder("host").
		NewFunctionBuilder().WithFunc(take(&p.out)).Export("send_bytes").
		NewFunctionBuilder().WithFunc(take(&p.settings)).Export("send_settings").
		NewFunctionBuilder().WithFunc(give(&p.settings)).Export("recv_settings").
		NewFunctionBuilder().WithFunc(func() uint64 { return uint64(len(p.settings)) }).Export("recv_settings_size").
		NewFunctionBuilder().WithFunc(give(&p.info)).Export("recv_gfx_info").
		NewFunctionBuilder().WithFunc(func() uint32 { return uint32(len(p.info)) }).Export("gfx_info_serialized_size").
		NewFunctionBuilder().WithFunc(give(&p.events)).Export("recv_reg_events").
		NewFunctionBuilder().WithFunc(func() uint32 { return uint32(len(p.events)) }).Export("reg_events_serialized_size").
		Instantiate(ctx)
	return err
}

func status(res []uint64) error {
	if len(res) == 0 {
		return nil
	}
	if s := renderspec.Status(api.DecodeU32(res[0])); s != renderspec.StatusNone {
		return fmt.Errorf("%w: %v", ErrStatus, s)
	}
	return nil
}

// AssetList asks the program what it needs at fps.
func (p *Program) AssetList(ctx context.Context, fps int64) ([]asset.Asset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = p.out[:0]
	res, err := p.assets.Call(ctx, api.EncodeI64(fps))
	if err != nil {
		return nil, fmt.Errorf("asset list: %w", err)
	}
	if err := status(res); err != nil {
		return nil, fmt.Errorf("asset list: %w", err)
	}
	var assets []asset.Asset
	if err := json.Unmarshal(p.out, &assets); err != nil {
		return nil, fmt.Errorf("asset list: %w", err)
	}
	return assets, nil
}

// Calc runs the program for one frame.
func (p *Program) Calc(ctx context.Context, w, h uint32, frame, fps int64, events []event.Event) ([]renderspec.RenderSpec, error) {
	if events == nil {
		events = []event.Event{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.events, p.out = data, p.out[:0]
	res, err := p.calc.Call(ctx, api.EncodeU32(w), api.EncodeU32(h), api.EncodeI64(frame), api.EncodeI64(fps))
	if err != nil {
		return nil, fmt.Errorf("calc: %w", err)
	}
	if err := status(res); err != nil {
		return nil, fmt.Errorf("calc: %w", err)
	}
	specs, err := renderspec.Decode(p.out)
	if err != nil {
		return nil, fmt.Errorf("calc output: %w", err)
	}
	return specs, nil
}

// ExtractSettings has the program serialize its adjustable state.
func (p *Program) ExtractSettings(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.save.Call(ctx); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	return append([]byte(nil), p.settings...), nil
}

// ImportSettings hands a blob from ExtractSettings to the program.
func (p *Program) ImportSettings(ctx context.Context, b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = append(p.settings[:0], b...)
	if _, err := p.restore.Call(ctx); err != nil {
		return fmt.Errorf("restore settings: %w", err)
	}
	return nil
}

// SetInfo publishes the resolved assets by name.
func (p *Program) SetInfo(info map[string]asset.Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.info = data
	p.mu.Unlock()
	return nil
}

func (p *Program) Close(ctx context.Context) error { return p.rt.Close(ctx) }
