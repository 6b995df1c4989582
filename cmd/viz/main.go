package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/vizrig/vizrig/pkg/config"
	"github.com/vizrig/vizrig/pkg/engine"
	"github.com/vizrig/vizrig/pkg/fetch"
	"github.com/vizrig/vizrig/pkg/gfx"
	"github.com/vizrig/vizrig/pkg/gfx/opengl"
	"github.com/vizrig/vizrig/pkg/gfx/soft"
	"github.com/vizrig/vizrig/pkg/loader"
	"github.com/vizrig/vizrig/pkg/logger"
	"github.com/vizrig/vizrig/pkg/media/ffmpeg"
	"github.com/vizrig/vizrig/pkg/midi"
	"github.com/vizrig/vizrig/pkg/monitoring"
	vos "github.com/vizrig/vizrig/pkg/os"
	"github.com/vizrig/vizrig/pkg/remote"
	"github.com/vizrig/vizrig/pkg/thread"
)

var Version = "?"

func newLogger(conf config.Log, out *logger.Capture) *logger.Logger {
	if conf.Json {
		return logger.New(conf.Debug, out)
	}
	return logger.NewConsole(conf.Debug, "viz", conf.NoColor, out)
}

func newRenderer(conf *config.Config, log *logger.Logger) (gfx.Renderer, error) {
	if conf.Renderer.Backend == "soft" {
		return soft.New(conf.Viz.Width, conf.Viz.Height), nil
	}
	return opengl.New(opengl.Config{
		Title:  conf.Renderer.Title,
		W:      conf.Viz.Width,
		H:      conf.Viz.Height,
		Vsync:  conf.Renderer.Vsync,
		Hidden: conf.Viz.DryRun,
		Debug:  conf.Viz.ShaderDebug,
		Log:    log,
	})
}

func newFetcher(conf config.Assets, log *logger.Logger) (*fetch.Fetcher, func()) {
	gcs := fetch.NewGcs()
	f := fetch.New(conf.CacheDir, log).
		Register(fetch.NewHttp(), "http", "https").
		Register(gcs, "gs")
	if s := conf.S3; s.Endpoint != "" {
		s3, err := fetch.NewS3(s.Endpoint, s.Key, s.Secret, s.Region, s.Secure)
		if err != nil {
			log.Error().Err(err).Msg("s3 assets are disabled")
		} else {
			f.Register(s3, "s3")
		}
	}
	return f, func() { _ = gcs.Close() }
}

func run() int {
	conf, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	// everything logged also reaches the program as log events
	capture := logger.NewCapture(os.Stderr)
	log := newLogger(conf.Log, capture)
	log.Info().Msgf("vizrig %v", Version)
	log.Debug().Msgf("config %+v", conf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-vos.ExpectTermination()
		log.Info().Msg("Shutting down")
		cancel()
	}()

	if conf.Monitoring.IsEnabled() {
		mon, err := monitoring.New(conf.Monitoring, log)
		if err != nil {
			log.Error().Err(err).Msg("monitoring")
		} else {
			mon.Run()
			defer func() { _ = mon.Stop() }()
		}
	}

	fetcher, closeFetcher := newFetcher(conf.Assets, log)
	defer closeFetcher()

	demux := ffmpeg.New(conf.Decoder.HwDevice, log)
	ld := loader.New(loader.Config{
		Module:     conf.Viz.Module,
		PreopenDir: conf.Viz.PreopenDir,
		Fps:        conf.Viz.Fps,
		Width:      conf.Viz.Width,
		Height:     conf.Viz.Height,
		DryRun:     conf.Viz.DryRun,
		Stdout:     os.Stdout,
		Stderr:     capture,
	}, demux, fetcher, log)
	if !conf.Viz.DryRun {
		if err := ld.Watch(ctx); err != nil {
			log.Warn().Err(err).Msg("module watch, polling instead")
		}
	}

	hub := midi.Open(conf.Midi, log)
	defer hub.Close()

	var rc *remote.Server
	if conf.Remote.Address != "" {
		if rc, err = remote.New(conf.Remote.Address, log); err != nil {
			log.Error().Err(err).Msg("remote control")
			rc = nil
		} else {
			rc.Run()
			defer func() { _ = rc.Stop() }()
		}
	}

	// the window and the GL context live on the main thread
	err = thread.CallErr(func() error {
		r, err := newRenderer(conf, log)
		if err != nil {
			return fmt.Errorf("renderer: %w", err)
		}
		defer func() {
			if err := r.Destroy(); err != nil {
				log.Warn().Err(err).Msg("renderer destroy")
			}
		}()

		e := engine.New(engine.Config{
			Fps:          conf.Viz.Fps,
			DryRun:       conf.Viz.DryRun,
			Frames:       conf.Viz.Frames,
			ShowMixTime:  conf.Viz.ShowMixTime,
			ShaderDebug:  conf.Viz.ShaderDebug,
			SettingsFile: conf.Viz.SettingsFile,
		}, r, demux, ld, log).WithMidi(hub).WithLogs(capture)
		if rc != nil {
			e.WithRemote(rc)
		}
		if err := e.Run(ctx); err != nil {
			return err
		}
		log.Info().Msgf("rendered %d frames", e.Rendered())
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("stopped")
		return 1
	}
	return 0
}

func main() {
	code := 0
	thread.Main(func() { code = run() })
	os.Exit(code)
}
