package mixer

import (
	"errors"
	"image"
	"io"
	"testing"
	"time"

	"github.com/vizrig/vizrig/pkg/asset"
	"github.com/vizrig/vizrig/pkg/gfx"
	"github.com/vizrig/vizrig/pkg/gfx/soft"
	"github.com/vizrig/vizrig/pkg/logger"
	"github.com/vizrig/vizrig/pkg/media"
	"github.com/vizrig/vizrig/pkg/rational"
)

// source yields good frames, then fails with err or io.EOF.
type source struct {
	good int
	err  error
	pos  int
}

func (s *source) Open(media.Params) (media.Source, error) { return s, nil }

func (s *source) Info() media.StreamInfo {
	return media.StreamInfo{W: 4, H: 4, TimeBase: rational.New(1, 15360), FrameRate: rational.Int(30)}
}

func (s *source) Next() (media.Frame, error) {
	if s.pos < s.good {
		s.pos++
		return media.Frame{Image: image.NewRGBA(image.Rect(0, 0, 4, 4)), PTS: int64(s.pos-1) * 512, HasPTS: true, Duration: 512}, nil
	}
	if s.err != nil {
		return media.Frame{}, s.err
	}
	return media.Frame{}, io.EOF
}

func (s *source) Seek(int64) error { s.pos = 0; return nil }
func (s *source) Flush() error     { return nil }
func (s *source) Close() error     { return nil }

func newStream(src *source, repeat bool) *media.Stream {
	return media.NewStream(asset.VidInfo{
		Name:         "v",
		Path:         "v.mp4",
		Repeat:       repeat,
		Size:         [2]uint32{4, 4},
		DurationTbuQ: [2]int64{15360, 1},
		TimebaseQ:    [2]int64{1, 15360},
	}, src, logger.Nop())
}

// mixWithin fails the test instead of hanging when Mix never returns.
func mixWithin(t *testing.T, m *Mixer, r gfx.Renderer, inputs []Input, p Params) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- m.Mix(r, inputs, p) }()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("mix did not return")
		return nil
	}
}

func TestMixEmptyInput(t *testing.T) {
	for _, repeat := range []bool{true, false} {
		r := soft.New(32, 32)
		m := newMixer(asset.MixerInfo{})
		err := mixWithin(t, m, r, []Input{{Video: newStream(&source{}, repeat)}}, params(1, 1))
		if !errors.Is(err, ErrNoFrame) {
			t.Errorf("repeat %v: got %v, want %v", repeat, err, ErrNoFrame)
		}
		if len(r.Calls) != 0 {
			t.Errorf("repeat %v: rendered %d times", repeat, len(r.Calls))
		}
	}
}

func TestMixInputFailsMidway(t *testing.T) {
	r := soft.New(32, 32)
	m := newMixer(asset.MixerInfo{})
	in := []Input{{Video: newStream(&source{good: 2, err: errors.New("corrupt packet")}, true)}}

	if err := mixWithin(t, m, r, in, params(1, 1)); err != nil {
		t.Fatal(err)
	}
	// three frames later the third decode runs out of retries
	err := mixWithin(t, m, r, in, params(3, 4))
	if err == nil || errors.Is(err, ErrNoFrame) {
		t.Fatalf("got %v, want a decode error", err)
	}
	if len(r.Calls) != 1 {
		t.Errorf("rendered %d times, want 1", len(r.Calls))
	}
}

// blank advances its clock without ever producing a picture.
type blank struct{ video }

func (b *blank) DecodeFrame(media.Uploader) error {
	b.duration = b.ticks
	b.decodes++
	return nil
}

func (b *blank) LastFrame() gfx.Texture { return nil }

func TestMixCatchUpIsBounded(t *testing.T) {
	r := soft.New(32, 32)
	m := newMixer(asset.MixerInfo{})
	in := &blank{video: *newVideo("a", 512)}

	if err := mixWithin(t, m, r, []Input{{Video: in}}, params(1, 1)); err != nil {
		t.Fatal(err)
	}
	if in.decodes != maxCatchUp {
		t.Errorf("decoded %d times, want %d", in.decodes, maxCatchUp)
	}
	if len(r.Calls) != 0 {
		t.Errorf("rendered %d times", len(r.Calls))
	}
}
