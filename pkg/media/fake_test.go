package media

import (
	"errors"
	"image"
	"io"

	"github.com/vizrig/vizrig/pkg/gfx"
	"github.com/vizrig/vizrig/pkg/rational"
)

// clip is a scripted 30 fps source: timebase 1/15360, 512 ticks per
// frame, a key frame every second.
type clip struct {
	frames   int
	keyEvery int
	// pts overrides the frame timestamps when set
	pts []int64
	// fails makes the first Next calls fail
	fails int
	// durs overrides the frame durations when set
	durs []int64

	pos     int
	opened  int
	closed  int
	flushes int
	seeks   []int64
}

const (
	clipTicks = 512
	clipTb    = 15360
)

func newClip(seconds int) *clip { return &clip{frames: seconds * 30, keyEvery: 30} }

func (c *clip) Open(Params) (Source, error) {
	c.opened++
	c.pos = 0
	return c, nil
}

func (c *clip) Info() StreamInfo {
	return StreamInfo{
		W: 4, H: 2,
		TimeBase:  rational.New(1, clipTb),
		Duration:  int64(c.frames) * clipTicks,
		FrameRate: rational.Int(30),
	}
}

func (c *clip) Next() (Frame, error) {
	if c.fails > 0 {
		c.fails--
		return Frame{}, errors.New("corrupt packet")
	}
	if c.pos >= c.frames {
		return Frame{}, io.EOF
	}
	pts := int64(c.pos) * clipTicks
	if c.pts != nil {
		pts = c.pts[c.pos]
	}
	d := int64(clipTicks)
	if c.durs != nil {
		d = c.durs[c.pos]
	}
	c.pos++
	return Frame{Image: image.NewRGBA(image.Rect(0, 0, 4, 2)), PTS: pts, HasPTS: true, Duration: d}, nil
}

func (c *clip) Seek(ts int64) error {
	c.seeks = append(c.seeks, ts)
	frame := int(ts / clipTicks)
	c.pos = min(frame-frame%c.keyEvery, c.frames)
	return nil
}

func (c *clip) Flush() error { c.flushes++; return nil }
func (c *clip) Close() error { c.closed++; return nil }

type tex struct{ w, h uint32 }

func (t *tex) Size() (uint32, uint32) { return t.w, t.h }

type uploader struct {
	made, uploads, deleted int
}

func (u *uploader) NewTexture(w, h uint32) (gfx.Texture, error) {
	u.made++
	return &tex{w, h}, nil
}

func (u *uploader) Upload(gfx.Texture, image.Image) error { u.uploads++; return nil }
func (u *uploader) DeleteTexture(gfx.Texture) error       { u.deleted++; return nil }
