// Package media decodes video streams and image sets into renderer textures
// and keeps the presentation clock of every stream.
package media

import (
	"errors"
	"image"

	"github.com/vizrig/vizrig/pkg/asset"
	"github.com/vizrig/vizrig/pkg/gfx"
	"github.com/vizrig/vizrig/pkg/rational"
)

var (
	ErrSourceOpen = errors.New("source open")
	// ErrAgain means the decoder needs more input before the next frame.
	ErrAgain = errors.New("no frame ready yet")
)

// Params select and configure a source.
type Params struct {
	Path           string
	Codec          *string
	Format         *string
	Opts           [][2]string
	HardwareDecode bool
	SoftwareFilter bool
}

func ParamsOf(v asset.VidInfo) Params {
	return Params{
		Path:           v.Path,
		Codec:          v.Codec,
		Format:         v.Format,
		Opts:           v.Opts,
		HardwareDecode: v.HardwareDecode,
		SoftwareFilter: v.SoftwareFilter,
	}
}

// StreamInfo describes the selected video stream.
// Duration is in TimeBase units, 0 when unknown.
type StreamInfo struct {
	W, H      uint32
	TimeBase  rational.Rational
	Duration  int64
	FrameRate rational.Rational
}

// Frame is a decoded picture. PTS and Duration are in TimeBase units.
type Frame struct {
	Image    image.Image
	PTS      int64
	HasPTS   bool
	Duration int64
}

// Source is an opened stream.
// Next returns io.EOF at the end of the stream and ErrAgain when it
// consumed input without producing a frame.
type Source interface {
	Info() StreamInfo
	Next() (Frame, error)
	// Seek moves to the closest key frame at or before ts.
	Seek(ts int64) error
	// Flush drops frames buffered in the decoder.
	Flush() error
	Close() error
}

// Demuxer is the codec capability.
type Demuxer interface {
	Open(p Params) (Source, error)
}

// Uploader is the part of the renderer decoding needs.
type Uploader interface {
	NewTexture(w, h uint32) (gfx.Texture, error)
	Upload(t gfx.Texture, img image.Image) error
	DeleteTexture(t gfx.Texture) error
}
