package asset

import (
	"fmt"
	"slices"

	"github.com/goccy/go-json"
	"github.com/vizrig/vizrig/pkg/rational"
	"github.com/vizrig/vizrig/pkg/wire"
)

// TexInfo is a loaded image set.
type TexInfo struct {
	Name  string    `json:"name"`
	Count int       `json:"count"`
	Size  [2]uint32 `json:"size"`
}

// VidInfo is a probed video stream. Durations are in timebase units.
type VidInfo struct {
	Name           string      `json:"name"`
	Path           string      `json:"path"`
	Repeat         bool        `json:"repeat"`
	Codec          *string     `json:"codec"`
	Format         *string     `json:"format"`
	Opts           [][2]string `json:"opts"`
	Size           [2]uint32   `json:"size"`
	DurationTbuQ   [2]int64    `json:"duration_tbu_q"`
	TimebaseQ      [2]int64    `json:"timebase_q"`
	Realtime       bool        `json:"realtime"`
	HardwareDecode bool        `json:"hardware_decode"`
	SoftwareFilter bool        `json:"software_filter"`
}

func (v VidInfo) Timebase() rational.Rational { return rational.FromPair(v.TimebaseQ) }
func (v VidInfo) Duration() rational.Rational { return rational.FromPair(v.DurationTbuQ) }

func (v VidInfo) Equal(o VidInfo) bool {
	return v.Name == o.Name &&
		v.Path == o.Path &&
		v.Repeat == o.Repeat &&
		eqStr(v.Codec, o.Codec) &&
		eqStr(v.Format, o.Format) &&
		slices.Equal(v.Opts, o.Opts) &&
		v.Size == o.Size &&
		v.DurationTbuQ == o.DurationTbuQ &&
		v.TimebaseQ == o.TimebaseQ &&
		v.Realtime == o.Realtime &&
		v.HardwareDecode == o.HardwareDecode &&
		v.SoftwareFilter == o.SoftwareFilter
}

// MixerInfo mirrors the Mixer descriptor once registered.
type MixerInfo struct {
	Name    string  `json:"name"`
	Prelude *string `json:"prelude"`
	Header  *string `json:"header"`
	Body    *string `json:"body"`
	Width   uint32  `json:"width"`
	Height  uint32  `json:"height"`
}

func (m MixerInfo) Equal(o MixerInfo) bool {
	return m.Name == o.Name &&
		eqStr(m.Prelude, o.Prelude) &&
		eqStr(m.Header, o.Header) &&
		eqStr(m.Body, o.Body) &&
		m.Width == o.Width &&
		m.Height == o.Height
}

// BodyOrDefault returns the shader body, falling back to a passthrough.
func (m MixerInfo) BodyOrDefault() string { return strOr(m.Body, DefaultMixerBody) }

// NewMixerInfo resolves a Mixer descriptor. Mixers need no I/O to load.
func NewMixerInfo(m Mixer) MixerInfo {
	return MixerInfo{
		Name:    m.Name,
		Prelude: m.Prelude,
		Header:  m.Header,
		Body:    m.Body,
		Width:   m.Width,
		Height:  m.Height,
	}
}

// Info is the resolved counterpart of Asset: exactly one field is set.
type Info struct {
	Tex   *TexInfo
	Vid   *VidInfo
	Mixer *MixerInfo
}

func (i Info) Name() string {
	switch {
	case i.Tex != nil:
		return i.Tex.Name
	case i.Vid != nil:
		return i.Vid.Name
	case i.Mixer != nil:
		return i.Mixer.Name
	}
	return ""
}

// Equal reports structural equality, used to skip reloading unchanged assets.
func (i Info) Equal(o Info) bool {
	switch {
	case i.Tex != nil:
		return o.Tex != nil && *i.Tex == *o.Tex
	case i.Vid != nil:
		return o.Vid != nil && i.Vid.Equal(*o.Vid)
	case i.Mixer != nil:
		return o.Mixer != nil && i.Mixer.Equal(*o.Mixer)
	}
	return o.Tex == nil && o.Vid == nil && o.Mixer == nil
}

func (i Info) MarshalJSON() ([]byte, error) {
	switch {
	case i.Tex != nil:
		return wire.Tag("TexInfo", i.Tex)
	case i.Vid != nil:
		return wire.Tag("VidInfo", i.Vid)
	case i.Mixer != nil:
		return wire.Tag("VidMixerInfo", i.Mixer)
	}
	return nil, fmt.Errorf("%w: empty info", ErrInvalid)
}

func (i *Info) UnmarshalJSON(data []byte) error {
	*i = Info{}
	tag, body, err := wire.Untag(data)
	if err != nil {
		return err
	}
	switch tag {
	case "TexInfo":
		i.Tex = &TexInfo{}
		return json.Unmarshal(body, i.Tex)
	case "VidInfo":
		i.Vid = &VidInfo{}
		return json.Unmarshal(body, i.Vid)
	case "VidMixerInfo":
		i.Mixer = &MixerInfo{}
		return json.Unmarshal(body, i.Mixer)
	}
	return fmt.Errorf("%w: unknown info kind %q", ErrInvalid, tag)
}

func eqStr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
