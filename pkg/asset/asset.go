// Package asset describes the media a visual program declares (image sets,
// video streams and shader mixers) and the info resolved when they load.
package asset

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/vizrig/vizrig/pkg/wire"
)

// DefaultMixerBody samples the first input unchanged.
const DefaultMixerBody = "color = texture(src_tex0, src_coord0);"

var ErrInvalid = errors.New("invalid asset")

// Texture is a set of still images matched by file globs.
type Texture struct {
	Name  string   `json:"name"`
	Globs []string `json:"globs"`
}

// Video is a decodable stream. Path may be a glob that must match exactly
// one file; a pattern matching nothing is used verbatim.
type Video struct {
	Name           string      `json:"name"`
	Path           string      `json:"path"`
	Repeat         bool        `json:"repeat"`
	Realtime       bool        `json:"realtime"`
	Resolution     [2]uint32   `json:"resolution"`
	Tbq            [2]int64    `json:"tbq"`
	Codec          *string     `json:"codec"`
	Format         *string     `json:"format"`
	Opts           [][2]string `json:"opts"`
	HardwareDecode bool        `json:"hardware_decode"`
	SoftwareFilter bool        `json:"software_filter"`
}

// Validate checks the descriptor invariants.
func (v Video) Validate() error {
	if v.Realtime && v.Repeat {
		return fmt.Errorf("%w: video %v cannot be realtime and repeating", ErrInvalid, v.Name)
	}
	return nil
}

// Mixer is a procedural shader node that composites its inputs.
type Mixer struct {
	Name    string  `json:"name"`
	Prelude *string `json:"prelude"`
	Header  *string `json:"header"`
	Body    *string `json:"body"`
	Width   uint32  `json:"width"`
	Height  uint32  `json:"height"`
}

// Asset is one of Missing (all nil), Texture, Video or Mixer.
type Asset struct {
	Texture *Texture
	Video   *Video
	Mixer   *Mixer
}

func TextureAsset(t Texture) Asset { return Asset{Texture: &t} }
func VideoAsset(v Video) Asset     { return Asset{Video: &v} }
func MixerAsset(m Mixer) Asset     { return Asset{Mixer: &m} }

func (a Asset) IsMissing() bool { return a.Texture == nil && a.Video == nil && a.Mixer == nil }

func (a Asset) Name() string {
	switch {
	case a.Texture != nil:
		return a.Texture.Name
	case a.Video != nil:
		return a.Video.Name
	case a.Mixer != nil:
		return a.Mixer.Name
	}
	return "missing"
}

// Key is a canonical form of the descriptor usable as a map key.
func (a Asset) Key() string {
	b, err := json.Marshal(a)
	if err != nil {
		return a.Name()
	}
	return string(b)
}

func (a Asset) MarshalJSON() ([]byte, error) {
	switch {
	case a.Texture != nil:
		return wire.Tag("Tex", a.Texture)
	case a.Video != nil:
		return wire.Tag("Vid", a.Video)
	case a.Mixer != nil:
		return wire.Tag("VidMixer", a.Mixer)
	}
	return wire.Unit("Missing")
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	*a = Asset{}
	tag, body, err := wire.Untag(data)
	if err != nil {
		return err
	}
	switch tag {
	case "Missing":
		return nil
	case "Tex":
		a.Texture = &Texture{}
		return json.Unmarshal(body, a.Texture)
	case "Vid":
		a.Video = &Video{}
		return json.Unmarshal(body, a.Video)
	case "VidMixer":
		a.Mixer = &Mixer{}
		return json.Unmarshal(body, a.Mixer)
	}
	return fmt.Errorf("%w: unknown asset kind %q", ErrInvalid, tag)
}

// Str returns a pointer to s for the optional descriptor fields.
func Str(s string) *string { return &s }

func strOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
