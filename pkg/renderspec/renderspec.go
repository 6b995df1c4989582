// Package renderspec is the closed vocabulary of per-frame operations a
// visual program returns to the host.
package renderspec

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/vizrig/vizrig/pkg/event"
	"github.com/vizrig/vizrig/pkg/wire"
)

// Status is the per-call result code reported by the program.
type Status uint32

const (
	StatusNone         Status = 0
	StatusAssetDataErr Status = 1
	StatusUnknown      Status = 255
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "ok"
	case StatusAssetDataErr:
		return "asset data error"
	}
	return fmt.Sprintf("unknown error (%d)", uint32(s))
}

// Rect is x, y, w, h in pixels.
type Rect struct {
	X, Y int32
	W, H uint32
}

func (r Rect) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int64{int64(r.X), int64(r.Y), int64(r.W), int64(r.H)})
}

func (r *Rect) UnmarshalJSON(data []byte) error {
	var v [4]int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Rect{X: int32(v[0]), Y: int32(v[1]), W: uint32(v[2]), H: uint32(v[3])}
	return nil
}

// CopyEx places a mixer output onto the display surface.
type CopyEx struct {
	Name     string    `json:"name"`
	Idx      int       `json:"idx"`
	Src      *Rect     `json:"src"`
	Dst      *Rect     `json:"dst"`
	Rotation float64   `json:"rotation"`
	Center   *[2]int32 `json:"center"`
	FlipH    bool      `json:"flip_h"`
	FlipV    bool      `json:"flip_v"`
	ColorMod *[4]uint8 `json:"color_mod"`
}

// Value is a uniform payload: exactly one field is meaningful, selected by Kind.
type Value struct {
	Kind   ValueKind
	Float  float32
	Int    int32
	Uint   uint32
	Floats []float32
	Ints   []int32
	Uints  []uint32
}

type ValueKind uint8

const (
	ValueFloat ValueKind = iota
	ValueInteger
	ValueUnsigned
	ValueVector
	ValueIVector
	ValueUVector
)

var kindNames = [...]string{"Float", "Integer", "Unsigned", "Vector", "IVector", "UVector"}

func (k ValueKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Invalid"
}

func Float(f float32) Value     { return Value{Kind: ValueFloat, Float: f} }
func Integer(i int32) Value     { return Value{Kind: ValueInteger, Int: i} }
func Unsigned(u uint32) Value   { return Value{Kind: ValueUnsigned, Uint: u} }
func Vector(v ...float32) Value { return Value{Kind: ValueVector, Floats: v} }
func IVector(v ...int32) Value  { return Value{Kind: ValueIVector, Ints: v} }
func UVector(v ...uint32) Value { return Value{Kind: ValueUVector, Uints: v} }

// Len is the number of scalars carried.
func (v Value) Len() int {
	switch v.Kind {
	case ValueVector:
		return len(v.Floats)
	case ValueIVector:
		return len(v.Ints)
	case ValueUVector:
		return len(v.Uints)
	}
	return 1
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueFloat:
		return wire.Tag("Float", v.Float)
	case ValueInteger:
		return wire.Tag("Integer", v.Int)
	case ValueUnsigned:
		return wire.Tag("Unsigned", v.Uint)
	case ValueVector:
		return wire.Tag("Vector", nonNil(v.Floats))
	case ValueIVector:
		return wire.Tag("IVector", nonNil(v.Ints))
	case ValueUVector:
		return wire.Tag("UVector", nonNil(v.Uints))
	}
	return nil, fmt.Errorf("%w: value kind %d", wire.ErrVariant, v.Kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	*v = Value{}
	tag, body, err := wire.Untag(data)
	if err != nil {
		return err
	}
	switch tag {
	case "Float":
		v.Kind = ValueFloat
		return json.Unmarshal(body, &v.Float)
	case "Integer":
		v.Kind = ValueInteger
		return json.Unmarshal(body, &v.Int)
	case "Unsigned":
		v.Kind = ValueUnsigned
		return json.Unmarshal(body, &v.Uint)
	case "Vector":
		v.Kind = ValueVector
		return json.Unmarshal(body, &v.Floats)
	case "IVector":
		v.Kind = ValueIVector
		return json.Unmarshal(body, &v.Ints)
	case "UVector":
		v.Kind = ValueUVector
		return json.Unmarshal(body, &v.Uints)
	}
	return fmt.Errorf("%w: unknown value %q", wire.ErrVariant, tag)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// SendCmd updates a named uniform of a mixer.
type SendCmd struct {
	Mix   string `json:"mix"`
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

type HudText struct {
	Text string `json:"text"`
}

// MixInput names either a decoded stream or another mixer's last output.
type MixInput struct {
	Name  string
	Mixed bool
}

func VideoInput(name string) MixInput { return MixInput{Name: name} }
func MixedInput(name string) MixInput { return MixInput{Name: name, Mixed: true} }

func (m MixInput) MarshalJSON() ([]byte, error) {
	if m.Mixed {
		return wire.Tag("Mixed", m.Name)
	}
	return wire.Tag("Video", m.Name)
}

func (m *MixInput) UnmarshalJSON(data []byte) error {
	tag, body, err := wire.Untag(data)
	if err != nil {
		return err
	}
	switch tag {
	case "Video", "Mixed":
		m.Mixed = tag == "Mixed"
		return json.Unmarshal(body, &m.Name)
	}
	return fmt.Errorf("%w: unknown mix input %q", wire.ErrVariant, tag)
}

func (m MixInput) String() string {
	if m.Mixed {
		return "Mixed(" + m.Name + ")"
	}
	return "Video(" + m.Name + ")"
}

// Mix composites inputs through the named mixer and optionally shows it.
type Mix struct {
	Name      string     `json:"name"`
	Inputs    []MixInput `json:"inputs"`
	Target    *CopyEx    `json:"target"`
	Lut       *string    `json:"lut"`
	NoDisplay bool       `json:"no_display"`
}

type SeekVid struct {
	Target string  `json:"target"`
	Sec    float64 `json:"sec"`
	Exact  bool    `json:"exact"`
}

type Reset struct {
	Target string `json:"target"`
}

type SendMidi struct {
	Event event.Midi `json:"event"`
}

// RenderSpec is one of the operations above; all nil means None.
type RenderSpec struct {
	SendCmd  *SendCmd
	HudText  *HudText
	Mix      *Mix
	SeekVid  *SeekVid
	Reset    *Reset
	SendMidi *SendMidi
}

func (r RenderSpec) IsNone() bool {
	return r.SendCmd == nil && r.HudText == nil && r.Mix == nil &&
		r.SeekVid == nil && r.Reset == nil && r.SendMidi == nil
}

// Kind names the variant for logs and metrics.
func (r RenderSpec) Kind() string {
	switch {
	case r.SendCmd != nil:
		return "SendCmd"
	case r.HudText != nil:
		return "HudText"
	case r.Mix != nil:
		return "Mix"
	case r.SeekVid != nil:
		return "SeekVid"
	case r.Reset != nil:
		return "Reset"
	case r.SendMidi != nil:
		return "SendMidi"
	}
	return "None"
}

func (r RenderSpec) String() string {
	b, err := r.MarshalJSON()
	if err != nil {
		return r.Kind()
	}
	return string(b)
}

func (r RenderSpec) MarshalJSON() ([]byte, error) {
	switch {
	case r.SendCmd != nil:
		return wire.Tag("SendCmd", r.SendCmd)
	case r.HudText != nil:
		return wire.Tag("HudText", r.HudText)
	case r.Mix != nil:
		return wire.Tag("Mix", r.Mix)
	case r.SeekVid != nil:
		return wire.Tag("SeekVid", r.SeekVid)
	case r.Reset != nil:
		return wire.Tag("Reset", r.Reset)
	case r.SendMidi != nil:
		return wire.Tag("SendMidi", r.SendMidi)
	}
	return wire.Unit("None")
}

func (r *RenderSpec) UnmarshalJSON(data []byte) error {
	*r = RenderSpec{}
	tag, body, err := wire.Untag(data)
	if err != nil {
		return err
	}
	switch tag {
	case "None":
		return nil
	case "SendCmd":
		r.SendCmd = &SendCmd{}
		return json.Unmarshal(body, r.SendCmd)
	case "HudText":
		r.HudText = &HudText{}
		return json.Unmarshal(body, r.HudText)
	case "Mix":
		r.Mix = &Mix{}
		return json.Unmarshal(body, r.Mix)
	case "SeekVid":
		r.SeekVid = &SeekVid{}
		return json.Unmarshal(body, r.SeekVid)
	case "Reset":
		r.Reset = &Reset{}
		return json.Unmarshal(body, r.Reset)
	case "SendMidi":
		r.SendMidi = &SendMidi{}
		return json.Unmarshal(body, r.SendMidi)
	}
	return fmt.Errorf("%w: unknown render spec %q", wire.ErrVariant, tag)
}

// Decode parses a program's output buffer.
func Decode(data []byte) ([]RenderSpec, error) {
	var specs []RenderSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, err
	}
	return specs, nil
}
