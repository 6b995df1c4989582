package mixer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/vizrig/vizrig/pkg/gfx"
)

// ErrBadDeclaration marks a //!VAR or //!STR line that was skipped.
var ErrBadDeclaration = errors.New("bad declaration")

const (
	varPrefix = "//!VAR "
	strPrefix = "//!STR "
	// strLen is the fixed size of the int array a //!STR declares
	strLen = 128
)

// varShape is rows, columns and the minimum array length of a declared type.
type varShape struct {
	kind   gfx.Kind
	dimV   int
	dimM   int
	array  bool
	minLen int
}

var shapes = map[string]varShape{
	"float":  {kind: gfx.KindFloat, dimV: 1, dimM: 1},
	"int":    {kind: gfx.KindInt, dimV: 1, dimM: 1},
	"uint":   {kind: gfx.KindUint, dimV: 1, dimM: 1},
	"vec2":   {kind: gfx.KindFloat, dimV: 2, dimM: 1},
	"vec3":   {kind: gfx.KindFloat, dimV: 3, dimM: 1},
	"vec4":   {kind: gfx.KindFloat, dimV: 4, dimM: 1},
	"ivec2":  {kind: gfx.KindInt, dimV: 2, dimM: 1},
	"ivec3":  {kind: gfx.KindInt, dimV: 3, dimM: 1},
	"ivec4":  {kind: gfx.KindInt, dimV: 4, dimM: 1},
	"uvec2":  {kind: gfx.KindUint, dimV: 2, dimM: 1},
	"uvec3":  {kind: gfx.KindUint, dimV: 3, dimM: 1},
	"uvec4":  {kind: gfx.KindUint, dimV: 4, dimM: 1},
	"mat2":   {kind: gfx.KindFloat, dimV: 2, dimM: 2},
	"mat3":   {kind: gfx.KindFloat, dimV: 3, dimM: 3},
	"mat4":   {kind: gfx.KindFloat, dimV: 4, dimM: 4},
	"mat2x3": {kind: gfx.KindFloat, dimV: 3, dimM: 2},
	"mat2x4": {kind: gfx.KindFloat, dimV: 4, dimM: 2},
	"mat3x2": {kind: gfx.KindFloat, dimV: 2, dimM: 3},
	"mat3x4": {kind: gfx.KindFloat, dimV: 4, dimM: 3},
	"mat4x2": {kind: gfx.KindFloat, dimV: 2, dimM: 4},
	"mat4x3": {kind: gfx.KindFloat, dimV: 3, dimM: 4},
	"int[]":  {kind: gfx.KindInt, dimV: 1, dimM: 1, array: true, minLen: 2},
	"vec2[]": {kind: gfx.KindFloat, dimV: 2, dimM: 1, array: true, minLen: 4},
}

// declarations collects uniforms and string constants from shader text.
// Lines it cannot use are reported and skipped.
type declarations struct {
	vars     []gfx.Var
	addendum strings.Builder
	skipped  []error
}

func (d *declarations) parse(src string) {
	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimRight(line, "\r")
		var err error
		switch {
		case strings.HasPrefix(line, varPrefix):
			err = d.parseVar(line)
		case strings.HasPrefix(line, strPrefix):
			err = d.parseStr(line)
		}
		if err != nil {
			d.skipped = append(d.skipped, fmt.Errorf("%w: %v: %q", ErrBadDeclaration, err, line))
		}
	}
}

func (d *declarations) parseVar(line string) error {
	parts := strings.Fields(line)
	if len(parts) < 3 {
		return errors.New("missing name")
	}
	typ, name, values := parts[1], parts[2], parts[3:]
	shape, ok := shapes[typ]
	if !ok {
		return fmt.Errorf("unknown type %v", typ)
	}
	es := shape.dimV * shape.dimM
	n := len(values)
	switch {
	case !shape.array && n != es:
		return fmt.Errorf("%v takes %d values, got %d", typ, es, n)
	case shape.array && n%es != 0:
		return fmt.Errorf("%v takes a multiple of %d values, got %d", typ, es, n)
	}
	n = max(n, shape.minLen, es)

	v := gfx.Var{Name: name, Kind: shape.kind, DimV: shape.dimV, DimM: shape.dimM, DimA: n / es}
	switch shape.kind {
	case gfx.KindFloat:
		v.F = make([]float32, n)
		for i, s := range values {
			f, _ := strconv.ParseFloat(s, 32)
			v.F[i] = float32(f)
		}
	case gfx.KindInt:
		v.I = make([]int32, n)
		for i, s := range values {
			x, _ := strconv.ParseInt(s, 10, 32)
			v.I[i] = int32(x)
		}
	case gfx.KindUint:
		v.U = make([]uint32, n)
		for i, s := range values {
			x, _ := strconv.ParseUint(s, 10, 32)
			v.U[i] = uint32(x)
		}
	}
	d.vars = append(d.vars, v)
	return nil
}

// parseStr turns //!STR name "text" into a length and a fixed int array
// of character codes, both compiled into the prelude.
func (d *declarations) parseStr(line string) error {
	parts := strings.Fields(line)
	if len(parts) < 3 {
		return errors.New("missing text")
	}
	name := parts[1]
	start, end := strings.Index(line, `"`), strings.LastIndex(line, `"`)
	if start < 0 || start >= end {
		return errors.New("text is not quoted")
	}
	// malformed escapes leave the string empty
	text, err := unescape(line[start+1 : end])
	if err != nil {
		text = ""
	}

	codes := make([]string, 0, strLen)
	for _, r := range text {
		codes = append(codes, fmt.Sprintf("0x%02x", r))
	}
	if len(codes) >= strLen {
		codes = codes[:strLen]
		fmt.Fprintf(&d.addendum, "// %v is too long, truncating to %d\n", name, strLen)
	}
	fmt.Fprintf(&d.addendum, "const int %v_length = %d;\n", name, len(codes))
	for len(codes) < strLen {
		codes = append(codes, "0x00")
	}
	fmt.Fprintf(&d.addendum, "const int %v[%d] = int[%d](%v);\n", name, strLen, strLen, strings.Join(codes, ", "))
	return nil
}

var escapes = map[byte]rune{
	'b': '\b', 'f': '\f', 'n': '\n', 'r': '\r', 't': '\t',
	'0': 0, '"': '"', '\'': '\'', '\\': '\\', '/': '/',
}

// unescape resolves backslash escapes: the single letter ones, \xHH,
// \uXXXX and \u{X..XXXXXX}. Quotes inside s are kept as they are.
func unescape(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		if i >= len(s) {
			return "", errors.New("dangling backslash")
		}
		if r, ok := escapes[s[i]]; ok {
			b.WriteRune(r)
			continue
		}
		var hex string
		switch {
		case s[i] == 'x' && i+2 < len(s):
			hex, i = s[i+1:i+3], i+2
		case s[i] == 'u' && i+1 < len(s) && s[i+1] == '{':
			j := strings.IndexByte(s[i:], '}')
			if j < 0 {
				return "", errors.New("unterminated \\u{")
			}
			hex, i = s[i+2:i+j], i+j
			if len(hex) == 0 || len(hex) > 6 {
				return "", fmt.Errorf("bad \\u{%v}", hex)
			}
		case s[i] == 'u' && i+4 < len(s):
			hex, i = s[i+1:i+5], i+4
		default:
			return "", fmt.Errorf("unknown escape \\%c", s[i])
		}
		code, err := strconv.ParseUint(hex, 16, 32)
		if err != nil || !utf8.ValidRune(rune(code)) {
			return "", fmt.Errorf("bad code point %q", hex)
		}
		b.WriteRune(rune(code))
	}
	return b.String(), nil
}
