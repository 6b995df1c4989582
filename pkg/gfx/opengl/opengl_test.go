package opengl

import (
	"strings"
	"testing"

	"github.com/vizrig/vizrig/pkg/gfx"
)

func TestFragmentSource(t *testing.T) {
	src := gfx.Source{Prelude: "float k = 1.0;", Header: "float h = 2.0;", Body: "color = vec4(k);"}
	out := fragmentSource(src, []gfx.Var{gfx.Float("frame", 0)})

	for _, want := range []string{"#version 330 core", "uniform sampler2D src_tex7;", "uniform float frame;"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q", want)
		}
	}
	prelude := strings.Index(out, src.Prelude)
	main := strings.Index(out, "void main()")
	header := strings.Index(out, src.Header)
	body := strings.Index(out, src.Body)
	if !(prelude < main && main < header && header < body) {
		t.Errorf("bad order: prelude %d main %d header %d body %d", prelude, main, header, body)
	}
}
