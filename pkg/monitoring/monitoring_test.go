package monitoring

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/vizrig/vizrig/pkg/config"
	"github.com/vizrig/vizrig/pkg/logger"
)

func TestMetricsEndpoint(t *testing.T) {
	m, err := New(config.Monitoring{Port: 0, URLPrefix: "/viz", MetricEnabled: true}, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	m.Run()
	defer func() { _ = m.Stop() }()

	FramesRendered.Inc()
	RenderErrors.WithLabelValues("Mix").Inc()

	resp, err := http.Get("http://" + m.Addr() + "/viz/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"viz_frames_rendered_total", `viz_render_errors_total{kind="Mix"}`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("no %v in the metrics", want)
		}
	}

	resp, err = http.Get("http://" + m.Addr() + "/viz/debug/pprof/")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("profiling served while disabled: %v", resp.StatusCode)
	}
}
