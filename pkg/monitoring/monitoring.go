package monitoring

import (
	"fmt"
	"net/http/pprof"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vizrig/vizrig/pkg/config"
	"github.com/vizrig/vizrig/pkg/logger"
	"github.com/vizrig/vizrig/pkg/network/httpx"
)

type Monitoring struct {
	conf   config.Monitoring
	server *httpx.Server
	log    *logger.Logger
}

// New creates new monitoring service.
func New(conf config.Monitoring, log *logger.Logger) (*Monitoring, error) {
	log = log.Extend(log.With().Str("m", "Monitoring"))
	serv, err := httpx.NewServer(
		fmt.Sprintf(":%d", conf.Port),
		func(serv *httpx.Server) httpx.Handler {
			h := httpx.NewServeMux(conf.URLPrefix)

			if conf.ProfilingEnabled {
				log.Info().Msgf("Profiling is enabled at %v", serv.Addr+conf.URLPrefix+"/debug/pprof")
				h.HandleFunc("/debug/pprof/", pprof.Index)
				h.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
				h.HandleFunc("/debug/pprof/profile", pprof.Profile)
				h.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
				h.HandleFunc("/debug/pprof/trace", pprof.Trace)
				// named profiles need explicit routes under a custom prefix
				for _, p := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
					h.Handle("/debug/pprof/"+p, pprof.Handler(p))
				}
			}

			if conf.MetricEnabled {
				log.Info().Msgf("Prometheus metric is enabled at %v", serv.Addr+conf.URLPrefix+"/metrics")
				h.Handle("/metrics", promhttp.Handler())
			}

			return h
		},
		httpx.WithPortRoll(true),
		httpx.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	return &Monitoring{conf: conf, server: serv, log: log}, nil
}

func (m *Monitoring) Run() {
	m.log.Info().Msgf("Starting monitoring server at %v", m.server.Addr)
	m.server.Run()
}

func (m *Monitoring) Stop() error {
	m.log.Debug().Msg("Shutting down monitoring server")
	return m.server.Stop()
}

func (m *Monitoring) Addr() string { return m.server.Addr }

func (m *Monitoring) String() string {
	return fmt.Sprintf("monitoring::%s:%d", m.conf.URLPrefix, m.server.Port())
}
