// Package metrics exposes chattcp's Prometheus metrics and a periodic
// resource sampler.
package metrics

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

func processID() int { return os.Getpid() }

var (
	ConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chattcp_connections_total",
		Help: "Total number of TCP connections accepted.",
	})
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chattcp_connections_active",
		Help: "Current number of open TCP connections.",
	})
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chattcp_sessions_active",
		Help: "Current number of authenticated sessions.",
	})
	RecordsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chattcp_records_received_total",
		Help: "Total number of protocol records parsed from clients.",
	})
	RecordsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chattcp_records_sent_total",
		Help: "Total number of responses to dispatched requests written to clients; pushes and parse-error replies are not counted.",
	})
	PushesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chattcp_pushes_dropped_total",
		Help: "Push deliveries that failed to write. The delivery engine ignores push write errors and never increments this counter, so it stays at zero.",
	})
	SessionsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chattcp_sessions_expired_total",
		Help: "Total number of sessions removed by the idle reaper.",
	})
	VerbLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chattcp_verb_duration_seconds",
		Help:    "Handler latency by verb.",
		Buckets: prometheus.DefBuckets,
	}, []string{"verb"})
	ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chattcp_errors_total",
		Help: "Total number of error responses returned, by wire error tag.",
	}, []string{"tag"})

	ProcessRSSBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chattcp_process_rss_bytes",
		Help: "Resident set size of this process, sampled periodically via gopsutil.",
	})
	ProcessCPUPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chattcp_process_cpu_percent",
		Help: "Process CPU utilisation percentage, sampled periodically via gopsutil.",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal, ConnectionsActive, SessionsActive,
		RecordsReceived, RecordsSent, PushesDropped, SessionsExpired,
		VerbLatency, ErrorsTotal, ProcessRSSBytes, ProcessCPUPercent,
	)
}

// Serve starts the /metrics HTTP endpoint and blocks until ctx is
// cancelled.
func Serve(ctx context.Context, addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}

// SampleResources periodically refreshes the process RSS/CPU gauges
// via gopsutil until ctx is cancelled.
func SampleResources(ctx context.Context, interval time.Duration, log zerolog.Logger) {
	proc, err := process.NewProcess(int32(processID()))
	if err != nil {
		log.Warn().Err(err).Msg("resource sampler disabled: could not attach to self")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
				ProcessRSSBytes.Set(float64(mem.RSS))
				log.Debug().Str("rss", humanize.Bytes(mem.RSS)).Msg("resource sample")
			}
			if pct, err := proc.CPUPercent(); err == nil {
				ProcessCPUPercent.Set(pct)
			} else if _, err := cpu.Percent(0, false); err != nil {
				log.Debug().Err(err).Msg("cpu sample unavailable")
			}
		}
	}
}
