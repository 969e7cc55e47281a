// Package metrics exposes link counters to prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sides label every series with the endpoint that recorded it.
const (
	Host   = "host"
	Device = "device"
)

var (
	registerOnce sync.Once

	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meterlink",
			Subsystem: "link",
			Name:      "frames_total",
			Help:      "Frames handed to or received from the PPP session.",
		},
		[]string{"side", "direction"},
	)
	codecErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meterlink",
			Subsystem: "link",
			Name:      "codec_errors_total",
			Help:      "Frames dropped because they could not be encoded or decoded.",
		},
		[]string{"side", "op"},
	)
	unrouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meterlink",
			Subsystem: "mux",
			Name:      "unrouted_total",
			Help:      "Received frames without a topic.",
		},
		[]string{"side"},
	)
	topics = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "meterlink",
			Subsystem: "mux",
			Name:      "topics_open",
			Help:      "Topics currently bound in the dispatcher.",
		},
		[]string{"side"},
	)
	reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meterlink",
			Subsystem: "link",
			Name:      "reconnects_total",
			Help:      "Sessions torn down after a transport error.",
		},
		[]string{"side"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(frames, codecErrors, unrouted, topics, reconnects)
	})
}

func RecordFrameIn(side string) {
	RegisterMetrics()
	frames.WithLabelValues(side, "in").Inc()
}

func RecordFrameOut(side string) {
	RegisterMetrics()
	frames.WithLabelValues(side, "out").Inc()
}

func RecordDecodeError(side string) {
	RegisterMetrics()
	codecErrors.WithLabelValues(side, "decode").Inc()
}

func RecordEncodeError(side string) {
	RegisterMetrics()
	codecErrors.WithLabelValues(side, "encode").Inc()
}

func RecordUnrouted(side string) {
	RegisterMetrics()
	unrouted.WithLabelValues(side).Inc()
}

func SetTopics(side string, n int) {
	RegisterMetrics()
	topics.WithLabelValues(side).Set(float64(n))
}

func RecordReconnect(side string) {
	RegisterMetrics()
	reconnects.WithLabelValues(side).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

// Serve exposes Handler on addr under /metrics until ctx ends.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
