package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collector owns the prometheus instruments for the receive pipeline. All
// methods are safe on a nil receiver so tests can run without a registry.
type Collector struct {
	received        *prometheus.CounterVec
	lost            *prometheus.CounterVec
	resyncs         *prometheus.CounterVec
	decodeErrors    prometheus.Counter
	unknownDropped  prometheus.Counter
	framesPublished prometheus.Counter
	windowFill      *prometheus.GaugeVec
}

func NewCollector() *Collector {
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "emg_packets_received_total",
		Help: "Packets successfully decoded and routed, per device.",
	}, []string{"device"})
	lost := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "emg_packets_lost_total",
		Help: "Packets charged as lost from sequence-counter gaps, per device.",
	}, []string{"device"})
	resyncs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "emg_sequence_resyncs_total",
		Help: "Sequence jumps treated as reconnects rather than loss, per device.",
	}, []string{"device"})
	decodeErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emg_decode_errors_total",
		Help: "Notifications dropped because they could not be decoded.",
	})
	unknownDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emg_unknown_device_dropped_total",
		Help: "Well-formed notifications dropped for an unrecognised header.",
	})
	framesPublished := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emg_frames_published_total",
		Help: "Display frames handed to the output sinks.",
	})
	windowFill := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "emg_window_fill_samples",
		Help: "Samples currently held in each sliding window.",
	}, []string{"device", "channel"})

	prometheus.MustRegister(received, lost, resyncs, decodeErrors, unknownDropped, framesPublished, windowFill)

	return &Collector{
		received:        received,
		lost:            lost,
		resyncs:         resyncs,
		decodeErrors:    decodeErrors,
		unknownDropped:  unknownDropped,
		framesPublished: framesPublished,
		windowFill:      windowFill,
	}
}

func (c *Collector) IncReceived(device string) {
	if c == nil {
		return
	}
	c.received.WithLabelValues(device).Inc()
}

func (c *Collector) AddLost(device string, n uint32) {
	if c == nil {
		return
	}
	c.lost.WithLabelValues(device).Add(float64(n))
}

func (c *Collector) IncResync(device string) {
	if c == nil {
		return
	}
	c.resyncs.WithLabelValues(device).Inc()
}

func (c *Collector) IncDecodeError() {
	if c == nil {
		return
	}
	c.decodeErrors.Inc()
}

func (c *Collector) IncUnknownDropped() {
	if c == nil {
		return
	}
	c.unknownDropped.Inc()
}

func (c *Collector) IncFramePublished() {
	if c == nil {
		return
	}
	c.framesPublished.Inc()
}

func (c *Collector) SetWindowFill(device, channel string, n int) {
	if c == nil {
		return
	}
	c.windowFill.WithLabelValues(device, channel).Set(float64(n))
}

// ListenAndServe exposes /metrics until the context is cancelled.
func ListenAndServe(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("[metrics] metrics server stopped", zap.Error(err), zap.String("addr", addr))
	}
}
