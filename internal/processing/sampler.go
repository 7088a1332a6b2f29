package processing

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chengloutai/emg-ble-receiver/internal/metrics"
)

// measurement name for the influx line protocol output
const SamplingChannelName = "emgvals"

// FrameSource is what the sampler reads on every tick; the Processor is the
// production implementation.
type FrameSource interface {
	Frame() DisplayFrame
}

// FrameSink receives every published frame. A sink that cannot keep up must
// shed work itself, the sampler never waits on a consumer.
type FrameSink interface {
	Publish(frame DisplayFrame) error
}

// Sampler drives the display side of the pipeline: on a fixed cadence,
// independent of packet arrival, it snapshots the processor and fans the
// frame out to every sink.
type Sampler struct {
	samplingFrequency time.Duration
	source            FrameSource
	sinks             []FrameSink
	logger            *zap.Logger
	collector         *metrics.Collector
}

func NewSampler(samplingFrequency time.Duration, source FrameSource, sinks []FrameSink, logger *zap.Logger, collector *metrics.Collector) *Sampler {
	return &Sampler{
		samplingFrequency: samplingFrequency,
		source:            source,
		sinks:             sinks,
		logger:            logger,
		collector:         collector,
	}
}

func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.samplingFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("[sampler] received shutdown signal")
			return
		case <-ticker.C:
			s.publishFrame()
		}
	}
}

func (s *Sampler) publishFrame() {
	frame := s.source.Frame()

	for _, sink := range s.sinks {
		if err := sink.Publish(frame); err != nil {
			s.logger.Warn("[sampler] error publishing frame", zap.Error(err))
		}
	}

	s.collector.IncFramePublished()
	for _, dev := range frame.Devices {
		s.collector.SetWindowFill(dev.Device, "t2", len(dev.T2))
		s.collector.SetWindowFill(dev.Device, "t4", len(dev.T4))
	}
}

// InfluxSink ships the newest sample of each channel plus the loss counters
// to a telegraf UDP listener in influx line protocol.
type InfluxSink struct {
	udpConn *net.UDPConn
}

func NewInfluxSink(udpConn *net.UDPConn) *InfluxSink {
	return &InfluxSink{udpConn: udpConn}
}

func (s *InfluxSink) Publish(frame DisplayFrame) error {
	return s.sendToUDPConn(formatInfluxLine(frame))
}

func formatInfluxLine(frame DisplayFrame) string {
	fields := make([]string, 0, 5*NumDevices)
	for _, dev := range frame.Devices {
		prefix := strings.ToLower(dev.Device)
		fields = append(fields,
			fmt.Sprintf("%s_t2=%d", prefix, latestSample(dev.T2)),
			fmt.Sprintf("%s_t4=%d", prefix, latestSample(dev.T4)),
			fmt.Sprintf("%s_received=%d", prefix, dev.Received),
			fmt.Sprintf("%s_lost=%d", prefix, dev.Lost),
			fmt.Sprintf("%s_loss_rate=%.4f", prefix, dev.LossRate),
		)
	}

	return fmt.Sprintf("%s %s %d", SamplingChannelName, strings.Join(fields, ","), frame.CapturedAt.UnixNano())
}

func latestSample(window []int32) int32 {
	if len(window) == 0 {
		return 0
	}
	return window[len(window)-1]
}

func (s *InfluxSink) sendToUDPConn(formattedData string) error {
	totalWritten := 0
	for totalWritten < len(formattedData) {
		n, err := s.udpConn.Write([]byte(formattedData[totalWritten:]))
		if err != nil {
			return err
		}
		totalWritten += n
	}
	return nil
}
