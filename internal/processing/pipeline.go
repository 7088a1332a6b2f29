package processing

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chengloutai/emg-ble-receiver/internal/metrics"
)

const DefaultQueueSize = 64

// devicePipeline is the per-device half of the receive path: loss
// accounting plus one sliding window per channel. Both physical sensors are
// protocol-identical, so the processor keeps two of these in a fixed table
// indexed by DeviceTag.
type devicePipeline struct {
	tag       DeviceTag
	loss      *LossTracker
	t2        *ChannelWindow
	t4        *ChannelWindow
	firstSeen atomic.Int64 // unix nanos of the first routed packet, 0 if never
}

func (d *devicePipeline) markSeen(now time.Time) {
	if d.firstSeen.Load() == 0 {
		d.firstSeen.Store(now.UnixNano())
	}
}

// Processor drains the raw notification queue and runs decode → route →
// loss tracking → window push for both devices. It is the sole writer of
// all per-device state; the sampler reads it through Frame.
type Processor struct {
	queue          <-chan []byte
	logger         *zap.Logger
	collector      *metrics.Collector
	devices        [NumDevices]*devicePipeline
	unknownDropped atomic.Uint64
	closed         atomic.Bool
	started        time.Time
}

func NewProcessor(queue <-chan []byte, windowSize int, logger *zap.Logger, collector *metrics.Collector) *Processor {
	p := &Processor{
		queue:     queue,
		logger:    logger,
		collector: collector,
		started:   time.Now(),
	}
	for tag := DeviceA; tag < DeviceUnknown; tag++ {
		p.devices[tag] = &devicePipeline{
			tag:  tag,
			loss: NewLossTracker(SeqWrapModulus, ResyncThreshold),
			t2:   NewChannelWindow(windowSize),
			t4:   NewChannelWindow(windowSize),
		}
	}
	return p
}

func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case payload, ok := <-p.queue:
			if !ok {
				p.logger.Info("[processor] notification queue closed")
				p.closed.Store(true)
				return nil
			}
			p.HandleNotification(payload)
		case <-ctx.Done():
			p.logger.Info("[processor] received shutdown signal")
			p.closed.Store(true)
			return nil
		}
	}
}

// HandleNotification processes one raw payload. A packet that cannot be
// decoded or attributed is dropped without touching either device's state.
func (p *Processor) HandleNotification(raw []byte) {
	if p.closed.Load() {
		return
	}

	pkt, err := Decode(raw)
	if err != nil {
		p.collector.IncDecodeError()
		p.logger.Warn(
			"[processor] dropping malformed packet",
			zap.Error(err),
			zap.Int("payloadLength", len(raw)),
		)
		return
	}

	if pkt.Device == DeviceUnknown {
		p.unknownDropped.Add(1)
		p.collector.IncUnknownDropped()
		return
	}

	dev := p.devices[pkt.Device]
	dev.markSeen(time.Now())

	lost, resynced := dev.loss.Observe(pkt.Seq)
	if resynced {
		p.collector.IncResync(dev.tag.String())
		p.logger.Info(
			"[processor] sequence resync",
			zap.String("device", dev.tag.String()),
			zap.Uint32("seq", pkt.Seq),
		)
	}
	if lost > 0 {
		p.collector.AddLost(dev.tag.String(), lost)
	}
	p.collector.IncReceived(dev.tag.String())

	var t2, t4 [SamplesPerPacket]int32
	for i, s := range pkt.Samples {
		t2[i] = s.T2
		t4[i] = s.T4
	}
	dev.t2.Extend(t2[:])
	dev.t4.Extend(t4[:])
}

// DeviceFrame is one device's share of a display frame.
type DeviceFrame struct {
	Device   string  `json:"device"`
	T2       []int32 `json:"t2"`
	T4       []int32 `json:"t4"`
	Received uint64  `json:"received"`
	Lost     uint64  `json:"lost"`
	LossRate float64 `json:"loss_rate"`
}

// DisplayFrame is the consistent view handed to the renderer: all four
// channel windows plus both devices' loss statistics.
type DisplayFrame struct {
	CapturedAt time.Time               `json:"captured_at"`
	Devices    [NumDevices]DeviceFrame `json:"devices"`
}

// Frame snapshots the current state of both devices. It copies, never
// references, so the caller can hold the frame as long as it likes while
// notifications keep arriving.
func (p *Processor) Frame() DisplayFrame {
	frame := DisplayFrame{CapturedAt: time.Now()}
	for tag := DeviceA; tag < DeviceUnknown; tag++ {
		dev := p.devices[tag]
		stats := dev.loss.Stats()
		frame.Devices[tag] = DeviceFrame{
			Device:   dev.tag.String(),
			T2:       dev.t2.Snapshot(),
			T4:       dev.t4.Snapshot(),
			Received: stats.Received,
			Lost:     stats.Lost,
			LossRate: stats.LossRate,
		}
	}
	return frame
}

type DeviceSummary struct {
	Device   string
	Received uint64
	Lost     uint64
	Resyncs  uint64
	LossRate float64
	Samples  uint64
	Elapsed  time.Duration
}

type SessionSummary struct {
	Elapsed        time.Duration
	UnknownDropped uint64
	Devices        [NumDevices]DeviceSummary
}

// Summary materialises the end-of-session totals from the last consistent
// state of both loss trackers.
func (p *Processor) Summary() SessionSummary {
	sum := SessionSummary{
		Elapsed:        time.Since(p.started),
		UnknownDropped: p.unknownDropped.Load(),
	}
	for tag := DeviceA; tag < DeviceUnknown; tag++ {
		dev := p.devices[tag]
		stats := dev.loss.Stats()
		ds := DeviceSummary{
			Device:   dev.tag.String(),
			Received: stats.Received,
			Lost:     stats.Lost,
			Resyncs:  stats.Resyncs,
			LossRate: stats.LossRate,
			Samples:  stats.Received * SamplesPerPacket,
		}
		if first := dev.firstSeen.Load(); first > 0 {
			ds.Elapsed = time.Since(time.Unix(0, first))
		}
		sum.Devices[tag] = ds
	}
	return sum
}

func (s SessionSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "session summary (%.1fs)\n", s.Elapsed.Seconds())
	for _, d := range s.Devices {
		fmt.Fprintf(&b, "  device %s:\n", d.Device)
		fmt.Fprintf(&b, "    packets received: %d\n", d.Received)
		fmt.Fprintf(&b, "    packets lost:     %d\n", d.Lost)
		fmt.Fprintf(&b, "    loss rate:        %.2f%%\n", d.LossRate*100)
		fmt.Fprintf(&b, "    resyncs:          %d\n", d.Resyncs)
		fmt.Fprintf(&b, "    samples/channel:  %d\n", d.Samples)
		fmt.Fprintf(&b, "    collection time:  %.1fs\n", d.Elapsed.Seconds())
	}
	fmt.Fprintf(&b, "  unknown packets dropped: %d", s.UnknownDropped)
	return b.String()
}
