package processing

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type staticSource struct {
	frame DisplayFrame
}

func (s *staticSource) Frame() DisplayFrame {
	return s.frame
}

type captureSink struct {
	mu     sync.Mutex
	frames []DisplayFrame
}

func (c *captureSink) Publish(frame DisplayFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func TestSamplerPublishesOnCadence(t *testing.T) {
	source := &staticSource{}
	source.frame.Devices[DeviceA].Device = "ABE"
	source.frame.Devices[DeviceB].Device = "ABB"
	sink := &captureSink{}

	s := NewSampler(5*time.Millisecond, source, []FrameSink{sink}, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	waitFor(t, func() bool { return sink.count() >= 3 })
	cancel()
	<-done

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.frames[0].Devices[DeviceA].Device != "ABE" {
		t.Fatalf("published frame lost its source contents: %+v", sink.frames[0])
	}
}

func TestFormatInfluxLine(t *testing.T) {
	frame := DisplayFrame{CapturedAt: time.Unix(0, 12345)}
	frame.Devices[DeviceA] = DeviceFrame{
		Device:   "ABE",
		T2:       []int32{1, 2, 7},
		T4:       []int32{3, 4, 9},
		Received: 10,
		Lost:     2,
		LossRate: 0.25,
	}
	frame.Devices[DeviceB] = DeviceFrame{Device: "ABB"}

	got := formatInfluxLine(frame)
	want := "emgvals abe_t2=7,abe_t4=9,abe_received=10,abe_lost=2,abe_loss_rate=0.2500," +
		"abb_t2=0,abb_t4=0,abb_received=0,abb_lost=0,abb_loss_rate=0.0000 12345"
	if got != want {
		t.Fatalf("influx line mismatch:\n got  %q\n want %q", got, want)
	}
}
