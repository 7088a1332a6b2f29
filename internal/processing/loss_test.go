package processing

import "testing"

func TestLossTrackerFirstPacket(t *testing.T) {
	l := NewLossTracker(SeqWrapModulus, ResyncThreshold)

	lost, resynced := l.Observe(5)
	if lost != 0 || resynced {
		t.Fatalf("first packet must charge nothing, got lost=%d resynced=%v", lost, resynced)
	}

	stats := l.Stats()
	if stats.Received != 1 || stats.Lost != 0 || stats.LossRate != 0 {
		t.Fatalf("unexpected stats after first packet: %+v", stats)
	}
}

func TestLossTrackerChargesGaps(t *testing.T) {
	l := NewLossTracker(SeqWrapModulus, ResyncThreshold)

	for _, seq := range []uint32{0, 1, 2, 5, 6} {
		l.Observe(seq)
	}

	stats := l.Stats()
	if stats.Received != 5 {
		t.Fatalf("expected 5 received, got %d", stats.Received)
	}
	if stats.Lost != 2 {
		t.Fatalf("expected 2 lost from the 2->5 jump, got %d", stats.Lost)
	}
	if stats.LossRate != 2.0/7.0 {
		t.Fatalf("expected loss rate 2/7, got %f", stats.LossRate)
	}
}

func TestLossTrackerLossIsFinal(t *testing.T) {
	l := NewLossTracker(SeqWrapModulus, ResyncThreshold)

	for _, seq := range []uint32{0, 3, 4, 5, 6, 7} {
		l.Observe(seq)
	}

	stats := l.Stats()
	if stats.Lost != 2 {
		t.Fatalf("in-order packets after a charged gap must not change loss, got %d", stats.Lost)
	}
}

func TestLossTrackerCounterWrap(t *testing.T) {
	l := NewLossTracker(SeqWrapModulus, ResyncThreshold)

	for _, seq := range []uint32{13, 14, 15, 0, 1} {
		if lost, _ := l.Observe(seq); lost != 0 {
			t.Fatalf("wrap from 15 to 0 charged %d lost packets", lost)
		}
	}
}

func TestLossTrackerGapAcrossWrap(t *testing.T) {
	l := NewLossTracker(SeqWrapModulus, ResyncThreshold)

	l.Observe(14)
	lost, resynced := l.Observe(1)
	if resynced {
		t.Fatalf("gap of 2 across the wrap must not resync")
	}
	if lost != 2 {
		t.Fatalf("expected 2 lost across the wrap (15 and 0), got %d", lost)
	}
}

func TestLossTrackerResync(t *testing.T) {
	// a 16-bit counter to model firmware with a wider sequence field
	l := NewLossTracker(65536, 256)

	l.Observe(10)
	lost, resynced := l.Observe(500)
	if !resynced {
		t.Fatalf("jump from 10 to 500 must be treated as a resync")
	}
	if lost != 0 {
		t.Fatalf("resync must not charge loss, got %d", lost)
	}

	// tracking restarted from the received value
	if lost, _ := l.Observe(501); lost != 0 {
		t.Fatalf("packet after resync charged %d lost", lost)
	}

	stats := l.Stats()
	if stats.Lost != 0 || stats.Resyncs != 1 || stats.Received != 3 {
		t.Fatalf("unexpected stats after resync: %+v", stats)
	}
}

func TestLossTrackerResyncAtWireModulus(t *testing.T) {
	l := NewLossTracker(SeqWrapModulus, ResyncThreshold)

	l.Observe(0)
	_, resynced := l.Observe(12)
	if !resynced {
		t.Fatalf("gap of 11 on a mod-16 counter must resync, not charge loss")
	}
	if stats := l.Stats(); stats.Lost != 0 {
		t.Fatalf("expected no loss, got %d", stats.Lost)
	}
}
