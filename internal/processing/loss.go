package processing

import "sync"

// The sensor's link-local sequence counter is a single hex digit, so it
// wraps at 16. Gaps at or above the resync threshold are treated as a
// reconnect or firmware counter reset rather than genuine loss; the numbers
// below match the shipped firmware and must be revalidated if it changes.
const (
	SeqWrapModulus  = 16
	ResyncThreshold = 8
)

// DeviceStats is a point-in-time copy of one device's loss accounting.
// LossRate is always derived from the two counters, never stored.
type DeviceStats struct {
	Received uint64
	Lost     uint64
	Resyncs  uint64
	LossRate float64
}

// LossTracker infers packet loss for one device from gaps in its sequence
// counter. The link itself gives no delivery feedback; this is the only
// quantitative measure of link quality the system has.
type LossTracker struct {
	mu        sync.Mutex
	wrap      uint32
	threshold uint32
	tracking  bool
	expected  uint32
	received  uint64
	lost      uint64
	resyncs   uint64
}

func NewLossTracker(wrapModulus, resyncThreshold uint32) *LossTracker {
	return &LossTracker{
		wrap:      wrapModulus,
		threshold: resyncThreshold,
	}
}

// Observe feeds one received sequence number into the tracker. It returns
// how many packets were charged as lost by this observation and whether the
// tracker resynced instead of charging loss. Loss is final once charged.
func (l *LossTracker) Observe(seq uint32) (lost uint32, resynced bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.received++

	if !l.tracking {
		l.tracking = true
		l.expected = (seq + 1) % l.wrap
		return 0, false
	}

	gap := (seq + l.wrap - l.expected) % l.wrap
	l.expected = (seq + 1) % l.wrap

	switch {
	case gap == 0:
		return 0, false
	case gap >= l.threshold:
		// implausible jump, almost certainly a reconnect or counter reset
		l.resyncs++
		return 0, true
	default:
		l.lost += uint64(gap)
		return gap, false
	}
}

// Tracking reports whether a first packet has been seen.
func (l *LossTracker) Tracking() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tracking
}

func (l *LossTracker) Stats() DeviceStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := DeviceStats{
		Received: l.received,
		Lost:     l.lost,
		Resyncs:  l.resyncs,
	}
	if total := l.received + l.lost; total > 0 {
		stats.LossRate = float64(l.lost) / float64(total)
	}
	return stats
}
