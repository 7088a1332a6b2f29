package processing

import "sync"

// ChannelWindow holds the most recent samples of one channel in arrival
// order, evicting the oldest once full. One goroutine writes (the decode
// path for that device) and one reads (the frame sampler); the mutex keeps
// a snapshot from ever observing a half-applied push.
type ChannelWindow struct {
	mu    sync.Mutex
	buf   []int32
	start int
	count int
}

func NewChannelWindow(capacity int) *ChannelWindow {
	return &ChannelWindow{buf: make([]int32, capacity)}
}

func (w *ChannelWindow) Push(v int32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.push(v)
}

// Extend appends one packet's worth of samples under a single lock so a
// concurrent snapshot never splits a packet down the middle.
func (w *ChannelWindow) Extend(vals []int32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, v := range vals {
		w.push(v)
	}
}

func (w *ChannelWindow) push(v int32) {
	if w.count == len(w.buf) {
		w.buf[w.start] = v
		w.start = (w.start + 1) % len(w.buf)
		return
	}
	w.buf[(w.start+w.count)%len(w.buf)] = v
	w.count++
}

// Snapshot returns a copy of the current contents, oldest first. Fewer than
// capacity samples come back until the window has filled once.
func (w *ChannelWindow) Snapshot() []int32 {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]int32, w.count)
	for i := range out {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

func (w *ChannelWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
