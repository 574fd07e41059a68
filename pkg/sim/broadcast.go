package sim

import "sync"

// Broadcaster fans frames out to subscribers without ever blocking the
// publisher. A subscriber that falls behind loses frames; the final frame
// of a run evicts the oldest buffered frame instead of being dropped.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan Frame]struct{}
	buf  int
}

// NewBroadcaster returns a broadcaster whose subscribers buffer buf frames.
func NewBroadcaster(buf int) *Broadcaster {
	if buf < 1 {
		buf = 1
	}
	return &Broadcaster{subs: make(map[chan Frame]struct{}), buf: buf}
}

// Subscribe registers a new subscriber. The returned cancel func
// unsubscribes and closes the channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan Frame, func()) {
	ch := make(chan Frame, b.buf)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers f to every subscriber with room and returns how many
// subscribers missed it.
func (b *Broadcaster) Publish(f Frame) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	dropped := 0
	for ch := range b.subs {
		select {
		case ch <- f:
			continue
		default:
		}
		if !f.Final {
			dropped++
			continue
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- f:
		default:
			dropped++
		}
	}
	return dropped
}

// Len returns the number of subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
