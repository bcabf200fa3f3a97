package nav

import "sync"

// subscriberBuffer is the per-subscriber channel depth. A subscriber
// that falls this far behind loses intermediate updates; only the
// position matters, not the history.
const subscriberBuffer = 8

// Broadcaster is a LocationSink that fans location updates out to any
// number of subscribers. The zero value is not usable; call
// NewBroadcaster.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan Location]struct{}
	last   Location
	seeded bool
	closed bool
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Location]struct{})}
}

// Publish implements LocationSink. Slow subscribers are skipped rather
// than blocked on.
func (b *Broadcaster) Publish(loc Location) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.last = loc
	b.seeded = true

	for ch := range b.subs {
		select {
		case ch <- loc:
		default:
		}
	}

	return nil
}

// Subscribe registers a new subscriber. The most recent location, if
// any, is delivered immediately. The returned cancel function must be
// called when the subscriber goes away.
func (b *Broadcaster) Subscribe() (<-chan Location, func()) {
	ch := make(chan Location, subscriberBuffer)

	b.mu.Lock()

	if !b.closed {
		b.subs[ch] = struct{}{}

		if b.seeded {
			ch <- b.last
		}
	} else {
		close(ch)
	}

	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}

	return ch, cancel
}

// Close drops every subscriber. Publish becomes a no-op.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for ch := range b.subs {
		close(ch)
	}

	b.subs = nil
}
