package control

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
)

const DefaultCapacity = 16

var (
	ErrBusClosed        = errors.New("bus is closed")
	ErrSubscriberExists = errors.New("subscriber id already exists")
)

// Bus fans events out to every subscriber. Each subscriber has a bounded
// queue; when it is full the oldest queued event is discarded to make room.
// Publish never blocks, so individual Set* events can be lost under bursts.
type Bus struct {
	mu       sync.RWMutex
	capacity int
	subs     map[string]*Receiver
	closed   bool

	published atomic.Uint64
}

// Receiver is one subscriber's queue.
type Receiver struct {
	id      string
	ch      chan Event
	sent    atomic.Uint64
	dropped atomic.Uint64
	taken   atomic.Uint64
}

// SubscriberStats are per-subscriber counters.
type SubscriberStats struct {
	Sent      uint64 `json:"sent"`
	Dropped   uint64 `json:"dropped"`
	Delivered uint64 `json:"delivered"`
	Pending   int    `json:"pending"`
}

type Stats struct {
	Published   uint64                     `json:"published"`
	Sent        uint64                     `json:"sent"`
	Dropped     uint64                     `json:"dropped"`
	Subscribers map[string]SubscriberStats `json:"subscribers"`
}

func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{capacity: capacity, subs: map[string]*Receiver{}}
}

func (b *Bus) Capacity() int { return b.capacity }

// Subscribe registers a receiver under id.
func (b *Bus) Subscribe(id string) (*Receiver, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	if _, ok := b.subs[id]; ok {
		return nil, ErrSubscriberExists
	}
	r := &Receiver{id: id, ch: make(chan Event, b.capacity)}
	b.subs[id] = r
	return r, nil
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Publish queues e for every subscriber.
func (b *Bus) Publish(e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	b.published.Add(1)
	for _, r := range b.subs {
		r.push(e)
	}
	return nil
}

func (r *Receiver) push(e Event) {
	for {
		select {
		case r.ch <- e:
			r.sent.Add(1)
			return
		default:
		}
		select {
		case <-r.ch:
			r.dropped.Add(1)
		default:
		}
	}
}

// Close stops further publishing. Queued events stay readable.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	b.closed = true
	return nil
}

func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st := Stats{
		Published:   b.published.Load(),
		Subscribers: make(map[string]SubscriberStats, len(b.subs)),
	}
	for id, r := range b.subs {
		s := r.Stats()
		st.Sent += s.Sent
		st.Dropped += s.Dropped
		st.Subscribers[id] = s
	}
	return st
}

// Subscribers returns the registered ids, sorted.
func (b *Bus) Subscribers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.subs))
	for id := range b.subs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Receiver) ID() string { return r.id }

// TryRecv returns the oldest queued event without blocking.
func (r *Receiver) TryRecv() (Event, bool) {
	select {
	case e := <-r.ch:
		r.taken.Add(1)
		return e, true
	default:
		return Event{}, false
	}
}

// Drain hands every event queued at the time of the call to fn, in order,
// and returns how many there were. Events published while draining are left
// for the next call.
func (r *Receiver) Drain(fn func(Event)) int {
	n := len(r.ch)
	got := 0
	for i := 0; i < n; i++ {
		e, ok := r.TryRecv()
		if !ok {
			break
		}
		fn(e)
		got++
	}
	return got
}

// C exposes the queue for blocking consumers.
func (r *Receiver) C() <-chan Event { return r.ch }

func (r *Receiver) Stats() SubscriberStats {
	return SubscriberStats{
		Sent:      r.sent.Load(),
		Dropped:   r.dropped.Load(),
		Delivered: r.taken.Load(),
		Pending:   len(r.ch),
	}
}
