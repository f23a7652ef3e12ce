package diagnostics

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultKeep = 64

// Hub fans diagnostics out to subscribers and remembers the most recent
// ones. Slow subscribers miss entries rather than block the publisher.
type Hub struct {
	mu     sync.Mutex
	keep   int
	recent []Diagnostic
	next   int
	total  uint64
	subs   map[chan Diagnostic]struct{}
	now    func() time.Time
}

func NewHub(keep int) *Hub {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Hub{
		keep: keep,
		subs: map[chan Diagnostic]struct{}{},
		now:  time.Now,
	}
}

// Publish logs d, stamps it if needed and delivers it.
func (h *Hub) Publish(d Diagnostic) {
	if h == nil {
		return
	}
	if d.Time.IsZero() {
		d.Time = h.now()
	}
	ev := log.WithLevel(d.Severity.Level()).Str("code", d.Code)
	if d.Detail != "" {
		ev = ev.Str("detail", d.Detail)
	}
	ev.Msg(d.Summary)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.total++
	if len(h.recent) < h.keep {
		h.recent = append(h.recent, d)
	} else {
		h.recent[h.next] = d
		h.next = (h.next + 1) % h.keep
	}
	for ch := range h.subs {
		select {
		case ch <- d:
		default:
		}
	}
}

// Subscribe returns a channel of future diagnostics and a cancel func that
// closes it.
func (h *Hub) Subscribe(buf int) (<-chan Diagnostic, func()) {
	ch := make(chan Diagnostic, buf)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Recent returns the remembered diagnostics, oldest first.
func (h *Hub) Recent() []Diagnostic {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Diagnostic, 0, len(h.recent))
	out = append(out, h.recent[h.next:]...)
	out = append(out, h.recent[:h.next]...)
	return out
}

// Total counts every published diagnostic.
func (h *Hub) Total() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}
