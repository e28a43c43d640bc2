package room

import (
	"context"
	"sync"
)

// Transport carries envelopes between the players of a room and its referee.
// Every subscriber of a room receives every envelope sent to it, including its
// own, in send order. Receive returns once the subscription is live; the
// channel closes when ctx ends.
type Transport interface {
	Send(ctx context.Context, code string, env Envelope) error
	Receive(ctx context.Context, code string) (<-chan Envelope, error)
}

// MemoryHub is an in-process Transport. Send blocks while a subscriber's buffer
// is full instead of dropping, because a lost move means a desync.
type MemoryHub struct {
	mu     sync.Mutex
	subs   map[string]map[*hubSub]struct{}
	buffer int
}

type hubSub struct {
	in   chan Envelope
	done chan struct{}
}

func NewMemoryHub(buffer int) *MemoryHub {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryHub{subs: make(map[string]map[*hubSub]struct{}), buffer: buffer}
}

func (h *MemoryHub) Send(ctx context.Context, code string, env Envelope) error {
	code = NormalizeCode(code)
	h.mu.Lock()
	targets := make([]*hubSub, 0, len(h.subs[code]))
	for s := range h.subs[code] {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		select {
		case s.in <- env:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (h *MemoryHub) Receive(ctx context.Context, code string) (<-chan Envelope, error) {
	code = NormalizeCode(code)
	s := &hubSub{in: make(chan Envelope, h.buffer), done: make(chan struct{})}
	h.mu.Lock()
	if h.subs[code] == nil {
		h.subs[code] = make(map[*hubSub]struct{})
	}
	h.subs[code][s] = struct{}{}
	h.mu.Unlock()

	out := make(chan Envelope)
	go func() {
		defer close(out)
		defer func() {
			h.mu.Lock()
			delete(h.subs[code], s)
			if len(h.subs[code]) == 0 {
				delete(h.subs, code)
			}
			h.mu.Unlock()
			close(s.done)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case env := <-s.in:
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Subscribers reports how many live subscriptions code has.
func (h *MemoryHub) Subscribers(code string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[NormalizeCode(code)])
}
