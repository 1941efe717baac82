// Package pubsub fans note changes out to every live subscription of the
// owning user, including the session that made the change.
package pubsub

import (
	"log/slog"
	"sync/atomic"

	"github.com/starford/notetaker/internal/models"
)

const defaultBuffer = 64

// Subscriber receives the changes of one owner.
type Subscriber struct {
	owner string
	ch    chan models.Change
}

// C is closed when the subscriber is removed or the hub shuts down.
func (s *Subscriber) C() <-chan models.Change {
	return s.ch
}

// Owner returns the user whose changes the subscriber receives.
func (s *Subscriber) Owner() string {
	return s.owner
}

type publishReq struct {
	owner  string
	change models.Change
}

// Hub manages subscribers and broadcasts changes.
//
// Concurrency model: a single internal event loop (goroutine) owns the
// subscriber set. Public methods communicate with this loop through
// channels, so no mutexes are required.
type Hub struct {
	buffer int
	logger *slog.Logger

	subscribeCh   chan *Subscriber
	unsubscribeCh chan *Subscriber
	publishCh     chan publishReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
	dropped atomic.Int64
}

// NewHub creates a hub whose subscribers buffer up to buffer changes.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		buffer:        buffer,
		logger:        logger,
		subscribeCh:   make(chan *Subscriber),
		unsubscribeCh: make(chan *Subscriber),
		publishCh:     make(chan publishReq),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.stopped)

	subs := make(map[*Subscriber]struct{})

	for {
		select {
		case <-h.stopCh:
			for s := range subs {
				close(s.ch)
			}
			return

		case s := <-h.subscribeCh:
			subs[s] = struct{}{}

		case s := <-h.unsubscribeCh:
			if _, ok := subs[s]; ok {
				delete(subs, s)
				close(s.ch)
			}

		case req := <-h.publishCh:
			for s := range subs {
				if s.owner != req.owner {
					continue
				}
				select {
				case s.ch <- req.change:
				default:
					// Subscriber buffer full; skip to avoid blocking the hub loop.
					h.dropped.Add(1)
					h.logger.Warn("pubsub: subscriber lagging, change dropped",
						slog.String("owner", s.owner),
						slog.String("id", req.change.Note.ID))
				}
			}

		case resp := <-h.countReqCh:
			resp <- len(subs)
		}
	}
}

// Close stops the hub loop and closes all subscriber channels.
func (h *Hub) Close() {
	if h.closed.CompareAndSwap(false, true) {
		close(h.stopCh)
	}
	<-h.stopped
}

// Subscribe adds a subscriber for owner's changes.
func (h *Hub) Subscribe(owner string) *Subscriber {
	s := &Subscriber{owner: owner, ch: make(chan models.Change, h.buffer)}
	if h.closed.Load() {
		close(s.ch)
		return s
	}

	select {
	case h.subscribeCh <- s:
	case <-h.stopped:
		close(s.ch)
	}
	return s
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(s *Subscriber) {
	if h.closed.Load() {
		return
	}
	select {
	case h.unsubscribeCh <- s:
	case <-h.stopped:
	}
}

// ClientCount returns the number of live subscribers.
func (h *Hub) ClientCount() int {
	if h.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case h.countReqCh <- resp:
	case <-h.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-h.stopped:
		return 0
	}
}

// Publish sends a change to every subscriber of owner.
func (h *Hub) Publish(owner string, change models.Change) {
	if h.closed.Load() {
		return
	}
	select {
	case h.publishCh <- publishReq{owner: owner, change: change}:
	case <-h.stopped:
	}
}

// Dropped returns how many deliveries were skipped because a subscriber lagged.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
