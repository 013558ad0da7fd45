package identity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lojinha-app/storefront/sdk/session"
	log "github.com/sirupsen/logrus"
)

// Hub is the authentication event bus. Events get a monotonic sequence number and are
// delivered serially, in publish order, on a single dispatch goroutine.
type Hub struct {
	once     sync.Once
	stopOnce sync.Once
	now      func() time.Time

	mu       sync.Mutex
	cond     *sync.Cond
	idle     *sync.Cond
	queue    []session.AuthEvent
	inflight int
	seq      uint64
	closed   bool

	handlersMu  sync.RWMutex
	handlers    map[uint64]func(session.AuthEvent)
	nextHandler uint64
}

// NewHub constructs an idle hub. The dispatcher starts on first use.
func NewHub() *Hub {
	h := &Hub{now: time.Now, handlers: make(map[uint64]func(session.AuthEvent))}
	h.cond = sync.NewCond(&h.mu)
	h.idle = sync.NewCond(&h.mu)
	return h
}

// Start launches the background dispatcher. Calling Start multiple times is safe.
func (h *Hub) Start(ctx context.Context) {
	if h == nil {
		return
	}
	h.once.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		go h.run()
		if done := ctx.Done(); done != nil {
			go func() {
				<-done
				h.Stop()
			}()
		}
	})
}

// Stop stops the dispatcher after the queued events were delivered.
func (h *Hub) Stop() {
	if h == nil {
		return
	}
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		h.cond.Broadcast()
	})
}

// Subscribe registers handler for every subsequently dispatched event. The returned
// function removes it; calling it more than once is a no-op. Events still queued when
// the handler is removed are not delivered to it.
func (h *Hub) Subscribe(handler func(session.AuthEvent)) (unsubscribe func()) {
	if h == nil || handler == nil {
		return func() {}
	}
	h.handlersMu.Lock()
	h.nextHandler++
	id := h.nextHandler
	h.handlers[id] = handler
	h.handlersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.handlersMu.Lock()
			delete(h.handlers, id)
			h.handlersMu.Unlock()
		})
	}
}

// Publish enqueues an event and returns its sequence number, or 0 when the hub is stopped.
func (h *Hub) Publish(kind session.EventKind, identity *session.Identity) uint64 {
	if h == nil {
		return 0
	}
	if !kind.Valid() {
		log.WithField("event", int(kind)).Warn("identity hub: dropping invalid event")
		return 0
	}
	h.Start(context.Background())

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0
	}
	h.seq++
	event := session.AuthEvent{Kind: kind, Identity: identity.Clone(), Seq: h.seq, At: h.now()}
	h.queue = append(h.queue, event)
	h.inflight++
	h.mu.Unlock()
	h.cond.Signal()
	return event.Seq
}

// PublishName validates a raw provider event name before publishing it. Unknown
// names are logged and dropped.
func (h *Hub) PublishName(name string, identity *session.Identity) (uint64, bool) {
	kind, ok := session.ParseEventName(name)
	if !ok {
		log.WithField("event", name).Warn("identity hub: ignoring unknown auth event")
		return 0, false
	}
	return h.Publish(kind, identity), true
}

// Flush blocks until every event published so far was dispatched, including events
// still queued when Stop was called.
func (h *Hub) Flush() {
	if h == nil {
		return
	}
	h.mu.Lock()
	for h.inflight > 0 {
		h.idle.Wait()
	}
	h.mu.Unlock()
}

func (h *Hub) run() {
	for {
		h.mu.Lock()
		for !h.closed && len(h.queue) == 0 {
			h.cond.Wait()
		}
		if len(h.queue) == 0 && h.closed {
			h.mu.Unlock()
			h.idle.Broadcast()
			return
		}
		event := h.queue[0]
		h.queue = h.queue[1:]
		h.mu.Unlock()

		h.dispatch(event)

		h.mu.Lock()
		h.inflight--
		if h.inflight == 0 {
			h.idle.Broadcast()
		}
		h.mu.Unlock()
	}
}

func (h *Hub) dispatch(event session.AuthEvent) {
	h.handlersMu.RLock()
	ids := make([]uint64, 0, len(h.handlers))
	for id := range h.handlers {
		ids = append(ids, id)
	}
	h.handlersMu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		h.handlersMu.RLock()
		handler, ok := h.handlers[id]
		h.handlersMu.RUnlock()
		if !ok {
			continue
		}
		safeInvoke(handler, event)
	}
}

func safeInvoke(handler func(session.AuthEvent), event session.AuthEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("identity hub: handler panic recovered: %v", r)
		}
	}()
	handler(event)
}
