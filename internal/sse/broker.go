// Package sse streams note lifecycle events to browser clients.
//
// Every event carries a sequence id. A reconnecting EventSource sends the
// last id it saw in Last-Event-ID and receives whatever it missed from a
// small replay ring before live events resume.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Index-wide event types.
const (
	TypeIndexUpdated = "index.updated"
	TypeIndexRebuilt = "index.rebuilt"
)

const clientBuffer = 64

// Option configures a Broker.
type Option func(*Broker)

// WithIndexThrottle emits index.updated at most once per d.
func WithIndexThrottle(d time.Duration) Option {
	return func(b *Broker) { b.indexMin = d }
}

// WithHeartbeat sends a comment line every d so proxies keep idle streams
// open. Zero disables it.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) { b.heartbeat = d }
}

// WithReplay keeps the last n events for reconnecting clients.
func WithReplay(n int) Option {
	return func(b *Broker) { b.replay = min(max(n, 0), clientBuffer) }
}

type noteEvent struct {
	kind string
	id   string
}

type subscription struct {
	ch    chan []byte
	after uint64
}

type frame struct {
	seq uint64
	raw []byte
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop goroutine owns the client set, the sequence counter,
// the replay ring and the index.updated throttle; public methods talk to it
// over channels.
type Broker struct {
	indexMin  time.Duration
	heartbeat time.Duration
	replay    int

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	eventCh       chan noteEvent
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. Defaults: index.updated throttled to one per
// 2s, heartbeat every 30s, 32 events kept for replay.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		indexMin:      2 * time.Second,
		heartbeat:     30 * time.Second,
		replay:        32,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		eventCh:       make(chan noteEvent, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq       uint64
		ring      []frame
		lastIndex time.Time
	)

	broadcast := func(kind string, data any) {
		payload, err := json.Marshal(data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, kind, payload))
		if b.replay > 0 {
			ring = append(ring, frame{seq: seq, raw: raw})
			if len(ring) > b.replay {
				ring = ring[len(ring)-b.replay:]
			}
		}
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			if sub.after > 0 {
				for _, f := range ring {
					if f.seq > sub.after {
						sub.ch <- f.raw
					}
				}
			}
			clients[sub.ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.eventCh:
			switch ev.kind {
			case TypeIndexRebuilt:
				broadcast(TypeIndexRebuilt, struct{}{})
				lastIndex = time.Now()
				continue
			case TypeIndexUpdated:
			default:
				broadcast(ev.kind, map[string]string{"id": ev.id})
			}

			if now := time.Now(); now.Sub(lastIndex) >= b.indexMin {
				lastIndex = now
				broadcast(TypeIndexUpdated, struct{}{})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel. Buffered events with
// a sequence id above after are queued first; zero skips replay.
func (b *Broker) Subscribe(after uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, after: after}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// PublishNoteEvent publishes a note event of type kind for id, followed by a
// throttled index.updated. Index-wide kinds carry no id.
func (b *Broker) PublishNoteEvent(kind, id string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.eventCh <- noteEvent{kind: kind, id: id}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	after, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	ch := b.Subscribe(after)
	defer b.Unsubscribe(ch)

	var ping <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		ping = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
