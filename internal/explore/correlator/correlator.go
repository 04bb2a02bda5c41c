// Package correlator matches inbound call-completed webhook events to the
// worker goroutine awaiting that call, using a single-use signal per
// call_id registered before dialing.
//
// The map-of-channels-guarded-by-a-mutex shape mirrors the reconnection
// signal in internal/session/reconnect.go (a buffered "disconnected" channel
// a background goroutine waits on), generalized here to one signal per
// in-flight call instead of one per connection.
package correlator

import (
	"sync"
	"time"
)

// Event is the webhook payload correlated to a pending call.
type Event struct {
	CallID       string
	Status       string // "completed" | "failed" | "no_answer"
	RecordingURL string
	DurationS    float64
	Error        string
}

// defaultLateEventBuffer is how long an event arriving before its
// registration is buffered, tolerating a registration/delivery race.
const defaultLateEventBuffer = 60 * time.Second

// pending is a single in-flight call's wait slot.
type pending struct {
	ch chan Event
}

// Correlator is a thread-safe registry of call_id → waiting worker.
type Correlator struct {
	mu           sync.Mutex
	waiting      map[string]*pending
	lateEvents   map[string]Event
	lateBuffer   time.Duration
	now          func() time.Time
	lateArrivals map[string]time.Time
}

// Option configures a [Correlator] during construction.
type Option func(*Correlator)

// WithLateEventBuffer overrides the default 60s window a late-arriving
// webhook event is held for, in case its registration is still in flight.
func WithLateEventBuffer(d time.Duration) Option {
	return func(c *Correlator) { c.lateBuffer = d }
}

// New creates an empty Correlator.
func New(opts ...Option) *Correlator {
	c := &Correlator{
		waiting:      make(map[string]*pending),
		lateEvents:   make(map[string]Event),
		lateArrivals: make(map[string]time.Time),
		lateBuffer:   defaultLateEventBuffer,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register creates a wait slot for callID, to be called before dialing. If
// a late event for callID already arrived and is still within the buffer
// window, Register consumes it immediately and returns it.
func (c *Correlator) Register(callID string) (immediate *Event, waitCh <-chan Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev, ok := c.lateEvents[callID]; ok {
		delete(c.lateEvents, callID)
		delete(c.lateArrivals, callID)
		return &ev, nil
	}

	p := &pending{ch: make(chan Event, 1)}
	c.waiting[callID] = p
	return nil, p.ch
}

// Signal delivers ev to the worker awaiting ev.CallID and removes that
// registration. If no worker is currently registered (a late event racing
// ahead of Register, or a duplicate arriving after an earlier event was
// already handed over), the event is buffered for the configured late-event
// window. Among events buffered before Register, the latest one wins. An
// event already handed to a waiting worker is not replaced by a duplicate:
// the duplicate is only buffered, and PruneLateEvents drops it unless the
// same call_id is registered again.
func (c *Correlator) Signal(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.waiting[ev.CallID]; ok {
		delete(c.waiting, ev.CallID)
		// Buffered length 1 and sent to at most once per registration,
		// since the registration is removed above: the send never blocks.
		select {
		case p.ch <- ev:
		default:
		}
		return
	}

	c.lateEvents[ev.CallID] = ev
	c.lateArrivals[ev.CallID] = c.now()
}

// Forget removes a registration without waiting further, used when a
// worker gives up (timeout or cancellation) so the abandoned wait slot does
// not stay in the waiting map. An event arriving for callID afterwards is
// buffered as a late event until PruneLateEvents drops it.
func (c *Correlator) Forget(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.waiting, callID)
}

// PruneLateEvents drops buffered late events older than the configured
// buffer window. Callers should invoke this periodically (e.g. alongside
// the HTTP webhook handler) to bound memory from events that never found a
// waiting worker.
func (c *Correlator) PruneLateEvents() {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-c.lateBuffer)
	for key, arrived := range c.lateArrivals {
		if arrived.Before(cutoff) {
			delete(c.lateArrivals, key)
			delete(c.lateEvents, key)
		}
	}
}
