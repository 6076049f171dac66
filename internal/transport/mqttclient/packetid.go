package mqttclient

import (
	"sync"

	"github.com/jonwraymond/mcp-runtime/internal/errs"
)

// packetIDAllocator hands out 16-bit packet IDs for QoS>0 publishes: it
// never returns 0, and never returns a value still held by a prior
// allocation that hasn't been released. Guarded by its own mutex per
// the spec's "separate mutexes for packet-ID allocation[...]" rule, so
// callers never need to hold any other lock to allocate one.
type packetIDAllocator struct {
	mu   sync.Mutex
	next uint16
	used map[uint16]struct{}
}

func newPacketIDAllocator() *packetIDAllocator {
	return &packetIDAllocator{next: 1, used: make(map[uint16]struct{})}
}

// allocate returns the next free packet ID, wrapping past 65535 back to
// 1. Returns an error if every one of the 65535 usable IDs is currently
// in flight.
func (a *packetIDAllocator) allocate() (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.next
	for {
		id := a.next
		a.advanceLocked()
		if _, taken := a.used[id]; !taken {
			a.used[id] = struct{}{}
			return id, nil
		}
		if a.next == start {
			return 0, errs.New(errs.KindTransport, "mqttclient: no free packet IDs")
		}
	}
}

func (a *packetIDAllocator) advanceLocked() {
	a.next++
	if a.next == 0 {
		a.next = 1
	}
}

func (a *packetIDAllocator) release(id uint16) {
	a.mu.Lock()
	delete(a.used, id)
	a.mu.Unlock()
}

// reserve marks id as in-use without consuming it from the sequence, used
// when restoring in-flight entries from a persisted session.
func (a *packetIDAllocator) reserve(id uint16) {
	a.mu.Lock()
	a.used[id] = struct{}{}
	a.mu.Unlock()
}

func (a *packetIDAllocator) setNext(id uint16) {
	a.mu.Lock()
	if id == 0 {
		id = 1
	}
	a.next = id
	a.mu.Unlock()
}

func (a *packetIDAllocator) lastIssued() uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	last := a.next - 1
	if last == 0 {
		last = 65535
	}
	return last
}
