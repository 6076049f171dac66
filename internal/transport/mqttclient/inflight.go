package mqttclient

import (
	"sync"
	"time"
)

// InflightMessage is one QoS>0 publish awaiting broker acknowledgment,
// or awaiting retry after one hasn't arrived within RetryInterval.
type InflightMessage struct {
	PacketID uint16
	Topic    string
	Payload  []byte
	QoS      byte
	Retain   bool
	SentAt   time.Time
	Retries  uint32
}

// inflightTable is the set of messages currently awaiting acknowledgment,
// capped at a configured maximum. Guarded by its own mutex, separate
// from the packet-ID allocator's, per the spec's lock-ordering rule.
type inflightTable struct {
	mu      sync.Mutex
	entries map[uint16]*InflightMessage
	max     int
}

func newInflightTable(max int) *inflightTable {
	return &inflightTable{entries: make(map[uint16]*InflightMessage), max: max}
}

// tryAdd inserts msg if the table has room, returning false if the
// max-inflight cap would be exceeded.
func (t *inflightTable) tryAdd(msg *InflightMessage) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.entries) >= t.max {
		return false
	}
	t.entries[msg.PacketID] = msg
	return true
}

// remove drops the entry for id, returning it if present. Called on
// PUBACK (QoS 1) or PUBCOMP (QoS 2).
func (t *inflightTable) remove(id uint16) (*InflightMessage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return m, ok
}

func (t *inflightTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *inflightTable) snapshot() []*InflightMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*InflightMessage, 0, len(t.entries))
	for _, m := range t.entries {
		out = append(out, m)
	}
	return out
}

// restore replaces the table's contents wholesale, used by Connect when
// resuming a persisted session's in-flight list.
func (t *inflightTable) restore(msgs []*InflightMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[uint16]*InflightMessage, len(msgs))
	for _, m := range msgs {
		t.entries[m.PacketID] = m
	}
}

// dueForRetry returns entries that have waited at least timeout since
// their last send and have not exhausted maxRetries.
func (t *inflightTable) dueForRetry(timeout time.Duration, maxRetries uint32) []*InflightMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	var due []*InflightMessage
	for _, m := range t.entries {
		if now.Sub(m.SentAt) >= timeout && m.Retries < maxRetries {
			due = append(due, m)
		}
	}
	return due
}

// exhausted removes and returns the entries that have hit maxRetries
// without an ack.
func (t *inflightTable) exhausted(maxRetries uint32) []*InflightMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*InflightMessage
	for id, m := range t.entries {
		if m.Retries >= maxRetries {
			out = append(out, m)
			delete(t.entries, id)
		}
	}
	return out
}

func (t *inflightTable) markRetried(id uint16, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.entries[id]; ok {
		m.Retries++
		m.SentAt = at
	}
}
