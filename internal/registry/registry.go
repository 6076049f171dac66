// Package registry implements the pending-request registry: an
// open-addressed hash table pairing outbound request IDs with waiting
// callers, shared by every client-side transport in this module.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/mcp-runtime/internal/errs"
	"github.com/jonwraymond/mcp-runtime/internal/framing"
	"github.com/jonwraymond/mcp-runtime/internal/jsonrpc"
)

// Status is a pending entry's lifecycle state.
type Status int

const (
	StatusWaiting Status = iota
	StatusCompleted
	StatusError
	StatusTimeout
	// StatusInvalid marks a tombstone.
	StatusInvalid
)

type slotState int

const (
	slotEmpty slotState = iota
	slotOccupied
	slotTombstone
)

type entry struct {
	state      slotState
	id         jsonrpc.ID
	status     Status
	result     json.RawMessage
	errCode    int
	errMessage string
	notifier   *framing.Notifier
}

const (
	defaultInitialCapacity = 16
	maxLoadFactor          = 0.75
)

// Registry is a pending-request hash table. All access is serialized by mu.
// One Registry is owned exclusively by one client instance.
type Registry struct {
	mu       sync.Mutex
	slots    []entry
	count    int
	nextID   uint64
	capacity uint64
}

// New returns an empty registry with a power-of-two initial capacity.
func New() *Registry {
	return NewWithCapacity(defaultInitialCapacity)
}

// NewWithCapacity returns an empty registry whose initial slot table
// has at least minCapacity slots, rounded up to the next power of two
// and never fewer than 16. The table still doubles once an insert would
// bring its load to 75%, so fewer than three quarters of those slots
// are filled before the first resize. Deployments with a well-known steady
// concurrent-request count use this to skip the early resize-doubling
// New() would otherwise do on startup.
func NewWithCapacity(minCapacity uint64) *Registry {
	capacity := uint64(defaultInitialCapacity)
	for capacity < minCapacity {
		capacity *= 2
	}
	return &Registry{
		slots:    make([]entry, capacity),
		capacity: capacity,
		nextID:   1,
	}
}

// NextID returns the next monotonically increasing request ID, skipping
// the reserved sentinel 0.
func (r *Registry) NextID() jsonrpc.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	return jsonrpc.ID(id)
}

func hash(id jsonrpc.ID, capacity uint64) uint64 {
	return uint64(id) & (capacity - 1)
}

// find locates the slot for id. With forInsert=false it returns the
// occupied slot matching id, or -1 if absent (tombstones are probed
// through, never matched). With forInsert=true it returns the first
// tombstone encountered before the key is confirmed absent, or else the
// terminating empty slot; if id is already occupied it returns that slot's
// index with ok=true so callers can detect a duplicate add.
func (r *Registry) find(id jsonrpc.ID, forInsert bool) (idx int, occupied bool) {
	capacity := uint64(len(r.slots))
	start := hash(id, capacity)
	firstTombstone := -1

	for probe := uint64(0); probe < capacity; probe++ {
		i := (start + probe) % capacity
		switch r.slots[i].state {
		case slotEmpty:
			if forInsert {
				if firstTombstone >= 0 {
					return firstTombstone, false
				}
				return int(i), false
			}
			return -1, false
		case slotTombstone:
			if forInsert && firstTombstone < 0 {
				firstTombstone = int(i)
			}
			continue
		case slotOccupied:
			if r.slots[i].id == id {
				return int(i), true
			}
		}
	}
	// Table fully probed without an empty slot: only reachable if resize
	// failed to keep load factor bounded, an internal invariant violation.
	if forInsert && firstTombstone >= 0 {
		return firstTombstone, false
	}
	return -1, false
}

// Add inserts a new waiting entry for id. It resizes first if the
// insertion would reach load factor >= 0.75.
func (r *Registry) Add(id jsonrpc.ID) (*framing.Notifier, error) {
	if id == 0 {
		return nil, errs.New(errs.KindInternal, "registry: id 0 is reserved and must never be inserted")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if float64(r.count+1)/float64(len(r.slots)) >= maxLoadFactor {
		if err := r.resizeLocked(); err != nil {
			return nil, err
		}
	}

	idx, occupied := r.find(id, true)
	if occupied {
		return nil, errs.New(errs.KindInternal, fmt.Sprintf("registry: duplicate request id %d", id))
	}
	if idx < 0 {
		return nil, errs.New(errs.KindInternal, "registry: hash table full after resize")
	}

	n := framing.NewNotifier()
	r.slots[idx] = entry{state: slotOccupied, id: id, status: StatusWaiting, notifier: n}
	r.count++
	return n, nil
}

func (r *Registry) resizeLocked() error {
	old := r.slots
	newCap := uint64(len(old)) * 2
	newSlots := make([]entry, newCap)

	rehash := func(slots []entry, id jsonrpc.ID) (int, bool) {
		capacity := uint64(len(slots))
		start := hash(id, capacity)
		for probe := uint64(0); probe < capacity; probe++ {
			i := (start + probe) % capacity
			if slots[i].state == slotEmpty {
				return int(i), true
			}
		}
		return -1, false
	}

	for _, e := range old {
		if e.state != slotOccupied {
			continue
		}
		idx, ok := rehash(newSlots, e.id)
		if !ok {
			return errs.New(errs.KindInternal, "registry: failed to rehash entry during resize")
		}
		newSlots[idx] = e
	}

	r.slots = newSlots
	r.capacity = newCap
	return nil
}

// Remove transitions id's slot to Invalid (tombstone), destroys its
// notifier, and decrements count. The bucket's id is retained in the
// tombstone so later probes through it still succeed, but a later Add for
// the same id treats the slot as reusable (the tombstone is not a
// duplicate): this repository resolves the "should a reused id be treated
// as a duplicate" ambiguity in favor of reuse being legal.
func (r *Registry) Remove(id jsonrpc.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, occupied := r.find(id, false)
	if !occupied {
		return false
	}
	r.slots[idx].state = slotTombstone
	r.slots[idx].notifier = nil
	r.slots[idx].result = nil
	r.count--
	return true
}

// Count returns the number of non-tombstone, non-empty entries.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Complete marks a waiting entry successful and wakes its waiter.
func (r *Registry) Complete(id jsonrpc.ID, result json.RawMessage) bool {
	r.mu.Lock()
	idx, occupied := r.find(id, false)
	if !occupied || r.slots[idx].status != StatusWaiting {
		r.mu.Unlock()
		return false
	}
	r.slots[idx].status = StatusCompleted
	r.slots[idx].result = result
	n := r.slots[idx].notifier
	r.mu.Unlock()

	if n != nil {
		n.Signal()
	}
	return true
}

// Fail marks a waiting entry as errored and wakes its waiter.
func (r *Registry) Fail(id jsonrpc.ID, code int, message string) bool {
	r.mu.Lock()
	idx, occupied := r.find(id, false)
	if !occupied || r.slots[idx].status != StatusWaiting {
		r.mu.Unlock()
		return false
	}
	r.slots[idx].status = StatusError
	r.slots[idx].errCode = code
	r.slots[idx].errMessage = message
	n := r.slots[idx].notifier
	r.mu.Unlock()

	if n != nil {
		n.Signal()
	}
	return true
}

// Result is what a caller receives after a successful Await.
type Result struct {
	Status     Status
	Payload    json.RawMessage
	ErrorCode  int
	ErrorText  string
}

// Await blocks on id's notifier until the dispatcher completes/fails it or
// ctx elapses, then removes the entry unconditionally before returning.
func (r *Registry) Await(ctx context.Context, id jsonrpc.ID, notifier *framing.Notifier) (Result, error) {
	defer r.Remove(id)

	signaled, err := notifier.Wait(ctx)
	if !signaled {
		r.mu.Lock()
		if idx, occupied := r.find(id, false); occupied {
			r.slots[idx].status = StatusTimeout
		}
		r.mu.Unlock()
		return Result{Status: StatusTimeout}, errs.Wrap(errs.KindTimeout, "registry: request timed out", err)
	}

	r.mu.Lock()
	idx, occupied := r.find(id, false)
	if !occupied {
		r.mu.Unlock()
		return Result{}, errs.New(errs.KindInternal, "registry: entry vanished before removal")
	}
	e := r.slots[idx]
	r.mu.Unlock()

	switch e.status {
	case StatusCompleted:
		return Result{Status: StatusCompleted, Payload: e.result}, nil
	case StatusError:
		return Result{Status: StatusError, ErrorCode: e.errCode, ErrorText: e.errMessage},
			errs.New(errs.KindTransport, e.errMessage)
	default:
		return Result{Status: e.status}, errs.New(errs.KindInternal, "registry: entry in unexpected status on wakeup")
	}
}

// SendFunc performs the transport-specific write of a framed request.
type SendFunc func(jsonrpc.Request) error

// SendAndWait registers id, invokes send to write the request, and blocks
// until the response arrives or timeout elapses. It always removes the
// pending entry before returning, even on a send error.
func (r *Registry) SendAndWait(ctx context.Context, req jsonrpc.Request, timeout time.Duration, send SendFunc) (Result, error) {
	notifier, err := r.Add(req.ID)
	if err != nil {
		return Result{}, err
	}

	if err := send(req); err != nil {
		r.Remove(req.ID)
		return Result{}, errs.Wrap(errs.KindTransport, "registry: send failed", err)
	}

	waitCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return r.Await(waitCtx, req.ID, notifier)
}
