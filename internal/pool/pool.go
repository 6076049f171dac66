// Package pool implements the per-backend connection pool: idle
// MRU/LRU tracking, health-scored probing, a maintenance goroutine, and
// DNS-cache-backed dialing, shared by every client-side transport.
package pool

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"sync"
	"time"

	"github.com/jonwraymond/mcp-runtime/internal/dnscache"
	"github.com/jonwraymond/mcp-runtime/internal/errs"
	"github.com/jonwraymond/mcp-runtime/internal/framing"
)

// Config is a pool's immutable configuration.
type Config struct {
	Host                 string
	Port                 string
	Min                  int
	Max                  int
	IdleTimeout          time.Duration
	ConnectTimeout       time.Duration
	HealthCheckInterval  time.Duration
	HealthCheckTimeout   time.Duration
	MaintenanceInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = time.Second
	}
	if c.Max <= 0 {
		c.Max = 1
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	if c.HealthCheckTimeout <= 0 {
		c.HealthCheckTimeout = 2 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	return c
}

const maintenanceBatchSize = 16

// PooledConnection wraps a dialed socket with the bookkeeping the pool
// needs: last-use/last-check timestamps, a health score in [0,100], a
// use counter, and the idle list's doubly-linked-list pointers.
//
// Invariant: a connection is reachable from exactly one of the idle
// list, a caller holding it after Get, or neither (closed). During a
// maintenance health probe it is unlinked from the idle list first, so
// Get can never hand out a connection whose read deadline a concurrent
// probe is manipulating.
type PooledConnection struct {
	conn   net.Conn
	reader *bufio.Reader

	lastUsedAt        time.Time
	lastHealthCheckAt time.Time
	healthScore       int
	useCount          uint32
	beingChecked      bool

	prev, next *PooledConnection
}

// Conn returns the underlying socket.
func (pc *PooledConnection) Conn() net.Conn { return pc.conn }

// Reader returns the buffered reader wrapping Conn, which health probes
// peek through without consuming bytes a transport still needs.
func (pc *PooledConnection) Reader() *bufio.Reader { return pc.reader }

// HealthScore reports the current score, for observability.
func (pc *PooledConnection) HealthScore() int { return pc.healthScore }

// probe implements the spec's readability-or-error check: peek one byte
// without consuming it. A read timeout (would-block) means healthy; EOF
// means the peer closed the connection; any other error is unhealthy.
// A successful peek of unsolicited data is treated as healthy — the
// connection is plainly alive, and the byte stays buffered for whoever
// next reads from it.
func (pc *PooledConnection) probe(timeout time.Duration) bool {
	_ = pc.conn.SetReadDeadline(time.Now().Add(timeout))
	defer pc.conn.SetReadDeadline(time.Time{})

	_, err := pc.reader.Peek(1)
	switch {
	case err == nil:
		return true
	case errors.Is(err, io.EOF):
		return false
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return false
	}
}

func scoreOnPass(score int, useCount uint32) int {
	usageBonus := math.Min(1.5, 1+float64(useCount)/20)
	delta := int(math.Max(1, float64(100-score)/5*usageBonus))
	score += delta
	if score > 100 {
		score = 100
	}
	return score
}

func scoreOnFail(score int, useCount uint32) int {
	penalty := math.Max(10, float64(score)/4)
	if useCount > 10 {
		penalty *= 0.8
	}
	score -= int(penalty)
	if score < 0 {
		score = 0
	}
	return score
}

func isUnhealthy(score int, useCount uint32) bool {
	threshold := 50
	if useCount > 20 {
		threshold -= 5
	}
	return score <= threshold
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	IdleCount   int
	ActiveCount int
	TotalCount  int
	Created     uint64
	Closed      uint64
	Gets        uint64
	Timeouts    uint64
	Errors      uint64
	WaitTimeMs  uint64
}

// Pool is a connection pool for one (host, port) backend.
type Pool struct {
	cfg Config
	dns *dnscache.Cache

	mu           sync.Mutex
	cond         *sync.Cond
	idleHead     *PooledConnection
	idleTail     *PooledConnection
	idleCount    int
	activeCount  int
	shuttingDown bool
	stats        Stats

	maintDone chan struct{}
	maintWG   sync.WaitGroup
}

// New constructs a pool and starts its maintenance goroutine, which
// immediately runs one cycle to top up to Min before returning.
func New(cfg Config, dns *dnscache.Cache) *Pool {
	cfg = cfg.withDefaults()
	head := &PooledConnection{}
	tail := &PooledConnection{}
	head.next = tail
	tail.prev = head

	p := &Pool{
		cfg:       cfg,
		dns:       dns,
		idleHead:  head,
		idleTail:  tail,
		maintDone: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	p.runMaintenanceCycle()

	p.maintWG.Add(1)
	go p.maintain()
	return p
}

func (p *Pool) totalCountLocked() int { return p.idleCount + p.activeCount }

func (p *Pool) pushMRU(pc *PooledConnection) {
	pc.prev = p.idleHead
	pc.next = p.idleHead.next
	p.idleHead.next.prev = pc
	p.idleHead.next = pc
}

func (p *Pool) unlink(pc *PooledConnection) {
	pc.prev.next = pc.next
	pc.next.prev = pc.prev
	pc.prev, pc.next = nil, nil
}

// Get returns an idle connection if one is available, dials a fresh one
// if the pool has room, or blocks until a slot frees up or ctx is done.
// On a saturated pool with an already-expired ctx, it fails immediately
// without attempting any I/O.
func (p *Pool) Get(ctx context.Context) (*PooledConnection, error) {
	start := time.Now()

	p.mu.Lock()
	for {
		if p.shuttingDown {
			p.mu.Unlock()
			return nil, errs.New(errs.KindShutdown, "pool: shutting down")
		}

		if p.idleCount > 0 {
			pc := p.idleHead.next
			p.unlink(pc)
			p.idleCount--
			p.activeCount++
			p.stats.Gets++
			p.stats.WaitTimeMs += uint64(time.Since(start).Milliseconds())
			p.mu.Unlock()

			pc.lastUsedAt = time.Now()
			pc.useCount++
			return pc, nil
		}

		if p.totalCountLocked() < p.cfg.Max {
			p.activeCount++
			p.mu.Unlock()

			pc, err := p.dial(ctx)

			p.mu.Lock()
			if err != nil {
				p.activeCount--
				p.stats.Errors++
				p.cond.Broadcast()
				p.mu.Unlock()
				return nil, errs.Wrap(errs.KindTransport, "pool: dial failed", err)
			}
			p.stats.Created++
			p.stats.Gets++
			p.stats.WaitTimeMs += uint64(time.Since(start).Milliseconds())
			p.mu.Unlock()
			return pc, nil
		}

		if err := ctx.Err(); err != nil {
			p.stats.Timeouts++
			p.mu.Unlock()
			return nil, errs.Wrap(errs.KindTimeout, "pool: get: saturated and deadline exceeded", err)
		}

		stop := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				p.mu.Lock()
				p.cond.Broadcast()
				p.mu.Unlock()
			case <-stop:
			}
		}()
		p.cond.Wait()
		close(stop)
	}
}

// Release returns pc to the idle list if valid, or closes it. The
// active count is decremented unconditionally, matching the spec's
// accounting contract.
func (p *Pool) Release(pc *PooledConnection, valid bool) {
	p.mu.Lock()
	p.activeCount--
	closeNow := !valid || p.shuttingDown
	if !closeNow {
		pc.lastUsedAt = time.Now()
		p.pushMRU(pc)
		p.idleCount++
	}
	p.cond.Signal()
	p.mu.Unlock()

	if closeNow {
		pc.conn.Close()
		p.mu.Lock()
		p.stats.Closed++
		p.mu.Unlock()
	}
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.IdleCount = p.idleCount
	s.ActiveCount = p.activeCount
	s.TotalCount = p.idleCount + p.activeCount
	return s
}

// Close shuts the pool down: refuses new Gets, wakes all waiters with
// failure, closes every idle connection, and joins the maintenance
// goroutine before returning.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.shuttingDown {
		p.mu.Unlock()
		return nil
	}
	p.shuttingDown = true
	p.cond.Broadcast()

	for pc := p.idleHead.next; pc != p.idleTail; {
		next := pc.next
		pc.conn.Close()
		p.stats.Closed++
		pc = next
	}
	p.idleHead.next = p.idleTail
	p.idleTail.prev = p.idleHead
	p.idleCount = 0
	p.mu.Unlock()

	close(p.maintDone)
	p.maintWG.Wait()
	return nil
}

func (p *Pool) dial(ctx context.Context) (*PooledConnection, error) {
	addrs, err := p.dns.Lookup(ctx, p.cfg.Host, p.cfg.Port)
	if err != nil {
		return nil, err
	}
	p.dns.Release(p.cfg.Host, p.cfg.Port)
	if len(addrs) == 0 {
		return nil, errs.New(errs.KindTransport, "pool: no addresses resolved for "+p.cfg.Host)
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", net.JoinHostPort(addrs[0], p.cfg.Port))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &PooledConnection{
		conn:              conn,
		reader:            framing.BufferedReader(conn),
		lastUsedAt:        now,
		lastHealthCheckAt: now,
		healthScore:       100,
	}, nil
}

func (p *Pool) maintain() {
	defer p.maintWG.Done()
	ticker := time.NewTicker(p.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.maintDone:
			return
		case <-ticker.C:
			p.runMaintenanceCycle()
		}
	}
}

func (p *Pool) runMaintenanceCycle() {
	p.mu.Lock()
	if p.shuttingDown {
		p.mu.Unlock()
		return
	}

	now := time.Now()

	// 1. Expire idle connections past idle_timeout, walking from the LRU tail.
	for pc := p.idleTail.prev; pc != p.idleHead; {
		prev := pc.prev
		if now.Sub(pc.lastUsedAt) > p.cfg.IdleTimeout {
			p.unlink(pc)
			p.idleCount--
			p.mu.Unlock()
			pc.conn.Close()
			p.mu.Lock()
			p.stats.Closed++
		}
		pc = prev
	}

	// 2. Select up to a batch of idle connections due for a health check,
	// unlinking them so Get can't hand one out mid-probe.
	var toCheck []*PooledConnection
	for pc := p.idleHead.next; pc != p.idleTail && len(toCheck) < maintenanceBatchSize; {
		next := pc.next
		if now.Sub(pc.lastHealthCheckAt) > p.cfg.HealthCheckInterval {
			p.unlink(pc)
			p.idleCount--
			pc.beingChecked = true
			toCheck = append(toCheck, pc)
		}
		pc = next
	}
	p.mu.Unlock()

	var unhealthy []*PooledConnection
	for _, pc := range toCheck {
		checkStart := time.Now()
		ok := pc.probe(p.cfg.HealthCheckTimeout)
		elapsed := time.Since(checkStart)
		if elapsed > 100*time.Millisecond {
			slog.Warn("pool: slow health probe", "elapsed_ms", elapsed.Milliseconds())
		}

		p.mu.Lock()
		pc.beingChecked = false
		pc.lastHealthCheckAt = time.Now()
		if ok {
			pc.healthScore = scoreOnPass(pc.healthScore, pc.useCount)
		} else {
			pc.healthScore = scoreOnFail(pc.healthScore, pc.useCount)
		}
		if p.shuttingDown || isUnhealthy(pc.healthScore, pc.useCount) {
			unhealthy = append(unhealthy, pc)
		} else {
			p.pushMRU(pc)
			p.idleCount++
			p.cond.Signal()
		}
		p.mu.Unlock()
	}
	for _, pc := range unhealthy {
		pc.conn.Close()
		p.mu.Lock()
		p.stats.Closed++
		p.mu.Unlock()
	}

	// 3. Top the pool back up to Min, dialing with the lock released.
	for {
		p.mu.Lock()
		if p.shuttingDown || p.totalCountLocked() >= p.cfg.Min {
			p.mu.Unlock()
			return
		}
		p.activeCount++
		p.mu.Unlock()

		pc, err := p.dial(context.Background())

		p.mu.Lock()
		p.activeCount--
		if err != nil {
			p.stats.Errors++
			p.mu.Unlock()
			slog.Warn("pool: top-up dial failed", "host", p.cfg.Host, "port", p.cfg.Port, "error", err)
			return
		}
		p.stats.Created++
		p.pushMRU(pc)
		p.idleCount++
		p.cond.Signal()
		p.mu.Unlock()
	}
}
