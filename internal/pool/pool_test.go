package pool_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/mcp-runtime/internal/dnscache"
	"github.com/jonwraymond/mcp-runtime/internal/pool"
)

// listenLoopback starts an accept loop that holds every connection open
// (never writes, never closes) until the test is done, standing in for
// a well-behaved backend.
func listenLoopback(t *testing.T) (port string, closeAll func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var conns []net.Conn
	done := make(chan struct{})
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, c)
		}
	}()
	go func() {
		<-done
		ln.Close()
	}()

	_, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return p, func() {
		close(done)
		for _, c := range conns {
			c.Close()
		}
	}
}

func localDNS() *dnscache.Cache {
	c := dnscache.New(8, time.Minute)
	c.SetResolver(func(_ context.Context, host string) ([]string, error) {
		return []string{"127.0.0.1"}, nil
	})
	return c
}

func TestGetDialsWithinMax(t *testing.T) {
	port, closeAll := listenLoopback(t)
	defer closeAll()

	p := pool.New(pool.Config{
		Host: "127.0.0.1", Port: port, Min: 0, Max: 2,
		MaintenanceInterval: time.Hour,
	}, localDNS())
	defer p.Close()

	pc, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, pc.Conn())

	stats := p.Stats()
	assert.Equal(t, 1, stats.ActiveCount)
	assert.Equal(t, 0, stats.IdleCount)
}

func TestReleaseReusesIdleConnection(t *testing.T) {
	port, closeAll := listenLoopback(t)
	defer closeAll()

	p := pool.New(pool.Config{
		Host: "127.0.0.1", Port: port, Min: 0, Max: 2,
		MaintenanceInterval: time.Hour,
	}, localDNS())
	defer p.Close()

	pc1, err := p.Get(context.Background())
	require.NoError(t, err)
	local1 := pc1.Conn().LocalAddr().String()
	p.Release(pc1, true)

	assert.Equal(t, 1, p.Stats().IdleCount)

	pc2, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, local1, pc2.Conn().LocalAddr().String())
	assert.Equal(t, 0, p.Stats().IdleCount)
	assert.Equal(t, 1, p.Stats().ActiveCount)
}

func TestReleaseInvalidClosesConnection(t *testing.T) {
	port, closeAll := listenLoopback(t)
	defer closeAll()

	p := pool.New(pool.Config{
		Host: "127.0.0.1", Port: port, Min: 0, Max: 2,
		MaintenanceInterval: time.Hour,
	}, localDNS())
	defer p.Close()

	pc, err := p.Get(context.Background())
	require.NoError(t, err)
	p.Release(pc, false)

	assert.Equal(t, 0, p.Stats().IdleCount)
	assert.Equal(t, uint64(1), p.Stats().Closed)
}

func TestGetOnSaturatedPoolWithExpiredCtxFailsWithoutIO(t *testing.T) {
	port, closeAll := listenLoopback(t)
	defer closeAll()

	p := pool.New(pool.Config{
		Host: "127.0.0.1", Port: port, Min: 0, Max: 1,
		MaintenanceInterval: time.Hour,
	}, localDNS())
	defer p.Close()

	_, err := p.Get(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()

	start := time.Now()
	_, err = p.Get(ctx)
	elapsed := time.Since(start)
	require.Error(t, err)
	assert.Less(t, elapsed, 50*time.Millisecond)
}

func TestGetUnblocksWhenSlotFrees(t *testing.T) {
	port, closeAll := listenLoopback(t)
	defer closeAll()

	p := pool.New(pool.Config{
		Host: "127.0.0.1", Port: port, Min: 0, Max: 1,
		MaintenanceInterval: time.Hour,
	}, localDNS())
	defer p.Close()

	pc, err := p.Get(context.Background())
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, getErr := p.Get(ctx)
		result <- getErr
	}()

	time.Sleep(20 * time.Millisecond)
	p.Release(pc, true)

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Get never unblocked after Release")
	}
}

func TestCloseRejectsFurtherGets(t *testing.T) {
	port, closeAll := listenLoopback(t)
	defer closeAll()

	p := pool.New(pool.Config{
		Host: "127.0.0.1", Port: port, Min: 0, Max: 1,
		MaintenanceInterval: time.Hour,
	}, localDNS())

	require.NoError(t, p.Close())

	_, err := p.Get(context.Background())
	assert.Error(t, err)
}

func TestNewToppsUpToMin(t *testing.T) {
	port, closeAll := listenLoopback(t)
	defer closeAll()

	p := pool.New(pool.Config{
		Host: "127.0.0.1", Port: port, Min: 2, Max: 4,
		MaintenanceInterval: time.Hour,
	}, localDNS())
	defer p.Close()

	stats := p.Stats()
	assert.Equal(t, 2, stats.IdleCount)
	assert.Equal(t, 2, stats.TotalCount)
}

func TestTotalCountNeverExceedsMax(t *testing.T) {
	port, closeAll := listenLoopback(t)
	defer closeAll()

	p := pool.New(pool.Config{
		Host: "127.0.0.1", Port: port, Min: 0, Max: 3,
		MaintenanceInterval: time.Hour,
	}, localDNS())
	defer p.Close()

	var conns []*pool.PooledConnection
	for i := 0; i < 3; i++ {
		pc, err := p.Get(context.Background())
		require.NoError(t, err)
		conns = append(conns, pc)
	}
	assert.Equal(t, 3, p.Stats().TotalCount)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.Get(ctx)
	assert.Error(t, err)

	for _, pc := range conns {
		p.Release(pc, true)
	}
}
