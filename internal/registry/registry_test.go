package registry_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/mcp-runtime/internal/jsonrpc"
	"github.com/jonwraymond/mcp-runtime/internal/registry"
)

func TestAddCompleteAwaitRoundTrip(t *testing.T) {
	r := registry.New()
	id := r.NextID()

	n, err := r.Add(id)
	require.NoError(t, err)

	go func() {
		r.Complete(id, json.RawMessage(`{"ok":true}`))
	}()

	res, err := r.Await(context.Background(), id, n)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusCompleted, res.Status)
	assert.JSONEq(t, `{"ok":true}`, string(res.Payload))
}

func TestAwaitTimesOutWithoutCompletion(t *testing.T) {
	r := registry.New()
	id := r.NextID()
	n, err := r.Add(id)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := r.Await(ctx, id, n)
	require.Error(t, err)
	assert.Equal(t, registry.StatusTimeout, res.Status)
	assert.Equal(t, 0, r.Count())
}

func TestFailWakesAwaitWithError(t *testing.T) {
	r := registry.New()
	id := r.NextID()
	n, err := r.Add(id)
	require.NoError(t, err)

	go r.Fail(id, -32000, "boom")

	_, err = r.Await(context.Background(), id, n)
	require.Error(t, err)
}

func TestAddRejectsDuplicateID(t *testing.T) {
	r := registry.New()
	id := r.NextID()
	_, err := r.Add(id)
	require.NoError(t, err)

	_, err = r.Add(id)
	assert.Error(t, err)
}

func TestAddRejectsReservedZeroID(t *testing.T) {
	r := registry.New()
	_, err := r.Add(jsonrpc.ID(0))
	assert.Error(t, err)
}

func TestRemoveThenReuseIDIsLegal(t *testing.T) {
	r := registry.New()
	id := r.NextID()
	_, err := r.Add(id)
	require.NoError(t, err)
	require.True(t, r.Remove(id))

	// The slot is now a tombstone; re-adding the same id must succeed
	// rather than being treated as a duplicate.
	_, err = r.Add(id)
	assert.NoError(t, err)
}

func TestRegistryGrowsPastInitialCapacity(t *testing.T) {
	r := registry.New()
	var notifiers []struct {
		id jsonrpc.ID
	}
	for i := 0; i < 100; i++ {
		id := r.NextID()
		_, err := r.Add(id)
		require.NoError(t, err)
		notifiers = append(notifiers, struct{ id jsonrpc.ID }{id})
	}
	assert.Equal(t, 100, r.Count())

	for _, n := range notifiers {
		assert.True(t, r.Remove(n.id))
	}
	assert.Equal(t, 0, r.Count())
}

func TestSendAndWaitDeliversResponse(t *testing.T) {
	r := registry.New()

	var mu sync.Mutex
	var sent jsonrpc.Request

	send := func(req jsonrpc.Request) error {
		mu.Lock()
		sent = req
		mu.Unlock()
		go r.Complete(req.ID, json.RawMessage(`{"value":42}`))
		return nil
	}

	req, err := jsonrpc.NewRequest(r.NextID(), "ping", nil)
	require.NoError(t, err)

	res, err := r.SendAndWait(context.Background(), req, time.Second, send)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusCompleted, res.Status)
	assert.JSONEq(t, `{"value":42}`, string(res.Payload))

	mu.Lock()
	assert.Equal(t, "ping", sent.Method)
	mu.Unlock()
}

func TestNewWithCapacityAcceptsManyConcurrentEntries(t *testing.T) {
	r := registry.NewWithCapacity(200)

	ids := make([]jsonrpc.ID, 0, 150)
	for i := 0; i < 150; i++ {
		id := r.NextID()
		_, err := r.Add(id)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	assert.Equal(t, 150, r.Count())
	for _, id := range ids {
		assert.True(t, r.Remove(id))
	}
}

func TestNewWithCapacityBelowMinimumBehavesLikeNew(t *testing.T) {
	r := registry.NewWithCapacity(0)
	id := r.NextID()

	n, err := r.Add(id)
	require.NoError(t, err)

	go r.Complete(id, json.RawMessage(`{}`))

	res, err := r.Await(context.Background(), id, n)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusCompleted, res.Status)
}

func TestSendAndWaitPropagatesSendError(t *testing.T) {
	r := registry.New()
	req, err := jsonrpc.NewRequest(r.NextID(), "ping", nil)
	require.NoError(t, err)

	send := func(jsonrpc.Request) error { return assert.AnError }

	_, err = r.SendAndWait(context.Background(), req, time.Second, send)
	require.Error(t, err)
	assert.Equal(t, 0, r.Count())
}
