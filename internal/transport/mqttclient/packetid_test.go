package mqttclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketIDAllocatorNeverReturnsZero(t *testing.T) {
	a := newPacketIDAllocator()
	for i := 0; i < 1000; i++ {
		id, err := a.allocate()
		require.NoError(t, err)
		assert.NotEqual(t, uint16(0), id)
		a.release(id)
	}
}

func TestPacketIDAllocatorDoesNotReuseWhileInflight(t *testing.T) {
	a := newPacketIDAllocator()
	seen := make(map[uint16]bool)
	for i := 0; i < 100; i++ {
		id, err := a.allocate()
		require.NoError(t, err)
		assert.False(t, seen[id], "packet id %d reused while still inflight", id)
		seen[id] = true
	}
}

func TestPacketIDAllocatorWrapsPast65535(t *testing.T) {
	a := newPacketIDAllocator()
	a.setNext(65535)

	id, err := a.allocate()
	require.NoError(t, err)
	assert.Equal(t, uint16(65535), id)

	id, err = a.allocate()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), id, "allocator must wrap past 65535 back to 1, never 0")
}

func TestPacketIDAllocatorReleaseAllowsReuse(t *testing.T) {
	a := newPacketIDAllocator()
	id, err := a.allocate()
	require.NoError(t, err)
	a.release(id)
	a.setNext(id)

	reused, err := a.allocate()
	require.NoError(t, err)
	assert.Equal(t, id, reused)
}

func TestPacketIDAllocatorExhaustionReturnsError(t *testing.T) {
	a := newPacketIDAllocator()
	for i := 0; i < 65535; i++ {
		_, err := a.allocate()
		require.NoError(t, err)
	}
	_, err := a.allocate()
	assert.Error(t, err)
}
