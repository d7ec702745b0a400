package ledger

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingDeposits_putAndTake(t *testing.T) {
	pending := newPendingDeposits(8)

	pending.put("tx-1", "activity-1")
	pending.put("tx-2", "activity-2")
	require.Equal(t, 2, pending.len())

	id, ok := pending.take("tx-1")
	require.True(t, ok)
	assert.Equal(t, "activity-1", id)
	assert.Equal(t, 1, pending.len())

	_, ok = pending.take("tx-1")
	assert.False(t, ok, "taken entries are gone")
}

func TestPendingDeposits_takeMiss(t *testing.T) {
	pending := newPendingDeposits(8)

	_, ok := pending.take("tx-unknown")
	assert.False(t, ok)
}

func TestPendingDeposits_putSameKeyOverwrites(t *testing.T) {
	pending := newPendingDeposits(8)

	pending.put("tx-1", "activity-1")
	pending.put("tx-1", "activity-2")
	require.Equal(t, 1, pending.len())

	id, ok := pending.take("tx-1")
	require.True(t, ok)
	assert.Equal(t, "activity-2", id)
}

func TestPendingDeposits_evictsOldestBeyondCapacity(t *testing.T) {
	pending := newPendingDeposits(3)

	for i := range 4 {
		key := "tx-" + strconv.Itoa(i)
		pending.put(key, "activity-"+strconv.Itoa(i))
	}
	require.Equal(t, 3, pending.len())

	_, ok := pending.take("tx-0")
	assert.False(t, ok, "oldest entry evicted")

	id, ok := pending.take("tx-3")
	require.True(t, ok)
	assert.Equal(t, "activity-3", id)
}
