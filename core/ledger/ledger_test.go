package ledger

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medauth/core/storage"
	"medauth/types/ids"
)

func testHash(s string) ids.ID {
	return ids.NewID([]byte(s))
}

func TestAnchorIdempotent(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	h := testHash("record-1")

	first, err := l.Anchor(ctx, h)
	require.NoError(t, err)
	assert.False(t, first.AlreadyAnchored)
	assert.NotEmpty(t, first.LedgerRef)

	second, err := l.Anchor(ctx, h)
	require.NoError(t, err)
	assert.True(t, second.AlreadyAnchored, "re-anchoring an anchored hash is a success, not an error")
	assert.Equal(t, first.LedgerRef, second.LedgerRef, "re-anchor returns the original receipt")

	anchored, err := l.IsAnchored(ctx, h)
	require.NoError(t, err)
	assert.True(t, anchored)
}

func TestAnchorUnavailable(t *testing.T) {
	l := NewMemoryLedger()
	l.Down = true
	ctx := context.Background()

	_, err := l.Anchor(ctx, testHash("r"))
	assert.ErrorIs(t, err, ErrLedgerUnavailable)

	_, err = l.IsAnchored(ctx, testHash("r"))
	assert.ErrorIs(t, err, ErrLedgerUnavailable,
		"unreachable ledger must be distinguishable from a definitive not-anchored")
}

func TestIsAnchoredFalseForUnknown(t *testing.T) {
	l := NewMemoryLedger()
	anchored, err := l.IsAnchored(context.Background(), testHash("never"))
	require.NoError(t, err)
	assert.False(t, anchored)
}

func TestCoordinatorEnqueueDedupe(t *testing.T) {
	c := NewCoordinator(NewMemoryLedger(), nil, 0)
	h := testHash("r1")

	assert.True(t, c.Enqueue(h))
	assert.False(t, c.Enqueue(h), "duplicate enqueue is a no-op")
	assert.Equal(t, 1, c.PendingCount())
}

func TestCoordinatorEnqueueEvictsOldestAtCapacity(t *testing.T) {
	c := NewCoordinator(NewMemoryLedger(), nil, 2)
	h1, h2, h3 := testHash("r1"), testHash("r2"), testHash("r3")
	c.Enqueue(h1)
	c.Enqueue(h2)
	c.Enqueue(h3)
	assert.Equal(t, 2, c.PendingCount())
	assert.False(t, c.Enqueue(h2))
	assert.False(t, c.Enqueue(h3))
	// h1 was the oldest and got evicted, so it can be enqueued again.
	assert.True(t, c.Enqueue(h1))
}

func TestCoordinatorFlushDrainsQueue(t *testing.T) {
	l := NewMemoryLedger()
	c := NewCoordinator(l, nil, 0)
	ctx := context.Background()

	hashes := []ids.ID{testHash("r1"), testHash("r2"), testHash("r3")}
	for _, h := range hashes {
		c.Enqueue(h)
	}

	results := c.Flush(ctx)
	require.Len(t, results, len(hashes))
	for h, res := range results {
		require.NoError(t, res.Err, "hash %s", h)
		require.NotNil(t, res.Receipt)
	}
	assert.Equal(t, 0, c.PendingCount(), "successes leave the queue")

	for _, h := range hashes {
		anchored, err := l.IsAnchored(ctx, h)
		require.NoError(t, err)
		assert.True(t, anchored)
	}
}

func TestCoordinatorFlushKeepsFailures(t *testing.T) {
	l := NewMemoryLedger()
	l.Down = true
	c := NewCoordinator(l, nil, 0)
	ctx := context.Background()

	h := testHash("r1")
	c.Enqueue(h)

	results := c.Flush(ctx)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[h].Err, ErrLedgerUnavailable)
	assert.Equal(t, 1, c.PendingCount(), "failures stay queued for the next attempt")

	// Ledger comes back; the retry drains the queue.
	l.Down = false
	results = c.Flush(ctx)
	require.NoError(t, results[h].Err)
	assert.Equal(t, 0, c.PendingCount())
}

func TestAnchorManyPartialInputDedupe(t *testing.T) {
	l := NewMemoryLedger()
	c := NewCoordinator(l, nil, 0)
	ctx := context.Background()

	h := testHash("r1")
	results := c.AnchorMany(ctx, []ids.ID{h, h, h})
	require.Len(t, results, 1)
	require.NoError(t, results[h].Err)
}

func TestAnchorManyAlreadyAnchored(t *testing.T) {
	l := NewMemoryLedger()
	c := NewCoordinator(l, nil, 0)
	ctx := context.Background()

	h := testHash("r1")
	_, err := l.Anchor(ctx, h)
	require.NoError(t, err)

	results := c.AnchorMany(ctx, []ids.ID{h})
	require.NoError(t, results[h].Err)
	assert.True(t, results[h].Receipt.AlreadyAnchored)
}

// perHashClient wraps MemoryLedger but hides AnchorBatch, forcing the
// coordinator down its per-hash fallback path.
type perHashClient struct {
	inner *MemoryLedger
}

func (c perHashClient) Anchor(ctx context.Context, hash ids.ID) (Receipt, error) {
	return c.inner.Anchor(ctx, hash)
}

func (c perHashClient) IsAnchored(ctx context.Context, hash ids.ID) (bool, error) {
	return c.inner.IsAnchored(ctx, hash)
}

func TestAnchorManyPerHashFallback(t *testing.T) {
	l := NewMemoryLedger()
	c := NewCoordinator(perHashClient{inner: l}, nil, 0)
	ctx := context.Background()

	hashes := []ids.ID{testHash("r1"), testHash("r2")}
	results := c.AnchorMany(ctx, hashes)
	require.Len(t, results, 2)
	for _, h := range hashes {
		require.NoError(t, results[h].Err)
		anchored, err := l.IsAnchored(ctx, h)
		require.NoError(t, err)
		assert.True(t, anchored)
	}

	// Each result must carry its own receipt, not an alias of the last one.
	r1, r2 := results[hashes[0]].Receipt, results[hashes[1]].Receipt
	assert.Equal(t, hashes[0], r1.Hash)
	assert.Equal(t, hashes[1], r2.Hash)
	assert.NotEqual(t, r1.LedgerRef, r2.LedgerRef)
}

func TestAnchorManyCachesReceipts(t *testing.T) {
	dek := make([]byte, 32)
	t.Setenv("MEDAUTH_DEK", base64.StdEncoding.EncodeToString(dek))
	db, err := storage.NewStorage(t.TempDir() + "/db")
	require.NoError(t, err)
	defer db.Close()

	l := NewMemoryLedger()
	c := NewCoordinator(l, db, 0)
	ctx := context.Background()

	hashes := []ids.ID{testHash("r1"), testHash("r2")}
	results := c.AnchorMany(ctx, hashes)
	for _, h := range hashes {
		require.NoError(t, results[h].Err)
	}

	// The batch receipts were cached, so anchoring state stays answerable
	// even when the ledger goes away.
	l.Down = true
	for _, h := range hashes {
		anchored, err := c.IsAnchored(ctx, h)
		require.NoError(t, err)
		assert.True(t, anchored)
	}
}

func TestBatchRef(t *testing.T) {
	hashes := []ids.ID{testHash("a"), testHash("b"), testHash("c")}
	ref := batchRef(hashes)
	assert.NotEmpty(t, ref)
	assert.Equal(t, ref, batchRef(hashes), "batch reference is deterministic")
	assert.NotEqual(t, ref, batchRef(hashes[:2]))
	assert.Empty(t, batchRef(nil))
}

func TestCoordinatorManyPending(t *testing.T) {
	l := NewMemoryLedger()
	c := NewCoordinator(l, nil, 0)
	for i := 0; i < 100; i++ {
		c.Enqueue(testHash(fmt.Sprintf("record-%d", i)))
	}
	assert.Equal(t, 100, c.PendingCount())

	results := c.Flush(context.Background())
	assert.Len(t, results, 100)
	assert.Equal(t, 0, c.PendingCount())
}
