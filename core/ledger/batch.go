package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"sync"
	"time"

	"medauth/core/storage"
	"medauth/types/ids"
)

// BatchClient is implemented by ledgers that accept many hashes in one
// submission. When the configured Client supports it, the coordinator
// amortizes ledger cost through it; otherwise it falls back to per-hash
// calls.
type BatchClient interface {
	AnchorBatch(ctx context.Context, hashes []ids.ID) (map[ids.ID]Receipt, error)
}

// Result is the per-hash outcome of a batch anchoring run. Exactly one of
// Receipt or Err is set; callers retry only the hashes whose Err is set.
type Result struct {
	Receipt *Receipt
	Err     error
}

// pendingAnchor tracks one queued submission with its retry history.
type pendingAnchor struct {
	Hash       string    `json:"hash"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"lastError,omitempty"`
}

// Coordinator owns the pending-anchor queue. Issuance drops hashes here
// when anchoring is asynchronous; Flush drains the queue in one batch and
// keeps only the failed subset for the next attempt.
type Coordinator struct {
	mu         sync.Mutex
	client     Client
	db         *storage.Storage // optional: anchor cache + queue persistence
	pending    map[ids.ID]*pendingAnchor
	order      []ids.ID // FIFO for eviction
	maxPending int
}

func NewCoordinator(client Client, db *storage.Storage, maxPending int) *Coordinator {
	if maxPending <= 0 {
		maxPending = 4096
	}
	return &Coordinator{
		client:     client,
		db:         db,
		pending:    make(map[ids.ID]*pendingAnchor),
		maxPending: maxPending,
	}
}

// Enqueue adds a hash to the pending queue (returns false if duplicate).
// At capacity the oldest entry is evicted, matching the node's
// append-mostly workload where old entries have been retried many times.
func (c *Coordinator) Enqueue(hash ids.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.pending[hash]; exists {
		return false
	}
	if len(c.pending) >= c.maxPending {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.pending, oldest)
		c.deleteQueued(oldest)
	}
	entry := &pendingAnchor{Hash: hash.String(), EnqueuedAt: time.Now().UTC()}
	c.pending[hash] = entry
	c.order = append(c.order, hash)
	c.persistQueued(hash, entry)
	return true
}

// PendingCount returns the number of queued hashes.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// AnchorMany anchors a set of hashes and reports per-hash results.
// Hashes already known anchored (local cache) are skipped before any
// ledger call; partial failure never masks the successes.
func (c *Coordinator) AnchorMany(ctx context.Context, hashes []ids.ID) map[ids.ID]Result {
	results := make(map[ids.ID]Result, len(hashes))

	var remainder []ids.ID
	seen := make(map[ids.ID]bool, len(hashes))
	for _, h := range hashes {
		if seen[h] {
			continue
		}
		seen[h] = true
		if rcpt, ok := c.cachedReceipt(h); ok {
			rcpt.AlreadyAnchored = true
			results[h] = Result{Receipt: &rcpt}
			continue
		}
		remainder = append(remainder, h)
	}
	if len(remainder) == 0 {
		return results
	}

	if bc, ok := c.client.(BatchClient); ok {
		receipts, err := bc.AnchorBatch(ctx, remainder)
		if err != nil {
			for _, h := range remainder {
				results[h] = Result{Err: err}
			}
			return results
		}
		c.cacheReceipts(receipts)
		for _, h := range remainder {
			rcpt, ok := receipts[h]
			if !ok {
				results[h] = Result{Err: ErrLedgerUnavailable}
				continue
			}
			results[h] = Result{Receipt: &rcpt}
		}
		log.Printf("[anchor] batch %s: %d submitted", batchRef(remainder), len(remainder))
		return results
	}

	for _, h := range remainder {
		rcpt, err := c.client.Anchor(ctx, h)
		if err != nil {
			results[h] = Result{Err: err}
			continue
		}
		c.cacheReceipt(rcpt)
		results[h] = Result{Receipt: &rcpt}
	}
	return results
}

// Flush drains the pending queue through AnchorMany. Successes leave the
// queue; failures stay with an incremented attempt counter so the next
// flush retries only those.
func (c *Coordinator) Flush(ctx context.Context) map[ids.ID]Result {
	c.mu.Lock()
	hashes := make([]ids.ID, len(c.order))
	copy(hashes, c.order)
	c.mu.Unlock()

	results := c.AnchorMany(ctx, hashes)

	c.mu.Lock()
	defer c.mu.Unlock()
	newOrder := c.order[:0]
	for _, h := range c.order {
		res, ok := results[h]
		if ok && res.Err == nil {
			delete(c.pending, h)
			c.deleteQueued(h)
			continue
		}
		if entry, exists := c.pending[h]; exists {
			entry.Attempts++
			if ok && res.Err != nil {
				entry.LastError = res.Err.Error()
			}
			c.persistQueued(h, entry)
		}
		newOrder = append(newOrder, h)
	}
	c.order = newOrder
	return results
}

// IsAnchored answers from the local cache first, then the ledger.
func (c *Coordinator) IsAnchored(ctx context.Context, hash ids.ID) (bool, error) {
	if _, ok := c.cachedReceipt(hash); ok {
		return true, nil
	}
	return c.client.IsAnchored(ctx, hash)
}

// --- local anchor cache + queue persistence ---

func (c *Coordinator) cachedReceipt(hash ids.ID) (Receipt, bool) {
	if c.db == nil {
		return Receipt{}, false
	}
	data, err := c.db.Get(storage.PrefixAnchor + hash.String())
	if err != nil {
		return Receipt{}, false
	}
	var rcpt Receipt
	if err := json.Unmarshal(data, &rcpt); err != nil {
		return Receipt{}, false
	}
	return rcpt, true
}

func (c *Coordinator) cacheReceipt(rcpt Receipt) {
	if c.db == nil {
		return
	}
	data, _ := json.Marshal(rcpt)
	if err := c.db.Put(storage.PrefixAnchor+rcpt.Hash.String(), data); err != nil {
		log.Printf("[anchor] cache write failed for %s: %v", rcpt.Hash, err)
	}
}

// cacheReceipts persists a whole batch of receipts in one write.
func (c *Coordinator) cacheReceipts(receipts map[ids.ID]Receipt) {
	if c.db == nil || len(receipts) == 0 {
		return
	}
	entries := make(map[string][]byte, len(receipts))
	for _, rcpt := range receipts {
		data, _ := json.Marshal(rcpt)
		entries[storage.PrefixAnchor+rcpt.Hash.String()] = data
	}
	if err := c.db.WriteBatch(entries); err != nil {
		log.Printf("[anchor] batch cache write failed: %v", err)
	}
}

func (c *Coordinator) persistQueued(hash ids.ID, entry *pendingAnchor) {
	if c.db == nil {
		return
	}
	data, _ := json.Marshal(entry)
	if err := c.db.Put(storage.PrefixQueue+hash.String(), data); err != nil {
		log.Printf("[anchor] queue write failed for %s: %v", hash, err)
	}
}

func (c *Coordinator) deleteQueued(hash ids.ID) {
	if c.db == nil {
		return
	}
	if err := c.db.Delete(storage.PrefixQueue + hash.String()); err != nil {
		log.Printf("[anchor] queue delete failed for %s: %v", hash, err)
	}
}

// RestoreQueue reloads persisted pending submissions after a restart.
func (c *Coordinator) RestoreQueue() error {
	if c.db == nil {
		return nil
	}
	keys, err := c.db.ListKeys(storage.PrefixQueue)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		hash, err := ids.FromString(k)
		if err != nil {
			continue
		}
		if _, exists := c.pending[hash]; exists {
			continue
		}
		data, err := c.db.Get(storage.PrefixQueue + k)
		if err != nil {
			continue
		}
		var entry pendingAnchor
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		c.pending[hash] = &entry
		c.order = append(c.order, hash)
	}
	return nil
}

// batchRef computes the Merkle root of a batch's hashes (hex strings),
// used as the batch reference in logs and receipts.
func batchRef(hashes []ids.ID) string {
	level := make([]string, len(hashes))
	for i, h := range hashes {
		level[i] = h.String()
	}
	n := len(level)
	if n == 0 {
		return ""
	}
	for n > 1 {
		var next []string
		for i := 0; i < n; i += 2 {
			h := sha256.New()
			h.Write([]byte(level[i]))
			if i+1 < n {
				h.Write([]byte(level[i+1]))
			} else {
				// Odd node: hash with itself
				h.Write([]byte(level[i]))
			}
			next = append(next, hex.EncodeToString(h.Sum(nil)))
		}
		level = next
		n = len(level)
	}
	return level[0]
}
