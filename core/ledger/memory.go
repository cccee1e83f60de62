package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"medauth/types/ids"
)

// MemoryLedger is an in-process ledger fake for tests and dev mode.
// It honours the append-only contract: a hash anchors exactly once and
// re-anchoring returns the original receipt.
type MemoryLedger struct {
	mu       sync.Mutex
	anchored map[ids.ID]Receipt
	seq      int

	// Down simulates an unreachable ledger when true.
	Down bool
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{anchored: make(map[ids.ID]Receipt)}
}

func (l *MemoryLedger) Anchor(ctx context.Context, hash ids.ID) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Down {
		return Receipt{}, ErrLedgerUnavailable
	}
	if rcpt, ok := l.anchored[hash]; ok {
		rcpt.AlreadyAnchored = true
		return rcpt, nil
	}
	l.seq++
	rcpt := Receipt{
		Hash:       hash,
		LedgerRef:  fmt.Sprintf("mem-tx-%06d", l.seq),
		AnchoredAt: time.Now().UTC(),
	}
	l.anchored[hash] = rcpt
	return rcpt, nil
}

// AnchorBatch anchors many hashes in one call. Idempotent per hash, same
// as Anchor.
func (l *MemoryLedger) AnchorBatch(ctx context.Context, hashes []ids.ID) (map[ids.ID]Receipt, error) {
	l.mu.Lock()
	if l.Down {
		l.mu.Unlock()
		return nil, ErrLedgerUnavailable
	}
	l.mu.Unlock()

	receipts := make(map[ids.ID]Receipt, len(hashes))
	for _, h := range hashes {
		rcpt, err := l.Anchor(ctx, h)
		if err != nil {
			return nil, err
		}
		receipts[h] = rcpt
	}
	return receipts, nil
}

func (l *MemoryLedger) IsAnchored(ctx context.Context, hash ids.ID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Down {
		return false, ErrLedgerUnavailable
	}
	_, ok := l.anchored[hash]
	return ok, nil
}
