package ledger

import (
	"context"
	"errors"
	"time"

	"medauth/types/ids"
)

// ErrLedgerUnavailable means the ledger could not be reached or timed out.
// Callers must treat it as "no answer", never as "not anchored".
var ErrLedgerUnavailable = errors.New("ledger unavailable")

// Receipt is the ledger's acknowledgement for one anchored hash.
// AlreadyAnchored marks idempotent re-submissions: the receipt then
// references the original anchoring, and the call still counts as success.
type Receipt struct {
	Hash            ids.ID    `json:"hash"`
	LedgerRef       string    `json:"ledgerRef"`
	AnchoredAt      time.Time `json:"anchoredAt"`
	AlreadyAnchored bool      `json:"alreadyAnchored"`
}

// Client is the boundary to the external append-only ledger. The engine
// only ever asks two questions: anchor this hash, and is this hash
// anchored. Consensus, fees and network selection live behind it.
type Client interface {
	Anchor(ctx context.Context, hash ids.ID) (Receipt, error)
	IsAnchored(ctx context.Context, hash ids.ID) (bool, error)
}
