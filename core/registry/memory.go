package registry

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// MemoryRegistry is an in-process Registry. Used by tests and dev mode;
// the node runs the leveldb-backed Store in production.
type MemoryRegistry struct {
	mu   sync.RWMutex
	rows map[string]*issuerRow
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{rows: make(map[string]*issuerRow)}
}

func (r *MemoryRegistry) Register(issuerID string, publicKeyDER []byte) error {
	if issuerID == "" || len(publicKeyDER) == 0 {
		return errors.New("issuerID and publicKey are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[issuerID]
	if !ok {
		row = &issuerRow{IssuerID: issuerID}
		r.rows[issuerID] = row
	}
	if row.Revoked {
		return errors.New("issuer is revoked; issue a new issuer identity instead")
	}
	for _, k := range row.Keys {
		if bytes.Equal(k.PublicKey, publicKeyDER) {
			return nil // already registered
		}
	}
	row.Keys = append(row.Keys, KeyRecord{
		IssuerID:     issuerID,
		PublicKey:    publicKeyDER,
		Status:       StatusActive,
		RegisteredAt: time.Now().UTC(),
	})
	row.Version++
	return nil
}

func (r *MemoryRegistry) StatusOf(issuerID string, publicKeyDER []byte, asOf time.Time) (KeyStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[issuerID]
	if !ok {
		return StatusUnknown, nil
	}
	return row.statusIn(publicKeyDER, asOf), nil
}

func (r *MemoryRegistry) Revoke(issuerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[issuerID]
	if !ok {
		// Revoking an unknown issuer records the revocation so a later
		// Register cannot resurrect the identity.
		row = &issuerRow{IssuerID: issuerID}
		r.rows[issuerID] = row
	}
	if row.Revoked {
		return nil // idempotent
	}
	now := time.Now().UTC()
	row.Revoked = true
	row.RevokedAt = now
	for i := range row.Keys {
		row.Keys[i].Status = StatusRevoked
		row.Keys[i].RevokedAt = &now
	}
	row.Version++
	return nil
}
