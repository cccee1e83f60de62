package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"medauth/core/storage"
)

// Store is the persistent Registry used by the node. Rows live in the
// encrypted leveldb under storage.PrefixIssuer. A single writer mutex per
// store keeps Revoke linearizable with respect to StatusOf: once Revoke
// returns, the row is durably written and every subsequent read sees it.
type Store struct {
	mu sync.Mutex
	db *storage.Storage
}

func NewStore(db *storage.Storage) *Store {
	return &Store{db: db}
}

func (s *Store) loadRow(issuerID string) (*issuerRow, error) {
	data, err := s.db.Get(storage.PrefixIssuer + issuerID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	var row issuerRow
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("%w: corrupt issuer row: %v", ErrRegistryUnavailable, err)
	}
	return &row, nil
}

func (s *Store) saveRow(row *issuerRow) error {
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	if err := s.db.Put(storage.PrefixIssuer+row.IssuerID, data); err != nil {
		return fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	return nil
}

func (s *Store) Register(issuerID string, publicKeyDER []byte) error {
	if issuerID == "" || len(publicKeyDER) == 0 {
		return errors.New("issuerID and publicKey are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.loadRow(issuerID)
	if err != nil {
		return err
	}
	if row == nil {
		row = &issuerRow{IssuerID: issuerID}
	}
	if row.Revoked {
		return errors.New("issuer is revoked; issue a new issuer identity instead")
	}
	for _, k := range row.Keys {
		if bytes.Equal(k.PublicKey, publicKeyDER) {
			return nil
		}
	}
	row.Keys = append(row.Keys, KeyRecord{
		IssuerID:     issuerID,
		PublicKey:    publicKeyDER,
		Status:       StatusActive,
		RegisteredAt: time.Now().UTC(),
	})
	row.Version++
	return s.saveRow(row)
}

func (s *Store) StatusOf(issuerID string, publicKeyDER []byte, asOf time.Time) (KeyStatus, error) {
	row, err := s.loadRow(issuerID)
	if err != nil {
		return StatusUnknown, err
	}
	if row == nil {
		return StatusUnknown, nil
	}
	return row.statusIn(publicKeyDER, asOf), nil
}

func (s *Store) Revoke(issuerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.loadRow(issuerID)
	if err != nil {
		return err
	}
	if row == nil {
		row = &issuerRow{IssuerID: issuerID}
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
	return s.saveRow(row)
}
