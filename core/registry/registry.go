package registry

import (
	"bytes"
	"errors"
	"time"
)

// KeyStatus is the tri-state answer the verification engine acts on.
type KeyStatus string

const (
	// StatusActive means the key is registered and the issuer is in good standing.
	StatusActive KeyStatus = "active"
	// StatusRevoked means the issuer's signing authority has been withdrawn.
	StatusRevoked KeyStatus = "revoked"
	// StatusUnknown means the key was never registered. Distinct from revoked:
	// the engine maps it to Unverified, not Counterfeit.
	StatusUnknown KeyStatus = "unknown"
)

// ErrRegistryUnavailable is returned when the backing store cannot answer.
// Verification fails closed on it (Unverified with an explicit flag).
var ErrRegistryUnavailable = errors.New("key registry unavailable")

// KeyRecord is one registered public key of an issuer.
type KeyRecord struct {
	IssuerID     string     `json:"issuerId"`
	PublicKey    []byte     `json:"publicKey"` // DER (PKIX)
	Status       KeyStatus  `json:"status"`
	RegisteredAt time.Time  `json:"registeredAt"`
	RevokedAt    *time.Time `json:"revokedAt,omitempty"`
}

// Registry tracks which public keys belong to which issuer and whether the
// issuer has been revoked. Revocation is per-issuer: one revoke invalidates
// every key the issuer ever registered.
type Registry interface {
	// Register adds a public key for an issuer. Registering the same key
	// twice is a no-op. Registering a key for a revoked issuer fails.
	Register(issuerID string, publicKeyDER []byte) error

	// StatusOf answers the point-in-time question the engine asks:
	// was this (issuer, key) pair trustworthy at asOf?
	StatusOf(issuerID string, publicKeyDER []byte, asOf time.Time) (KeyStatus, error)

	// Revoke withdraws an issuer's signing authority, effective now.
	// Idempotent: revoking an already-revoked issuer is a no-op.
	Revoke(issuerID string) error
}

// issuerRow is the stored shape for one issuer. Version increments on every
// mutation so readers can assert they observed the latest write.
type issuerRow struct {
	IssuerID  string      `json:"issuerId"`
	Version   uint64      `json:"version"`
	Keys      []KeyRecord `json:"keys"`
	Revoked   bool        `json:"revoked"`
	RevokedAt time.Time   `json:"revokedAt,omitempty"`
}

// statusIn resolves a key's status within a row at a given time.
func (row *issuerRow) statusIn(publicKeyDER []byte, asOf time.Time) KeyStatus {
	found := false
	for _, k := range row.Keys {
		if bytes.Equal(k.PublicKey, publicKeyDER) {
			found = true
			break
		}
	}
	if !found {
		return StatusUnknown
	}
	if row.Revoked && !asOf.Before(row.RevokedAt) {
		return StatusRevoked
	}
	return StatusActive
}
