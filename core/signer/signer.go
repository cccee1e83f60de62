package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"medauth/core/ledger"
	"medauth/core/payload"
	"medauth/core/registry"
	"medauth/types/ids"
)

// AnchorMode controls the ledger side effect of signing.
type AnchorMode string

const (
	// AnchorOff disables anchoring at issuance.
	AnchorOff AnchorMode = "off"
	// AnchorSync anchors before returning; failures degrade to a queued retry.
	AnchorSync AnchorMode = "sync"
	// AnchorAsync queues the hash and returns immediately.
	AnchorAsync AnchorMode = "async"
)

// QRRecord is what gets serialized into the physical QR image: the
// canonical payload bytes, the signature over them, and enough public
// material for any verifier to re-check both. Never mutated after
// creation; a changed field invalidates the signature.
type QRRecord struct {
	PayloadBytes    []byte // canonical encoding, exactly as signed
	Signature       []byte // ASN.1 DER ECDSA signature over sha256(PayloadBytes)
	IssuerPublicKey []byte // PKIX DER
	IssuerID        string
	FormatVersion   string
	AnchorRef       string // ledger reference when anchored at issuance
}

// qrEnvelope is the wire form handed to the QR image encoder.
type qrEnvelope struct {
	FormatVersion string `json:"v"`
	Payload       string `json:"payload"` // base64 canonical bytes
	Signature     string `json:"sig"`     // base64 DER signature
	PublicKey     string `json:"pubKey"`  // base64 PKIX DER
	IssuerID      string `json:"issuerId"`
	AnchorRef     string `json:"anchorRef,omitempty"`
}

// MarshalForQR serializes the record for QR image encoding.
func (r QRRecord) MarshalForQR() ([]byte, error) {
	return json.Marshal(qrEnvelope{
		FormatVersion: r.FormatVersion,
		Payload:       base64.StdEncoding.EncodeToString(r.PayloadBytes),
		Signature:     base64.StdEncoding.EncodeToString(r.Signature),
		PublicKey:     base64.StdEncoding.EncodeToString(r.IssuerPublicKey),
		IssuerID:      r.IssuerID,
		AnchorRef:     r.AnchorRef,
	})
}

// ParseQRRecord decodes a scanned QR envelope. Only the envelope framing
// is checked here; payload decoding and all trust checks belong to the
// verification engine.
func ParseQRRecord(data []byte) (QRRecord, error) {
	var env qrEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return QRRecord{}, fmt.Errorf("invalid QR envelope: %w", err)
	}
	payloadBytes, err := base64.StdEncoding.DecodeString(env.Payload)
	if err != nil {
		return QRRecord{}, fmt.Errorf("invalid payload encoding: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return QRRecord{}, fmt.Errorf("invalid signature encoding: %w", err)
	}
	pub, err := base64.StdEncoding.DecodeString(env.PublicKey)
	if err != nil {
		return QRRecord{}, fmt.Errorf("invalid public key encoding: %w", err)
	}
	return QRRecord{
		PayloadBytes:    payloadBytes,
		Signature:       sig,
		IssuerPublicKey: pub,
		IssuerID:        env.IssuerID,
		FormatVersion:   env.FormatVersion,
		AnchorRef:       env.AnchorRef,
	}, nil
}

// VerifySignature checks an ECDSA P-256 signature over sha256 of the
// canonical bytes. Pure function; used by the engine and by tests.
func VerifySignature(canonical, signature, publicKeyDER []byte) bool {
	pub, err := ParsePublicKeyDER(publicKeyDER)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(canonical)
	return ecdsa.VerifyASN1(pub, digest[:], signature)
}

// Service signs canonical payloads on behalf of an issuer and optionally
// anchors the payload hash. Signing never mutates the registry and never
// fails because of anchoring.
type Service struct {
	Registry registry.Registry
	Anchors  *ledger.Coordinator // nil disables anchoring regardless of Mode
	Mode     AnchorMode
}

func NewService(reg registry.Registry, anchors *ledger.Coordinator, mode AnchorMode) *Service {
	if mode == "" {
		mode = AnchorOff
	}
	return &Service{Registry: reg, Anchors: anchors, Mode: mode}
}

// Sign produces a QRRecord for the payload. Preconditions: the payload is
// well-formed and the private key belongs to an Active issuer.
func (s *Service) Sign(ctx context.Context, p payload.Payload, priv *ecdsa.PrivateKey) (QRRecord, error) {
	enc, err := payload.Encode(p)
	if err != nil {
		return QRRecord{}, err
	}
	pubDER, err := PublicKeyDER(&priv.PublicKey)
	if err != nil {
		return QRRecord{}, err
	}

	status, err := s.Registry.StatusOf(p.IssuerID, pubDER, time.Now().UTC())
	if err != nil {
		return QRRecord{}, fmt.Errorf("cannot check issuer status: %w", err)
	}
	switch status {
	case registry.StatusActive:
		// ok
	case registry.StatusRevoked:
		return QRRecord{}, errors.New("issuer key is revoked")
	default:
		return QRRecord{}, errors.New("issuer key is not registered")
	}

	digest := sha256.Sum256(enc)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	if err != nil {
		return QRRecord{}, fmt.Errorf("signing failed: %w", err)
	}

	rec := QRRecord{
		PayloadBytes:    enc,
		Signature:       sig,
		IssuerPublicKey: pubDER,
		IssuerID:        p.IssuerID,
		FormatVersion:   payload.FormatVersion,
	}
	rec.AnchorRef = s.submitAnchor(ctx, ids.NewID(enc))
	return rec, nil
}

// submitAnchor applies the configured anchoring side effect and returns
// the ledger reference when one is available right away. Failures are
// queued for the batch coordinator to retry; they never fail the signing.
func (s *Service) submitAnchor(ctx context.Context, hash ids.ID) string {
	if s.Anchors == nil || s.Mode == AnchorOff {
		return ""
	}
	if s.Mode == AnchorAsync {
		s.Anchors.Enqueue(hash)
		return ""
	}
	results := s.Anchors.AnchorMany(ctx, []ids.ID{hash})
	if res, ok := results[hash]; ok {
		if res.Err == nil && res.Receipt != nil {
			return res.Receipt.LedgerRef
		}
		log.Printf("[sign] anchor submission failed for %s, queued for retry: %v", hash, res.Err)
	}
	s.Anchors.Enqueue(hash)
	return ""
}
