package verify

import (
	"context"
	"fmt"
	"time"

	"medauth/core/audit"
	"medauth/core/payload"
	"medauth/core/registry"
	"medauth/core/signer"
	"medauth/types/ids"
)

// Outcome is the four-way classification every scan resolves to.
type Outcome string

const (
	OutcomeVerified    Outcome = "verified"
	OutcomeExpired     Outcome = "expired"
	OutcomeUnverified  Outcome = "unverified"
	OutcomeCounterfeit Outcome = "counterfeit"
)

// AnchorStatus is the ledger's contribution to the evidence bundle.
type AnchorStatus string

const (
	AnchorAnchored    AnchorStatus = "anchored"
	AnchorAbsent      AnchorStatus = "absent"      // definitively not on the ledger
	AnchorUnavailable AnchorStatus = "unavailable" // ledger unreachable, no answer
	AnchorSkipped     AnchorStatus = "skipped"     // check not requested
)

// Evidence records every intermediate check result, including checks that
// ran after the outcome was already decided. Audit needs the full trail.
type Evidence struct {
	SignatureValid      bool               `json:"signatureValid"`
	KeyStatus           registry.KeyStatus `json:"keyStatus"`
	RegistryUnreachable bool               `json:"registryUnreachable"`
	ExpiryOK            bool               `json:"expiryOk"`
	AnchorStatus        AnchorStatus       `json:"anchorStatus"`
	DegradedConfidence  bool               `json:"degradedConfidence"`
	Reason              string             `json:"reason,omitempty"`
}

// Result is what a scan returns: one outcome plus its evidence.
type Result struct {
	Outcome     Outcome   `json:"outcome"`
	Evidence    Evidence  `json:"evidence"`
	PayloadHash string    `json:"payloadHash,omitempty"`
	AsOf        time.Time `json:"asOf"`
}

// AnchorChecker is the slice of the ledger the engine needs. Both
// ledger.Client implementations and the batch coordinator satisfy it.
type AnchorChecker interface {
	IsAnchored(ctx context.Context, hash ids.ID) (bool, error)
}

// Engine derives a trust outcome for a scanned QR record. Verify is a
// pure function of its inputs plus point-in-time reads of the registry
// and ledger: it performs no writes and needs no locks.
type Engine struct {
	Registry registry.Registry
	Ledger   AnchorChecker // nil means no ledger configured
	Audit    audit.Logger
}

func NewEngine(reg registry.Registry, anchors AnchorChecker, auditLog audit.Logger) *Engine {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &Engine{Registry: reg, Ledger: anchors, Audit: auditLog}
}

// Verify classifies one scanned record as of the given time. It never
// returns an error: every internal failure is absorbed into the outcome
// classification or an explicit soft-fail flag in the evidence.
//
// Check order is fixed and deliberate. Signature validity is the only
// check that proves this exact payload came from this exact key, so it
// dominates everything. Revocation and expiry are evaluated against the
// registry and clock at verification time, never cached from issuance.
func (e *Engine) Verify(ctx context.Context, rec signer.QRRecord, asOf time.Time, ledgerCheck bool) Result {
	res := Result{
		AsOf:     asOf,
		Evidence: Evidence{KeyStatus: registry.StatusUnknown, AnchorStatus: AnchorSkipped},
	}

	// 1. Decode and re-canonicalize the embedded payload.
	p, decodeErr := payload.Decode(rec.PayloadBytes)
	canonical := rec.PayloadBytes
	if decodeErr == nil {
		if enc, err := payload.Encode(p); err == nil {
			canonical = enc
		}
	}

	// 2. Signature over the recomputed canonical bytes. Computed even when
	// decoding failed (over the raw scanned bytes) so the evidence bundle
	// is complete for audit.
	res.Evidence.SignatureValid = signer.VerifySignature(canonical, rec.Signature, rec.IssuerPublicKey)

	// 3. Key status at asOf.
	status, regErr := e.Registry.StatusOf(rec.IssuerID, rec.IssuerPublicKey, asOf)
	res.Evidence.KeyStatus = status
	if regErr != nil {
		res.Evidence.RegistryUnreachable = true
	}

	// 4. Expiry against the clock, when the payload decoded. Expiry has
	// calendar-date precision: the record stays in date for the whole of
	// the expiry day, so asOf is truncated to its UTC date first.
	if decodeErr == nil {
		res.Evidence.ExpiryOK = !dateOf(asOf).After(p.ExpiryDate)
		if hash, err := payload.Hash(p); err == nil {
			res.PayloadHash = hash.String()
		}
	}

	// 5. Ledger anchoring, auxiliary tamper-evidence only.
	if ledgerCheck && e.Ledger != nil && decodeErr == nil {
		hash := ids.NewID(canonical)
		anchored, err := e.Ledger.IsAnchored(ctx, hash)
		switch {
		// Unreachability (ledger.ErrLedgerUnavailable or any transport
		// fault) is "no answer", never "not anchored".
		case err != nil:
			res.Evidence.AnchorStatus = AnchorUnavailable
			res.Evidence.DegradedConfidence = true
		case anchored:
			res.Evidence.AnchorStatus = AnchorAnchored
		default:
			res.Evidence.AnchorStatus = AnchorAbsent
			res.Evidence.DegradedConfidence = true
		}
	}

	res.Outcome, res.Evidence.Reason = classify(res.Evidence, decodeErr)
	e.emitAudit(res, rec)
	return res
}

// dateOf truncates an instant to its UTC calendar date.
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// classify applies the outcome precedence over the collected evidence.
func classify(ev Evidence, decodeErr error) (Outcome, string) {
	// Malformed or tampered payload bytes.
	if decodeErr != nil {
		return OutcomeCounterfeit, fmt.Sprintf("payload rejected: %v", decodeErr)
	}
	// Signature failure is the single definitive fraud signal and
	// dominates every other check, including expiry.
	if !ev.SignatureValid {
		return OutcomeCounterfeit, "signature does not validate against canonical payload"
	}
	// A revoked issuer's trust has been explicitly withdrawn.
	if ev.KeyStatus == registry.StatusRevoked {
		return OutcomeCounterfeit, "issuer key revoked before asOf"
	}
	// Without key status there is no basis to trust the signature: fail
	// closed, never silently default to verified.
	if ev.RegistryUnreachable {
		return OutcomeUnverified, "registry unreachable"
	}
	// Valid signature but no registry record: provenance cannot be
	// asserted. Distinct from forgery.
	if ev.KeyStatus == registry.StatusUnknown {
		return OutcomeUnverified, "issuer key not registered"
	}
	if !ev.ExpiryOK {
		return OutcomeExpired, "past expiry date"
	}
	if ev.DegradedConfidence {
		return OutcomeVerified, "verified without anchoring confirmation"
	}
	return OutcomeVerified, ""
}

func (e *Engine) emitAudit(res Result, rec signer.QRRecord) {
	e.Audit.LogEvent(audit.Event{
		EventType: "verification",
		RecordID:  res.PayloadHash,
		Outcome:   string(res.Outcome),
		Detail: map[string]string{
			"issuerId":            rec.IssuerID,
			"signatureValid":      fmt.Sprintf("%t", res.Evidence.SignatureValid),
			"keyStatus":           string(res.Evidence.KeyStatus),
			"anchorStatus":        string(res.Evidence.AnchorStatus),
			"expiryOk":            fmt.Sprintf("%t", res.Evidence.ExpiryOK),
			"registryUnreachable": fmt.Sprintf("%t", res.Evidence.RegistryUnreachable),
			"reason":              res.Evidence.Reason,
		},
	})
}
