package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"medauth/core/audit"
	"medauth/core/payload"
	"medauth/core/signer"
)

// signRequest is the issuance workflow's inbound shape. The payload block
// is schema-validated before any field is trusted; keyRef optionally
// names a key file inside the node's configured key directory.
type signRequest struct {
	Payload json.RawMessage `json:"payload"`
	KeyRef  string          `json:"keyRef,omitempty"`
}

type signResponse struct {
	QRRecord    json.RawMessage `json:"qrRecord"` // serialized for QR image encoding
	PayloadHash string          `json:"payloadHash"`
	AnchorRef   string          `json:"anchorRef,omitempty"`
	IssuedAt    string          `json:"issuedAt"`
}

// payloadFields mirrors the schema-validated issuance input.
type payloadFields struct {
	MedicineID string `json:"medicineId"`
	BatchNo    string `json:"batchNo"`
	MfgDate    string `json:"mfgDate"`
	ExpiryDate string `json:"expiryDate"`
	IssuerID   string `json:"issuerId"`
	Nonce      string `json:"nonce,omitempty"`
}

// HandleSign creates and signs a QR record for one medicine unit.
func (s *Server) HandleSign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}
	var req signRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := payload.ValidateRequest(req.Payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var fields payloadFields
	if err := json.Unmarshal(req.Payload, &fields); err != nil {
		http.Error(w, "Invalid payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	mfg, err := time.ParseInLocation(payload.DateFormat, fields.MfgDate, time.UTC)
	if err != nil {
		http.Error(w, "mfgDate is not an ISO-8601 calendar date", http.StatusBadRequest)
		return
	}
	exp, err := time.ParseInLocation(payload.DateFormat, fields.ExpiryDate, time.UTC)
	if err != nil {
		http.Error(w, "expiryDate is not an ISO-8601 calendar date", http.StatusBadRequest)
		return
	}
	nonce := fields.Nonce
	if nonce == "" {
		nonce = uuid.NewString()
	}

	p := payload.Payload{
		MedicineID:      fields.MedicineID,
		BatchNumber:     fields.BatchNo,
		ManufactureDate: mfg,
		ExpiryDate:      exp,
		IssuerID:        fields.IssuerID,
		Nonce:           nonce,
	}

	keyPath, err := resolveIssuerKey(req.KeyRef)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	priv, err := signer.LoadPrivateKeyPEM(keyPath)
	if err != nil {
		log.Printf("[sign] cannot load issuer key %q: %v", keyPath, err)
		http.Error(w, "issuer key unavailable", http.StatusInternalServerError)
		return
	}

	rec, err := s.signSvc.Sign(r.Context(), p, priv)
	if err != nil {
		http.Error(w, "signing rejected: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	qrBytes, err := rec.MarshalForQR()
	if err != nil {
		http.Error(w, "serialization failed", http.StatusInternalServerError)
		return
	}
	hash, _ := payload.Hash(p)

	s.auditLog.LogEvent(audit.Event{
		EventType: "issuance",
		RecordID:  hash.String(),
		Outcome:   "signed",
		Detail: map[string]string{
			"issuerId":   p.IssuerID,
			"medicineId": p.MedicineID,
			"batchNo":    p.BatchNumber,
			"anchorRef":  rec.AnchorRef,
		},
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(signResponse{
		QRRecord:    qrBytes,
		PayloadHash: hash.String(),
		AnchorRef:   rec.AnchorRef,
		IssuedAt:    time.Now().UTC().Format(time.RFC3339),
	})
}

// resolveIssuerKey maps an optional key name to a file path. Named keys
// resolve inside ISSUER_KEY_DIR only; a keyRef carrying any path
// component is rejected so callers cannot point the node at arbitrary
// files.
func resolveIssuerKey(keyRef string) (string, error) {
	if keyRef == "" {
		path := os.Getenv("ISSUER_KEY_PATH")
		if path == "" {
			return "", errors.New("no issuer key configured")
		}
		return path, nil
	}
	dir := os.Getenv("ISSUER_KEY_DIR")
	if dir == "" {
		return "", errors.New("named issuer keys are not configured")
	}
	if keyRef != filepath.Base(keyRef) || keyRef == "." || keyRef == ".." {
		return "", errors.New("keyRef must be a bare key file name")
	}
	return filepath.Join(dir, keyRef), nil
}

// verifyRequest is the scan workflow's inbound shape: the scanned QR
// envelope, plus an optional as-of time and ledger-check toggle.
type verifyRequest struct {
	Record      json.RawMessage `json:"record"`
	AsOf        string          `json:"asOf,omitempty"`
	LedgerCheck *bool           `json:"ledgerCheck,omitempty"`
}

// HandleVerify classifies one scanned QR record. It always answers with
// one of the four outcomes plus evidence; a scan never sees a 500 for a
// bad record, only for a broken request envelope.
func (s *Server) HandleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Record) == 0 {
		http.Error(w, "record is required", http.StatusBadRequest)
		return
	}

	asOf := time.Now().UTC()
	if req.AsOf != "" {
		t, err := time.Parse(time.RFC3339, req.AsOf)
		if err != nil {
			http.Error(w, "asOf must be RFC3339", http.StatusBadRequest)
			return
		}
		asOf = t.UTC()
	}
	ledgerCheck := true
	if req.LedgerCheck != nil {
		ledgerCheck = *req.LedgerCheck
	}

	rec, err := signer.ParseQRRecord(req.Record)
	if err != nil {
		// A QR image that does not even frame correctly is tampered data.
		// Classify instead of erroring so scanners get a definite answer.
		rec = signer.QRRecord{PayloadBytes: req.Record}
		log.Printf("[verify] unparseable QR envelope: %v", err)
	}

	result := s.engine.Verify(r.Context(), rec, asOf, ledgerCheck)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
