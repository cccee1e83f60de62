package server

import (
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"

	"medauth/core/audit"
)

type registerIssuerRequest struct {
	IssuerID     string `json:"issuerId"`
	PublicKeyPEM string `json:"publicKeyPem,omitempty"`
	PublicKeyB64 string `json:"publicKey,omitempty"` // base64 PKIX DER
}

// HandleRegisterIssuer records a new issuer public key. Called by the
// seller-approval workflow once KYC clears.
func (s *Server) HandleRegisterIssuer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var req registerIssuerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.IssuerID == "" {
		http.Error(w, "issuerId is required", http.StatusBadRequest)
		return
	}

	var der []byte
	switch {
	case req.PublicKeyPEM != "":
		block, _ := pem.Decode([]byte(req.PublicKeyPEM))
		if block == nil || block.Type != "PUBLIC KEY" {
			http.Error(w, "publicKeyPem is not a PEM public key", http.StatusBadRequest)
			return
		}
		der = block.Bytes
	case req.PublicKeyB64 != "":
		decoded, err := base64.StdEncoding.DecodeString(req.PublicKeyB64)
		if err != nil {
			http.Error(w, "publicKey is not valid base64", http.StatusBadRequest)
			return
		}
		der = decoded
	default:
		http.Error(w, "publicKeyPem or publicKey is required", http.StatusBadRequest)
		return
	}

	if err := s.registry.Register(req.IssuerID, der); err != nil {
		http.Error(w, "registration failed: "+err.Error(), http.StatusConflict)
		return
	}

	s.auditLog.LogEvent(audit.Event{
		EventType: "registration",
		RecordID:  req.IssuerID,
		Outcome:   "registered",
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "registered", "issuerId": req.IssuerID})
}

type revokeIssuerRequest struct {
	IssuerID string `json:"issuerId"`
	Reason   string `json:"reason,omitempty"`
}

// HandleRevokeIssuer withdraws an issuer's signing authority. Idempotent:
// revoking an already-revoked issuer answers 200, not an error.
func (s *Server) HandleRevokeIssuer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var req revokeIssuerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.IssuerID == "" {
		http.Error(w, "issuerId is required", http.StatusBadRequest)
		return
	}

	if err := s.registry.Revoke(req.IssuerID); err != nil {
		http.Error(w, "revocation failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	s.auditLog.LogEvent(audit.Event{
		EventType: "revocation",
		RecordID:  req.IssuerID,
		Outcome:   "revoked",
		Detail:    map[string]string{"reason": req.Reason},
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "revoked", "issuerId": req.IssuerID})
}
