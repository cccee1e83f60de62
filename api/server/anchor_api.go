package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"medauth/core/ledger"
	"medauth/types/ids"
)

type anchorStatusResponse struct {
	Hash              string `json:"hash"`
	Anchored          bool   `json:"anchored"`
	LedgerUnavailable bool   `json:"ledgerUnavailable"`
}

// HandleAnchorStatus reports whether one payload hash is anchored.
// Ledger unreachability is reported as such, never as "not anchored".
func (s *Server) HandleAnchorStatus(w http.ResponseWriter, r *http.Request) {
	if s.anchors == nil {
		http.Error(w, "anchoring not configured", http.StatusServiceUnavailable)
		return
	}
	hashHex := r.URL.Query().Get("hash")
	hash, err := ids.FromString(hashHex)
	if err != nil {
		http.Error(w, "hash must be 32 hex-encoded bytes", http.StatusBadRequest)
		return
	}

	resp := anchorStatusResponse{Hash: hash.String()}
	anchored, err := s.anchors.IsAnchored(r.Context(), hash)
	switch {
	case errors.Is(err, ledger.ErrLedgerUnavailable):
		resp.LedgerUnavailable = true
	case err != nil:
		resp.LedgerUnavailable = true
	default:
		resp.Anchored = anchored
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type flushResultEntry struct {
	LedgerRef string `json:"ledgerRef,omitempty"`
	Error     string `json:"error,omitempty"`
}

type flushResponse struct {
	Submitted int                         `json:"submitted"`
	Failed    int                         `json:"failed"`
	Results   map[string]flushResultEntry `json:"results"`
}

// HandleAnchorFlush drains the pending anchor queue through the batch
// coordinator and reports per-hash results.
func (s *Server) HandleAnchorFlush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if s.anchors == nil {
		http.Error(w, "anchoring not configured", http.StatusServiceUnavailable)
		return
	}

	results := s.anchors.Flush(r.Context())
	resp := flushResponse{Results: make(map[string]flushResultEntry, len(results))}
	for hash, res := range results {
		entry := flushResultEntry{}
		if res.Err != nil {
			entry.Error = res.Err.Error()
			resp.Failed++
		} else if res.Receipt != nil {
			entry.LedgerRef = res.Receipt.LedgerRef
			resp.Submitted++
		}
		resp.Results[hash.String()] = entry
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
