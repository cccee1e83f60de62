package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"medauth/types/ids"
)

// HTTPClient talks to an external ledger node over its REST API.
// Every call carries a bounded timeout; timeouts and transport errors
// surface as ErrLedgerUnavailable so verification can soft-fail.
type HTTPClient struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	httpClient *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type anchorRequest struct {
	Hash string `json:"hash"`
}

type anchorResponse struct {
	Hash            string `json:"hash"`
	LedgerRef       string `json:"ledgerRef"`
	AnchoredAt      string `json:"anchoredAt"`
	AlreadyAnchored bool   `json:"alreadyAnchored"`
}

func (c *HTTPClient) Anchor(ctx context.Context, hash ids.ID) (Receipt, error) {
	body, _ := json.Marshal(anchorRequest{Hash: hash.String()})
	resp, err := c.do(ctx, http.MethodPost, "/api/ledger/anchor", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	// 409 from the ledger means the hash is already on chain. The contract
	// is idempotent anchoring, so that is a success for the caller.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
		return Receipt{}, fmt.Errorf("ledger anchor failed (%d): %s", resp.StatusCode, string(respBody))
	}
	var ar anchorResponse
	if err := json.Unmarshal(respBody, &ar); err != nil {
		return Receipt{}, fmt.Errorf("ledger anchor: bad response: %w", err)
	}
	anchoredAt, _ := time.Parse(time.RFC3339, ar.AnchoredAt)
	return Receipt{
		Hash:            hash,
		LedgerRef:       ar.LedgerRef,
		AnchoredAt:      anchoredAt,
		AlreadyAnchored: ar.AlreadyAnchored || resp.StatusCode == http.StatusConflict,
	}, nil
}

func (c *HTTPClient) IsAnchored(ctx context.Context, hash ids.ID) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/ledger/anchored/"+hash.String(), nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out struct {
			Anchored bool `json:"anchored"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return false, fmt.Errorf("%w: bad response: %v", ErrLedgerUnavailable, err)
		}
		return out.Anchored, nil
	case http.StatusNotFound:
		// Definitive answer: the ledger looked and the hash is not there.
		return false, nil
	default:
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("%w: status %d: %s", ErrLedgerUnavailable, resp.StatusCode, string(body))
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	// The http.Client timeout bounds the whole call, body included, so no
	// per-request context deadline is layered on top.
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and refused connections are all "no answer".
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return resp, nil
}
