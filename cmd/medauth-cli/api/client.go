package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

// BaseURL resolves the node address, MEDAUTH_API overrides the default.
func BaseURL() string {
	if url := os.Getenv("MEDAUTH_API"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

func addAuth(req *http.Request) {
	if key := os.Getenv("MEDAUTH_API_KEY"); key != "" {
		req.Header.Set("X-API-Key", key)
	}
	if token := os.Getenv("MEDAUTH_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// PostJSON sends a JSON body and decodes the JSON response into out.
func PostJSON(path string, payload interface{}, out interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, BaseURL()+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	addAuth(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Error: %s", string(body))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// GetJSON fetches a path and decodes the JSON response into out.
func GetJSON(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, BaseURL()+path, nil)
	if err != nil {
		return err
	}
	addAuth(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Error: %s", string(body))
	}
	return json.Unmarshal(body, out)
}

// Status mirrors the node's /status response.
type Status struct {
	Status         string `json:"status"`
	Uptime         int64  `json:"uptime_seconds"`
	PendingAnchors int    `json:"pending_anchors"`
	Version        string `json:"version"`
	APIVersion     string `json:"api_version"`
}

func (s Status) ToJSON() string {
	b, _ := json.MarshalIndent(s, "", "  ")
	return string(b)
}

func GetStatus() (Status, error) {
	var status Status
	if err := GetJSON("/status", &status); err != nil {
		return Status{}, err
	}
	return status, nil
}
