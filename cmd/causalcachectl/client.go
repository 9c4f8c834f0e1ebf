package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rise-lab/causalcache/internal/wire"
)

// Client is a thin HTTP client against a causalcached instance's
// client-facing GET/PUT/GC surface.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient builds a Client pointed at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) post(path string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.HTTPClient.Post(c.BaseURL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %s: %s", path, resp.Status, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// GetSingle issues a SINGLE-consistency read for one key.
func (c *Client) GetSingle(clientID, key string) (wire.CausalResponse, error) {
	var resp wire.CausalResponse
	err := c.post("/get", wire.CausalRequest{
		ClientID:    clientID,
		Consistency: "SINGLE",
		ReadSet:     []string{key},
	}, &resp)
	return resp, err
}

// GetCross issues a CROSS-consistency read across multiple keys.
func (c *Client) GetCross(clientID string, keys []string) (wire.CausalResponse, error) {
	var resp wire.CausalResponse
	err := c.post("/get", wire.CausalRequest{
		ClientID:    clientID,
		Consistency: "CROSS",
		ReadSet:     keys,
	}, &resp)
	return resp, err
}

// Put writes a single key/value tuple at the given consistency level.
func (c *Client) Put(clientID, requestID, consistency, key string, payload []string) (wire.CausalResponse, error) {
	var resp wire.CausalResponse
	err := c.post("/put", wire.CausalRequest{
		ClientID:    clientID,
		RequestID:   requestID,
		Consistency: consistency,
		Puts: []wire.PutTuple{
			{Key: key, Payload: payload},
		},
	}, &resp)
	return resp, err
}

// GC releases a client id's pinned version-store entries.
func (c *Client) GC(clientID string) error {
	return c.post("/gc", struct {
		ClientID string `json:"client_id"`
	}{ClientID: clientID}, nil)
}
