// Package gateway is the HTTP client for the external payment collaborator.
// The protocol is deliberately thin: a tokenized payment method goes in, an
// authorization reference or a decline comes out.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ticketry/boxoffice/internal/domain"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Authorize(ctx context.Context, token string, amount float64) (string, error) {
	var resp struct {
		AuthRef string `json:"auth_ref"`
		Status  string `json:"status"`
	}
	if err := c.post(ctx, "/v1/authorize", map[string]interface{}{
		"token":  token,
		"amount": amount,
	}, &resp); err != nil {
		return "", err
	}
	if resp.Status != "AUTHORIZED" {
		return "", errors.Wrapf(domain.ErrPaymentDeclined, "gateway status %s", resp.Status)
	}
	return resp.AuthRef, nil
}

func (c *Client) Void(ctx context.Context, authRef string) error {
	return c.post(ctx, "/v1/void", map[string]interface{}{"auth_ref": authRef}, nil)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errors.Newf("gateway returned %d", resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
