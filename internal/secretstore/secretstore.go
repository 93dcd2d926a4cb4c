// Package secretstore talks to the external TOTP secret service. Per-account
// shared secrets never touch Gatehouse's own storage; the store holds them
// and answers code-validation queries.
//
// Every operation is a blocking network call with no internal retry. A store
// that is down or misbehaving must read as "cannot verify", never as
// "verified" -- callers treat any error as a failed check (fail-closed).
package secretstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gatehouseid/gatehouse/internal/config"
)

// SecretStore is the capability interface the auth pipeline depends on.
// Tests substitute an in-memory fake; production uses the Vault-compatible
// HTTP client below.
type SecretStore interface {
	// Exists reports whether a TOTP secret is registered for the account.
	Exists(ctx context.Context, accountUID string) (bool, error)

	// Create registers a new TOTP secret for the account. Safe to call when
	// a secret already exists only via SafeCreate.
	Create(ctx context.Context, accountUID, email string) error

	// Validate checks a submitted code against the account's secret.
	// A missing secret or an unreachable store returns false.
	Validate(ctx context.Context, accountUID, code string) (bool, error)

	// Healthy reports whether the store answers its health endpoint.
	Healthy(ctx context.Context) bool
}

// SafeCreate creates a secret only if none exists yet, so re-enabling 2FA
// never rotates a secret out from under an enrolled authenticator.
func SafeCreate(ctx context.Context, s SecretStore, accountUID, email string) error {
	exists, err := s.Exists(ctx, accountUID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.Create(ctx, accountUID, email)
}

// Client implements SecretStore against a Vault-style TOTP HTTP API:
//
//	GET    /v1/totp/keys/<uid>           -- secret existence
//	POST   /v1/totp/keys/<uid>           -- secret creation
//	POST   /v1/totp/code/<uid>           -- code validation
//	GET    /v1/sys/health                -- health
type Client struct {
	baseURL string
	token   string
	issuer  string
	http    *http.Client
}

// NewClient builds a secret-store client from config. The HTTP client's
// timeout bounds every call so an unavailable store cannot stall sign-in.
func NewClient(cfg config.VaultConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Addr, "/"),
		token:   cfg.Token,
		issuer:  cfg.Issuer,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Exists reports whether a TOTP secret is registered for the account.
// The store must be healthy AND hold data for the account; either failing
// reads as "no secret", which makes downstream verification fail closed.
func (c *Client) Exists(ctx context.Context, accountUID string) (bool, error) {
	if !c.Healthy(ctx) {
		return false, nil
	}

	var out struct {
		Data map[string]any `json:"data"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/totp/keys/"+url.PathEscape(accountUID), nil, &out)
	if err != nil {
		return false, err
	}
	return len(out.Data) > 0, nil
}

// Create registers a generated TOTP secret for the account under the
// configured issuer name.
func (c *Client) Create(ctx context.Context, accountUID, email string) error {
	body := map[string]any{
		"generate":     true,
		"issuer":       c.issuer,
		"account_name": email,
		"qr_size":      300,
	}
	return c.do(ctx, http.MethodPost, "/v1/totp/keys/"+url.PathEscape(accountUID), body, nil)
}

// Validate checks a submitted code against the account's registered secret.
// Validation requires the secret to exist first; a store that cannot confirm
// existence fails the check rather than passing it.
func (c *Client) Validate(ctx context.Context, accountUID, code string) (bool, error) {
	exists, err := c.Exists(ctx, accountUID)
	if err != nil || !exists {
		return false, err
	}

	var out struct {
		Data struct {
			Valid bool `json:"valid"`
		} `json:"data"`
	}
	body := map[string]any{"code": code}
	if err := c.do(ctx, http.MethodPost, "/v1/totp/code/"+url.PathEscape(accountUID), body, &out); err != nil {
		return false, err
	}
	return out.Data.Valid, nil
}

// Healthy reports whether the store answers its health endpoint with 200.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/sys/health", nil)
	if err != nil {
		return false
	}
	req.Header.Set("X-Vault-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// do executes one JSON request against the store. Non-2xx responses become
// errors; 404 on a GET is treated as "no data" rather than an error so
// existence checks can distinguish absence from unavailability.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding secret store request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building secret store request: %w", err)
	}
	req.Header.Set("X-Vault-Token", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling secret store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("secret store returned status %d for %s %s", resp.StatusCode, method, path)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding secret store response: %w", err)
	}
	return nil
}
