package membership

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AccessTokenKey is the user attribute holding the Patreon access token.
const AccessTokenKey = "patreon_access_token"

// AttributeSource reads stored per-user attributes.
type AttributeSource interface {
	UserMeta(ctx context.Context, userID int64) (map[string]string, error)
}

// PatreonClient queries the Patreon v2 identity endpoint with the user's
// own access token.
type PatreonClient struct {
	base   string
	client *http.Client
	attrs  AttributeSource
}

// NewPatreonClient creates a client for the given API root, e.g.
// "https://www.patreon.com/api/oauth2/v2".
func NewPatreonClient(apiBase string, timeout time.Duration, attrs AttributeSource) *PatreonClient {
	return &PatreonClient{
		base:   strings.TrimRight(apiBase, "/"),
		client: &http.Client{Timeout: timeout},
		attrs:  attrs,
	}
}

// Lookup fetches the identity document with the memberships relation.
func (c *PatreonClient) Lookup(ctx context.Context, userID int64) (*Document, error) {
	meta, err := c.attrs.UserMeta(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("membership: read token: %w", err)
	}
	token := strings.TrimSpace(meta[AccessTokenKey])
	if token == "" {
		return nil, ErrNoToken
	}

	q := url.Values{}
	q.Set("include", "memberships")
	q.Set("fields[user]", "email")
	q.Set("fields[member]", "currently_entitled_amount_cents")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/identity?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("membership: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("membership: identity request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("membership: identity returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var doc Document
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("membership: decode identity: %w", err)
	}
	return &doc, nil
}
