// Package membership fetches a user's membership document from the
// Patreon API. The document is a JSON:API identity resource whose
// included relations carry the member's entitlement.
package membership

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
)

// ErrNoToken means the user has no stored access token, so there is
// nothing to look up.
var ErrNoToken = errors.New("membership: no access token")

// Lookup returns the membership document of a user.
type Lookup interface {
	Lookup(ctx context.Context, userID int64) (*Document, error)
}

// Document is the identity document returned by the API.
type Document struct {
	Data     Resource   `json:"data"`
	Included []Resource `json:"included,omitempty"`
}

// Resource is one JSON:API resource object.
type Resource struct {
	ID         json.RawMessage `json:"id,omitempty"`
	Type       string          `json:"type"`
	Attributes map[string]any  `json:"attributes,omitempty"`
}

// UserID returns the membership account id, or "" when absent. Ids are
// strings in the API but numeric ids are tolerated.
func (d *Document) UserID() string {
	if d == nil {
		return ""
	}
	return IDString(d.Data.ID)
}

// Email returns the account e-mail attribute, or "".
func (d *Document) Email() string {
	if d == nil {
		return ""
	}
	s, _ := d.Data.Attributes["email"].(string)
	return s
}

// EntitledCents returns currently_entitled_amount_cents of the first
// "member" relation. ok is false when there is no member relation.
func (d *Document) EntitledCents() (cents int64, ok bool) {
	if d == nil {
		return 0, false
	}
	for _, inc := range d.Included {
		if inc.Type != "member" {
			continue
		}
		return Cents(inc.Attributes["currently_entitled_amount_cents"]), true
	}
	return 0, false
}

// IDString renders a raw JSON id (string or number) as text.
func IDString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// Cents converts a decoded JSON value (number or numeric string) to an
// integer amount. Anything else is 0.
func Cents(v any) int64 {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		return int64(x)
	case json.Number:
		n, _ := strconv.ParseFloat(x.String(), 64)
		return int64(n)
	case string:
		n, _ := strconv.ParseFloat(x, 64)
		return int64(n)
	}
	return 0
}
