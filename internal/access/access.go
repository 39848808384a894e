// Package access derives a caller's login state and membership tier.
//
// The tier gates paid features in the front end:
//   - administrators always get all-access;
//   - anonymous callers get none;
//   - everyone else is bucketed by pledge amount in cents: 300 and above
//     is tier-3-or-higher, anything positive below that is tier-below-3.
//
// The pledge amount comes from stored user attributes and may be
// overridden by a positive entitlement from the optional membership
// lookup.
package access

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/multiplier-synth/multiplier-api/internal/logger"
	"github.com/multiplier-synth/multiplier-api/internal/membership"
)

// Tier labels.
const (
	TierAllAccess     = "all-access"
	TierThreeOrHigher = "tier-3-or-higher"
	TierBelowThree    = "tier-below-3"
	TierNone          = "none"
)

// ThresholdCents is the smallest pledge that reaches tier-3-or-higher.
const ThresholdCents = 300

// Stored attribute keys.
const (
	MetaPledgeCents   = "patreon_pledge_amount_cents"
	MetaPatreonUserID = "patreon_user_id"
	MetaPatreonUser   = "patreon_user" // legacy structured record
	MetaPatreonEmail  = "patreon_email"
)

// AttributeStore reads per-user key/value attributes.
type AttributeStore interface {
	UserMeta(ctx context.Context, userID int64) (map[string]string, error)
}

// Caller is what the identity provider knows about the requester.
type Caller struct {
	UserID   int64
	LoggedIn bool
	IsAdmin  bool
}

// Status is the login-status response. Unknown membership fields are
// null.
type Status struct {
	LoggedIn         bool    `json:"logged_in"`
	IsAdmin          bool    `json:"is_admin"`
	PatreonLoggedIn  bool    `json:"patreon_logged_in"`
	Tier             string  `json:"tier"`
	PatreonTierCents *int64  `json:"patreon_tier_cents"`
	PatreonUserID    *string `json:"patreon_user_id"`
	PatreonEmail     *string `json:"patreon_email"`
	UserID           int64   `json:"user_id"`
}

// Classifier computes Status values.
type Classifier struct {
	attrs  AttributeStore
	lookup membership.Lookup
	log    *logger.Logger
}

// NewClassifier creates a classifier. lookup may be nil, in which case
// only stored attributes are consulted.
func NewClassifier(attrs AttributeStore, lookup membership.Lookup, log *logger.Logger) *Classifier {
	return &Classifier{attrs: attrs, lookup: lookup, log: log.With("service", "AccessClassifier")}
}

// TierFor maps a resolved pledge amount and the admin flag to a tier.
func TierFor(cents int64, isAdmin bool) string {
	switch {
	case isAdmin:
		return TierAllAccess
	case cents >= ThresholdCents:
		return TierThreeOrHigher
	case cents > 0:
		return TierBelowThree
	default:
		return TierNone
	}
}

// Status classifies the caller. It never fails: attribute and lookup
// errors are logged and treated as "no data".
func (c *Classifier) Status(ctx context.Context, caller Caller) Status {
	st := Status{
		LoggedIn: caller.LoggedIn,
		IsAdmin:  caller.IsAdmin,
		Tier:     TierNone,
		UserID:   caller.UserID,
	}
	if caller.IsAdmin {
		st.Tier = TierAllAccess
	}
	if !caller.LoggedIn {
		return st
	}

	meta, err := c.attrs.UserMeta(ctx, caller.UserID)
	if err != nil {
		c.log.Warn("Reading membership attributes failed", "userId", caller.UserID, "error", err)
		meta = nil
	}

	pledge := parseCents(meta[MetaPledgeCents])
	storedID := strings.TrimSpace(meta[MetaPatreonUserID])
	if storedID == "" {
		storedID = legacyPatreonID(meta[MetaPatreonUser])
	}
	email := strings.TrimSpace(meta[MetaPatreonEmail])

	var lookupID string
	if doc := c.lookupDocument(ctx, caller.UserID); doc != nil {
		if id := doc.UserID(); id != "" {
			lookupID = id
			if email == "" {
				email = doc.Email()
			}
			if cents, ok := doc.EntitledCents(); ok && cents > 0 {
				pledge = cents
			}
		}
	}

	if pledge > 0 || lookupID != "" || storedID != "" {
		st.PatreonLoggedIn = true
	}
	if pledge != 0 {
		st.PatreonTierCents = &pledge
	}
	if id := firstNonEmpty(lookupID, storedID); id != "" {
		st.PatreonUserID = &id
	}
	if email != "" {
		st.PatreonEmail = &email
	}

	st.Tier = TierFor(pledge, caller.IsAdmin)
	return st
}

// lookupDocument queries the optional lookup. Every failure means nil.
func (c *Classifier) lookupDocument(ctx context.Context, userID int64) *membership.Document {
	if c.lookup == nil {
		return nil
	}
	doc, err := c.lookup.Lookup(ctx, userID)
	switch {
	case errors.Is(err, membership.ErrNoToken):
		return nil
	case err != nil:
		c.log.Warn("Membership lookup failed", "userId", userID, "error", err)
		return nil
	}
	return doc
}

// parseCents reads a stored integer amount. Blank or malformed values
// are 0; fractional values are truncated and out-of-range values clamped.
func parseCents(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	switch {
	case err != nil && !errors.Is(err, strconv.ErrRange), math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

// legacyPatreonID extracts data.id from the legacy patreon_user
// attribute, stored either as a JSON object or as a JSON string that
// itself holds the object.
func legacyPatreonID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if id := nestedID([]byte(raw)); id != "" {
		return id
	}
	var inner string
	if err := json.Unmarshal([]byte(raw), &inner); err != nil {
		return ""
	}
	return nestedID([]byte(inner))
}

func nestedID(b []byte) string {
	var rec struct {
		Data struct {
			ID json.RawMessage `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return ""
	}
	return membership.IDString(rec.Data.ID)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
