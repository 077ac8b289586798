// Package session defines the access-token session record the SDK
// persists between requests, plus the pluggable Storage interface apps
// supply to persist it. Driver subpackages provide ready-made stores for
// SQLite, Postgres and Redis.
package session

import (
	"strconv"
	"strings"
	"time"
)

// Session holds one shop's OAuth state: the access token obtained for a
// shop (offline) or for a shop+staff-member pair (online), along with the
// scopes it was granted.
type Session struct {
	// ID is deterministic: "offline_{shop}" or "{shop}_{userID}".
	ID string

	// Shop is the shop domain, e.g. "demo.harborshop.com".
	Shop string

	// State carries the OAuth state nonce while an authorization-code
	// flow is in flight. Empty once the flow completes.
	State string

	// IsOnline marks per-user tokens that expire with the admin session.
	IsOnline bool

	// Scope is the comma-delimited scope list granted to the app.
	Scope string

	// AccessToken authenticates Admin API calls for this shop.
	AccessToken string

	// Expires is nil for offline tokens, which do not expire.
	Expires *time.Time

	// User is set on online sessions only.
	User *OnlineUser

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OnlineUser describes the staff member an online token is bound to.
type OnlineUser struct {
	ID            int64
	FirstName     string
	LastName      string
	Email         string
	EmailVerified bool
	AccountOwner  bool
	Locale        string
	Collaborator  bool

	// Scope is the subset of app scopes this particular user granted.
	Scope string
}

// OfflineID returns the deterministic session ID for a shop's offline
// token.
func OfflineID(shop string) string {
	return "offline_" + shop
}

// OnlineID returns the deterministic session ID for a shop+user pair.
func OnlineID(shop string, userID int64) string {
	return shop + "_" + strconv.FormatInt(userID, 10)
}

// NewOffline builds an offline session for a shop.
func NewOffline(shop, accessToken, scope string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:          OfflineID(shop),
		Shop:        shop,
		Scope:       scope,
		AccessToken: accessToken,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewOnline builds an online session for a shop and user, expiring after
// ttl.
func NewOnline(shop, accessToken, scope string, user OnlineUser, ttl time.Duration) *Session {
	now := time.Now().UTC()
	expires := now.Add(ttl)
	return &Session{
		ID:          OnlineID(shop, user.ID),
		Shop:        shop,
		IsOnline:    true,
		Scope:       scope,
		AccessToken: accessToken,
		Expires:     &expires,
		User:        &user,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Expired reports whether the session expires within the given window.
// Offline sessions never expire.
func (s *Session) Expired(within time.Duration) bool {
	if s.Expires == nil {
		return false
	}
	return time.Now().Add(within).After(*s.Expires)
}

// Active reports whether the session holds a usable token covering the
// required scopes. This is the check every authentication path runs
// before trusting a stored session.
func (s *Session) Active(requiredScopes string) bool {
	if s.AccessToken == "" {
		return false
	}
	if s.Expired(0) {
		return false
	}
	return ScopesCover(s.Scope, requiredScopes)
}

// SplitScopes normalizes a comma-delimited scope list into trimmed,
// de-duplicated entries. Order is preserved.
func SplitScopes(scope string) []string {
	if strings.TrimSpace(scope) == "" {
		return nil
	}

	parts := strings.Split(scope, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// ScopesCover reports whether every required scope is present in granted.
// A "write_x" grant implies "read_x".
func ScopesCover(granted, required string) bool {
	have := make(map[string]struct{})
	for _, g := range SplitScopes(granted) {
		have[g] = struct{}{}
		if rest, ok := strings.CutPrefix(g, "write_"); ok {
			have["read_"+rest] = struct{}{}
		}
	}

	for _, want := range SplitScopes(required) {
		if _, ok := have[want]; !ok {
			return false
		}
	}
	return true
}
