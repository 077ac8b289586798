package shopkit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// verifyCallbackHMAC checks the hmac query parameter the platform signs
// onto OAuth redirects. The digest is hex HMAC-SHA256 over the remaining
// query parameters, sorted by key and joined with '&', keyed by the API
// secret. Comparison is constant-time.
func verifyCallbackHMAC(query url.Values, apiSecret string) bool {
	provided := query.Get("hmac")
	if provided == "" {
		return false
	}

	want, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write([]byte(canonicalQuery(query)))

	return hmac.Equal(mac.Sum(nil), want)
}

// canonicalQuery rebuilds the query string the platform signed: every
// parameter except hmac and signature, sorted by key, repeated values in
// order.
func canonicalQuery(query url.Values) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		if k == "hmac" || k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range query[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return b.String()
}

// signQuery computes the digest the platform would attach to a query.
// Exported behavior lives in tests and dev tooling that fakes callbacks.
func signQuery(query url.Values, apiSecret string) string {
	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write([]byte(canonicalQuery(query)))
	return hex.EncodeToString(mac.Sum(nil))
}
