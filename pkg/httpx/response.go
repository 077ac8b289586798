// Package httpx holds small HTTP helpers shared by the SDK's handlers.
package httpx

import (
	"encoding/json"
	"net/http"
)

// Middleware is the standard net/http middleware shape.
type Middleware func(http.Handler) http.Handler

// Chain composes middlewares so the first argument is the outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// WriteJSON writes v as a JSON response with the given status code.
// Responses carry no-store cache headers, everything the SDK serves is
// per-request state.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache sets Cache-Control and Pragma headers to prevent caching of
// sensitive responses.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// IsDataRequest reports whether the request looks like an XHR/fetch call
// rather than a top-level document navigation. Embedded apps need the
// distinction: data requests get a 401 with a reauthorize header, document
// requests get a redirect.
func IsDataRequest(r *http.Request) bool {
	if r.Header.Get("Authorization") != "" {
		return true
	}
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	return r.Header.Get("Sec-Fetch-Dest") == "empty"
}
