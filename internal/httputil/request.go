package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// MaxBodyBytes caps RPC request bodies. SSE streams carry no body; the
// RPC plane never needs more than this.
const MaxBodyBytes = 1 << 20

// ParseJSON decodes the request body into dest, bounded by MaxBodyBytes.
// Unknown fields are tolerated; validation happens downstream.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	return ParseJSONLimit(w, r, dest, MaxBodyBytes)
}

// ParseJSONLimit is ParseJSON with a caller-supplied body cap. A limit
// of zero or less falls back to MaxBodyBytes.
func ParseJSONLimit(w http.ResponseWriter, r *http.Request, dest any, limit int64) error {
	if limit <= 0 {
		limit = MaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
