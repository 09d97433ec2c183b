// Package httperr renders the proxy's synthetic JSON error responses.
package httperr

import (
	"encoding/json"
	"net/http"
)

type body struct {
	Error string `json:"error"`
}

// JSON writes a {"error": "<msg>"} response with the given status and
// Content-Type: application/json. The message is JSON-escaped by
// encoding/json, satisfying the minimum quote/backslash escaping the wire
// format requires.
func JSON(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// body{msg} always marshals cleanly; a write failure here means the
	// client already went away.
	b, _ := json.Marshal(body{Error: msg})
	_, _ = w.Write(b)
}
