// Package problem writes RFC 7807 error bodies. Policy errors add a machine
// readable code matching the codes used inside decisions.
package problem

import (
	"encoding/json"
	"net/http"
)

const contentType = "application/problem+json"
const baseTypeURL = "https://errors.wallet-policy.dev/"

// Details is an RFC 7807 problem with the service's extension members.
type Details struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	Instance  string `json:"instance"`
	RequestID string `json:"request_id"`
	Code      string `json:"code,omitempty"`
}

func Type(slug string) string {
	return baseTypeURL + slug
}

// Write sends a problem without a code.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	WriteDetails(w, r, Details{Type: problemType, Title: title, Status: status, Detail: detail})
}

// WriteCode sends a problem carrying a policy error code such as
// "invalid_transaction" or "snapshot_unavailable".
func WriteCode(w http.ResponseWriter, r *http.Request, status int, problemType, code, detail string) {
	WriteDetails(w, r, Details{Type: problemType, Status: status, Detail: detail, Code: code})
}

// WriteDetails fills the defaulted members of d and sends it.
func WriteDetails(w http.ResponseWriter, r *http.Request, d Details) {
	if d.Title == "" {
		d.Title = http.StatusText(d.Status)
	}
	if d.Type == "" {
		d.Type = "about:blank"
	}
	if r != nil {
		d.Instance = r.URL.Path
		d.RequestID = r.Header.Get("X-Trace-ID")
	}
	if d.RequestID == "" {
		d.RequestID = w.Header().Get("X-Trace-ID")
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d)
}
