package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// problemDetail is the RFC 7807 error body written by middleware.
// Handlers use the richer api.ProblemDetail; middleware keeps its own minimal
// copy to avoid an import cycle.
type problemDetail struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail"`
	Instance      string `json:"instance"`
	CorrelationID string `json:"correlation_id"` //nolint: tagliatelle
}

// writeRFC7807Error writes an RFC 7807 problem+json response from middleware.
func writeRFC7807Error(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	detail string,
	correlationID string,
) error {
	body := problemDetail{
		Type:          fmt.Sprintf("https://repsync.io/problems/%d", status),
		Title:         http.StatusText(status),
		Status:        status,
		Detail:        detail,
		Instance:      r.URL.Path,
		CorrelationID: correlationID,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(body)
}
