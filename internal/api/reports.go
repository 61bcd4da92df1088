package api

import (
	"net/http"
)

// handleWeeklyReport returns the stored weekly report, generating one from the
// current metrics when absent.
//
// GET /api/v1/reports/weekly?week_start=YYYY-MM-DD
func (s *Server) handleWeeklyReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requestUserID(w, r)
	if !ok {
		return
	}

	weekStart, ok := s.weekStartParam(w, r)
	if !ok {
		return
	}

	report, err := s.deps.Reports.GetOrGenerate(r.Context(), userID, weekStart)
	if err != nil {
		s.writeProjectionError(w, r, err, "Failed to load weekly report")

		return
	}

	s.writeJSON(w, r, http.StatusOK, toReportResponse(report))
}

// handleRegenerateReport discards any stored report for the week and generates
// a fresh one from the current metrics.
//
// POST /api/v1/reports/weekly/regenerate?week_start=YYYY-MM-DD
func (s *Server) handleRegenerateReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requestUserID(w, r)
	if !ok {
		return
	}

	weekStart, ok := s.weekStartParam(w, r)
	if !ok {
		return
	}

	report, err := s.deps.Reports.Regenerate(r.Context(), userID, weekStart)
	if err != nil {
		s.writeProjectionError(w, r, err, "Failed to regenerate weekly report")

		return
	}

	s.writeJSON(w, r, http.StatusOK, toReportResponse(report))
}
