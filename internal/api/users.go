package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/repsync-io/repsync/internal/api/middleware"
	"github.com/repsync-io/repsync/internal/identity"
)

// handleCreateAnonymousUser creates a fresh anonymous user.
//
// POST /api/v1/users/anonymous
//
// No request body. Returns 201 with the new user so the client can store the
// id as its device-local identity.
func (s *Server) handleCreateAnonymousUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Users.CreateAnonymous(r.Context())
	if err != nil {
		s.logger.Error("failed to create anonymous user",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to create anonymous user"))

		return
	}

	s.writeJSON(w, r, http.StatusCreated, toUserResponse(user))
}

// handleGetMe returns the requesting user's account and profile.
//
// GET /api/v1/users/me
func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requestUserID(w, r)
	if !ok {
		return
	}

	user, err := s.deps.Users.Get(r.Context(), userID)
	if err != nil {
		s.writeUserError(w, r, err, "Failed to load user")

		return
	}

	s.writeJSON(w, r, http.StatusOK, toUserResponse(user))
}

// handleUpdateProfile stores the user's training profile.
//
// PUT /api/v1/users/me/profile
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requestUserID(w, r)
	if !ok {
		return
	}

	var req ProfileRequest
	if !s.decodeJSONBody(w, r, &req) {
		return
	}

	user, err := s.deps.Users.UpdateProfile(r.Context(), userID, req.Gender, req.Age)
	if err != nil {
		s.writeUserError(w, r, err, "Failed to update profile")

		return
	}

	s.writeJSON(w, r, http.StatusOK, toUserResponse(user))
}

// handleMergeUsers merges an anonymous user's data into the caller's account.
//
// POST /api/v1/users/merge
//
// The merge target is always the authenticated user; the body carries only
// the anonymous user id, so a client can never merge into an account it does
// not hold credentials for.
//
// Response codes:
//   - 200 OK: merge executed (or skipped because the anonymous user had no
//     events; the body says which)
//   - 400 Bad Request: merge preconditions violated
//   - 401 Unauthorized: no authenticated user
//   - 404 Not Found: either user does not exist
func (s *Server) handleMergeUsers(w http.ResponseWriter, r *http.Request) {
	userCtx, ok := middleware.GetUserContext(r.Context())
	if !ok {
		WriteErrorResponse(w, r, s.logger, Unauthorized("Merging requires an authenticated user"))

		return
	}

	var req MergeRequest
	if !s.decodeJSONBody(w, r, &req) {
		return
	}

	result, err := s.deps.Users.Merge(r.Context(), req.AnonymousUserID, userCtx.UserID)
	if err != nil {
		s.writeUserError(w, r, err, "Failed to merge users")

		return
	}

	s.writeJSON(w, r, http.StatusOK, toMergeResponse(result))
}

func (s *Server) writeUserError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		WriteErrorResponse(w, r, s.logger, NotFound("User not found"))
	case errors.Is(err, identity.ErrNotAnonymous),
		errors.Is(err, identity.ErrTargetAnonymous),
		errors.Is(err, identity.ErrInvalidProfile):
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))
	default:
		s.logger.Error(fallback,
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError(fallback))
	}
}
