package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayo6706/wallet-policy/internal/api/problem"
	"github.com/ayo6706/wallet-policy/internal/domain"
	"github.com/ayo6706/wallet-policy/internal/repository"
	"github.com/ayo6706/wallet-policy/internal/validation"
	"github.com/jackc/pgx/v5/pgconn"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// respondServiceError maps engine and storage errors onto problem responses.
// Engine errors carry the same code a decision would report.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.ValidationError
	switch {
	case errors.As(err, &verr):
		problem.WriteCode(w, r, http.StatusUnprocessableEntity, problem.Type("policy/invalid-transaction"), domain.ErrorCode(domain.ErrInvalidTransaction), err.Error())
	case errors.Is(err, domain.ErrInvalidTransaction), errors.Is(err, domain.ErrAmountOverflow):
		problem.WriteCode(w, r, http.StatusUnprocessableEntity, problem.Type("policy/invalid-transaction"), domain.ErrorCode(err), err.Error())
	case errors.Is(err, domain.ErrSnapshotUnavailable):
		problem.WriteCode(w, r, http.StatusServiceUnavailable, problem.Type("policy/snapshot-unavailable"), domain.ErrorCode(err), "policy rules are not loaded yet")
	case errors.Is(err, repository.ErrNotFound):
		RespondError(w, r, http.StatusNotFound, "resource/not-found", err.Error())
	default:
		if status, problemType, message, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, message)
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
	}
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	case "57014": // query_canceled
		return http.StatusServiceUnavailable, "db/timeout", "storage timed out", true
	default:
		return 0, "", "", false
	}
}
