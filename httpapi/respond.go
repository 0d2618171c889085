package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"marketflow/auth"
	"marketflow/listing"
	"marketflow/pagination"
	"marketflow/request"
)

// envelope is the uniform response shape. Failures always ride a non-200
// status; success is never false on 200.
type envelope struct {
	Success    bool             `json:"success"`
	Data       any              `json:"data,omitempty"`
	Error      string           `json:"error,omitempty"`
	Pagination *pagination.Meta `json:"pagination,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writePage(w http.ResponseWriter, data any, meta pagination.Meta) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Pagination: &meta})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

// respondError translates a domain error into a status code and a safe
// message. Unmapped errors become an opaque 500; internals never leak.
func respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, request.ErrInvalidArgument),
		errors.Is(err, request.ErrInvalidTransition),
		errors.Is(err, request.ErrInvalidDateRange),
		errors.Is(err, request.ErrPastStartDate),
		errors.Is(err, request.ErrMissingRate),
		errors.Is(err, request.ErrMessageTooLong),
		errors.Is(err, request.ErrAttachmentConflict),
		errors.Is(err, request.ErrKindMismatch),
		errors.Is(err, request.ErrSelfRequest),
		errors.Is(err, listing.ErrInvalidArgument),
		errors.Is(err, auth.ErrInvalidArgument),
		errors.Is(err, auth.ErrWeakPassword):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, request.ErrForbidden),
		errors.Is(err, listing.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, request.ErrNotFound),
		errors.Is(err, request.ErrResourceNotFound),
		errors.Is(err, listing.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, request.ErrDuplicatePending),
		errors.Is(err, request.ErrResourceUnavailable),
		errors.Is(err, request.ErrNotPending),
		errors.Is(err, auth.ErrDuplicateEmail):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
