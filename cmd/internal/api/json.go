package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"nestwatch/cmd/internal/session"
	"nestwatch/cmd/internal/token"
	"nestwatch/cmd/internal/verify"
)

// Error kinds surfaced to callers (wire-stable).
const (
	kindValidation     = "validation"
	kindNotFound       = "not_found"
	kindAlreadyStopped = "already_stopped"
	kindAuth           = "auth"
	kindNoReference    = "no_reference"
	kindInternal       = "internal"
)

type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorResponse{Error: apiError{Kind: kind, Message: msg}})
}

// writeDomainError maps core errors onto HTTP statuses and error kinds.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrValidation), errors.Is(err, verify.ErrBadImage):
		writeError(w, http.StatusBadRequest, kindValidation, err.Error())
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, kindNotFound, err.Error())
	case errors.Is(err, session.ErrAlreadyStopped):
		writeError(w, http.StatusConflict, kindAlreadyStopped, err.Error())
	case errors.Is(err, token.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, kindAuth, err.Error())
	case errors.Is(err, verify.ErrNoReference):
		writeError(w, http.StatusNotFound, kindNoReference, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, kindInternal, "internal error")
	}
}

// decodeJSON reads a single strict JSON object. allowEmpty tolerates an
// absent body for endpoints whose fields are all optional.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any, allowEmpty bool) error {
	if r.Body == nil {
		if allowEmpty {
			return nil
		}
		return errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()

	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	// Ensure there is no extra data after the first JSON value.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}
