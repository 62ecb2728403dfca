package api

import (
	"encoding/json"
	"errors"
	"net/http"

	kanerr "github.com/amterp/kanflow/internal/errors"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Error writes an error response, mapping domain errors to HTTP status codes.
func Error(w http.ResponseWriter, err error) {
	status, body := errorStatus(err)
	JSON(w, status, body)
}

func errorStatus(err error) (int, ErrorBody) {
	body := ErrorBody{Error: err.Error()}

	var notFound *kanerr.NotFoundError
	var notInit *kanerr.NotInitializedError
	var alreadyExists *kanerr.AlreadyExistsError
	var validation *kanerr.ValidationError

	switch {
	case errors.Is(err, kanerr.ErrPersistence):
		body.Retryable = true
		return http.StatusServiceUnavailable, body
	case errors.Is(err, kanerr.ErrUnauthenticated):
		return http.StatusUnauthorized, body
	case errors.As(err, &notFound):
		return http.StatusNotFound, body
	case errors.As(err, &notInit):
		body.Error = "kanflow is not initialized in this directory"
		return http.StatusNotFound, body
	case errors.As(err, &alreadyExists):
		return http.StatusConflict, body
	case errors.As(err, &validation):
		return http.StatusBadRequest, body
	case errors.Is(err, kanerr.ErrInvalidMove), errors.Is(err, kanerr.ErrStaleSnapshot):
		return http.StatusConflict, body
	}
	return http.StatusInternalServerError, body
}

// BadRequest writes a 400 error with the given message.
func BadRequest(w http.ResponseWriter, message string) {
	JSON(w, http.StatusBadRequest, ErrorBody{Error: message})
}
