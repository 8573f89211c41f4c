package backend

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/campus/core/logger"
)

// EntityNotFoundError is returned when a record does not exist
type EntityNotFoundError struct {
	Resource string
	ID       int64
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s with id %d not found", e.Resource, e.ID)
}

// badRequestError is returned for malformed input
type badRequestError struct {
	message string
}

func (e *badRequestError) Error() string {
	return e.message
}

func badRequest(format string, args ...interface{}) error {
	return &badRequestError{message: fmt.Sprintf(format, args...)}
}

// errorResponse is the body of a not found response
type errorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// handlerFunc is a request handler which returns its failure instead of writing it
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// ServeHTTP translates errors into responses. This is the only place where handler
// errors become http status codes.
func (h handlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := h(w, r)
	if err == nil {
		return
	}

	var notFound *EntityNotFoundError
	var bad *badRequestError
	switch {
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Type: "EntityNotFoundException", Message: notFound.Error()})
	case errors.As(err, &bad):
		http.Error(w, bad.Error(), http.StatusBadRequest)
	default:
		logger.FromContext(r.Context()).WithError(err).Errorf("Error 4731: %s %s", r.Method, r.URL.Path)
		http.Error(w, "Error 4731", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	jsonData, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Error 4732", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(jsonData)
}
