// Package http adapts error-returning handlers to net/http and renders service errors as JSON.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/chainsafe/bridge-tracker/pkg/app/errors"
)

// HandlerFunc is an http.HandlerFunc that reports failure by returning it.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

type errorBody struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// HandleError turns h into an http.HandlerFunc usable with chi.
func HandleError(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			DefaultErrorHandler(w, err)
		}
	}
}

// DefaultErrorHandler writes err as {"error","code"}. Only a ServiceError's Message reaches
// the client; anything else becomes a bare 500.
func DefaultErrorHandler(w http.ResponseWriter, err error) {
	body := errorBody{Error: "Unexpected Service Error", Code: http.StatusInternalServerError}
	var svcErr *apperrors.ServiceError
	if errors.As(err, &svcErr) {
		body = errorBody{Error: svcErr.Message, Code: svcErr.StatusCode()}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(body.Code)
	_ = json.NewEncoder(w).Encode(&body)
}
