package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/kpetrov-dev/bookstore-api/internal/catalog"
	"github.com/kpetrov-dev/bookstore-api/internal/order"
)

// ErrorResponse is the uniform error envelope for every failure.
type ErrorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
}

func respondWithError(w http.ResponseWriter, r *http.Request, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{
		Timestamp: time.Now().UTC(),
		Status:    code,
		Error:     http.StatusText(code),
		Message:   message,
		Path:      r.URL.Path,
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	var insufficient *catalog.InsufficientStockError
	switch {
	case errors.Is(err, order.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &insufficient):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrBookNotFound), errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, order.ErrOrderNotPending):
		return http.StatusConflict
	case errors.Is(err, order.ErrTransientStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage keeps diagnostic detail for business errors and hides
// internals for everything else.
func clientMessage(err error) string {
	var insufficient *catalog.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		return insufficient.Error()
	case errors.Is(err, order.ErrInvalidInput),
		errors.Is(err, catalog.ErrBookNotFound),
		errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, order.ErrForbidden),
		errors.Is(err, order.ErrOrderNotPending):
		return err.Error()
	case errors.Is(err, order.ErrTransientStorage):
		return "temporary storage failure, retry the request"
	default:
		return "internal server error"
	}
}

func formatValidationErrors(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		parts = append(parts, "field "+fe.Field()+" failed on "+fe.Tag())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
