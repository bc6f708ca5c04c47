package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ariefcatur/custom-orders/internal/apperr"
	"go.uber.org/zap"
)

type errorBody struct {
	Message  string          `json:"message"`
	Category apperr.Category `json:"category"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto the error taxonomy. Server errors get a fixed
// message; the detail only goes to the log.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	cat := apperr.CategoryOf(err)
	msg := err.Error()
	if cat == apperr.CategoryServerError {
		log.Error("request failed", zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, apperr.HTTPStatus(cat), errorBody{Message: msg, Category: cat})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", apperr.ErrBadRequest)
		}
		return fmt.Errorf("%w: invalid json", apperr.ErrBadRequest)
	}
	return nil
}
