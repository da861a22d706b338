package hub

import (
	"encoding/json"
	"net/http"

	"github.com/irhub/irhub/internal/apierr"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func apiValidation(msg string) error {
	return apierr.Validation.WithMessage(msg)
}
