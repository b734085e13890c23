package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/iho/erpledger/internal/adapter/http/dto"
)

// writeError writes the same error body as the handlers.
func writeError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dto.ErrorResponse{Error: message, Message: details})
}
