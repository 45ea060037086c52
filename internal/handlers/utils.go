package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/openshelf/apiserver/internal/auth"
)

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	OK      bool      `json:"ok"`
	Service string    `json:"service"`
	Time    time.Time `json:"time"`
}

const serviceName = "openshelf-apiserver"

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		OK:      true,
		Service: serviceName,
		Time:    time.Now().UTC(),
	})
}

// identityFromRequest returns the verified caller identity, writing a
// 401 response when none is attached.
func identityFromRequest(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return auth.Identity{}, false
	}
	return identity, true
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeInternalError logs the underlying error server-side and answers
// with a generic message; failure detail never reaches the client.
func writeInternalError(w http.ResponseWriter, message string, err error) {
	log.Printf("%s: %v", message, err)
	writeError(w, http.StatusInternalServerError, message)
}
