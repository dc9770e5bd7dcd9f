package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/nikhilbhutani/whisperapi/internal/auth"
)

type AuthHandler struct {
	keys *auth.APIKeyStore
	jwt  *auth.JWTMiddleware
}

func NewAuthHandler(keys *auth.APIKeyStore, jwt *auth.JWTMiddleware) *AuthHandler {
	return &AuthHandler{keys: keys, jwt: jwt}
}

// Token exchanges a form-encoded api_key for a bearer token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	key := r.PostFormValue("api_key")
	if key == "" {
		writeError(w, http.StatusUnprocessableEntity, "api_key is required")
		return
	}
	if !h.keys.Valid(key) {
		slog.Info("rejected token request", "remote_addr", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "Invalid API key")
		return
	}

	tok, err := h.jwt.Issue(auth.SubjectForKey(key))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, tok)
}
