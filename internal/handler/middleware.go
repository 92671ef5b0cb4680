package handler

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// requireAdmin guards the administrative API with the static bearer key.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			renderJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}
		key := strings.TrimPrefix(auth, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.Cfg.AdminAPIKey)) != 1 {
			renderJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// viewerID pulls the viewer identity asserted by the fronting
// application. The gateway treats identity as opaque.
func viewerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Viewer-ID"))
}

// clientContext fingerprints the requesting client for the
// credential-sharing rule. IP plus user agent is coarse but stable
// enough to count distinct contexts.
func clientContext(r *http.Request) string {
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	sum := sha256.Sum256([]byte(ip + "\x00" + r.UserAgent()))
	return hex.EncodeToString(sum[:8])
}
