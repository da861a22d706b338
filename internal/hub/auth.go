package hub

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/irhub/irhub/internal/apierr"
)

// requireAPIToken checks "Authorization: Bearer <token>" against the
// configured bcrypt hash. There is no human login here, unlike the
// teacher's session-cookie auth: the hub has no browser-facing UI, only a
// JSON API a single operator token protects.
func (s *Server) requireAPIToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			apierr.WriteJSON(w, apierr.New(http.StatusUnauthorized, "unauthorized", "missing bearer token"))
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(s.apiTokenHash), []byte(token)); err != nil {
			apierr.WriteJSON(w, apierr.New(http.StatusUnauthorized, "unauthorized", "invalid bearer token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
