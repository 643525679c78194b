package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"moneyflow/internal/log"
)

const bearerPrefix = "Bearer "

// requireBearer admits requests whose Authorization header is exactly
// "Bearer <CRON_SECRET>". An empty secret admits nothing.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r.Header.Get("Authorization")) {
			log.FromContext(r.Context()).WithComponent(log.ComponentSecurity).WarnContext(r.Context(),
				"Rejected unauthorized request",
				log.FieldPath, r.URL.Path,
				log.FieldClientIP, s.securityDetector.ExtractClientIP(r))
			UnauthorizedResponse().Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorized(header string) bool {
	if len(s.secret) == 0 || !strings.HasPrefix(header, bearerPrefix) {
		return false
	}
	token := []byte(header[len(bearerPrefix):])
	return subtle.ConstantTimeCompare(token, s.secret) == 1
}
