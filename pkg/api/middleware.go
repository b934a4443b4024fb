package api

import (
	"net/http"
	"time"

	"github.com/mufat/mufat/pkg/report"
	"golang.org/x/crypto/bcrypt"
)

const noLoginHeader = report.NoLoginHeader

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// requireLogin enforces basic auth on submissions when login is required.
// Requests carrying the no-login header pass through.
func (s *server) requireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Auth.RequireLogin || r.Header.Get(noLoginHeader) != "" {
			next.ServeHTTP(w, r)

			return
		}

		username, password, ok := r.BasicAuth()
		if !ok || !s.checkUser(username, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="mufat"`)
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"authentication required"})

			return
		}

		next.ServeHTTP(w, r)
	})
}

// checkUser compares password with the bcrypt hash of the configured user.
func (s *server) checkUser(username, password string) bool {
	for _, u := range s.cfg.Auth.Users {
		if u.Username != username {
			continue
		}

		return bcrypt.CompareHashAndPassword(
			[]byte(u.Password), []byte(password),
		) == nil
	}

	return false
}
