package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/vango-dev/domwire/pkg/protocol"
)

// userID returns the user id carried by the request's cookie, or "" when
// it is missing or malformed.
func userID(r *http.Request) string {
	c, err := r.Cookie(protocol.UserCookie)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return ""
	}
	return c.Value
}

// ensureUserID returns the request's user id, issuing a new one in a cookie
// when it has none.
func (s *Server) ensureUserID(w http.ResponseWriter, r *http.Request) string {
	if uid := userID(r); uid != "" {
		return uid
	}
	uid := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     protocol.UserCookie,
		Value:    uid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.config.SecureCookies,
	})
	return uid
}
