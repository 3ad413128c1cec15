package router

import (
	"net/http"
	"strings"

	"github.com/stepauth/stepauth/internal/pkg/session"
)

// middlewareAuthentication resolves the bearer session token into the request
// context for every route, and gates non-public routes on an authenticated
// session. Public routes see the pre-auth session (when present) but are
// never rejected here.
func middlewareAuthentication(sessions session.Sessions, publicEndpoints map[string]map[string]struct{}) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			public := false
			if s, ok := publicEndpoints[r.Method]; ok {
				_, public = s[matchedRoutePath(r)]
			}

			var current *session.Session
			if p := strings.Fields(r.Header.Get("Authorization")); len(p) == 2 && strings.EqualFold(p[0], "Bearer") {
				sess, err := sessions.Resolve(r.Context(), p[1])
				if err == nil {
					current = sess
					r = r.WithContext(session.SetCurrent(r.Context(), *sess))
				} else if !public {
					writeJSON(w, map[string]string{"message": "Invalid or expired session"}, http.StatusUnauthorized)
					return
				}
			}

			if public {
				next.ServeHTTP(w, r)
				return
			}

			if current == nil || !current.Authenticated {
				writeJSON(w, map[string]string{"message": "Authentication required"}, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
