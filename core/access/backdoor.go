package access

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// BackdoorMiddlewareBuilder is a helper builder for NewBackdoorMiddleware
type BackdoorMiddlewareBuilder struct {
	// Backdoors is a mapping from a bearer token to an actual authorization
	Backdoors map[string]Authorization
}

// NewBackdoorMiddleware returns a middleware handler for a backdoor
//
// The key for the backdoors map is the bearer token passed with the request.
//
// Example: if you specify the backdoor
//
//	"please": Authorization{Roles:[]string{"admin","user"}}
//
// then any request with an authorization bearer token consisting of the single
// magic word "please" will be authorized with the admin and user roles.
//
// With curl, use -H 'Authorization: Bearer please' or pass a cookie with
// -b 'Campus-JWT=please'
//
// Unknown tokens are passed on untouched, so the backdoor can be combined with
// the JWT middleware.
func NewBackdoorMiddleware(bmb *BackdoorMiddlewareBuilder) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if AuthorizationFromContext(r.Context()) != nil { // already authorized?
				h.ServeHTTP(w, r)
				return
			}
			tokenString := bearerToken(r)
			if tryAuth, ok := bmb.Backdoors[tokenString]; ok && len(tokenString) > 0 {
				auth := tryAuth
				r = r.WithContext(ContextWithAuthorization(r.Context(), &auth))
			}
			h.ServeHTTP(w, r)
		})
	}
}

// bearerToken returns the token from the authorization header or,
// if there is none, from the Campus-JWT cookie.
func bearerToken(r *http.Request) string {
	bearer := r.Header.Get("Authorization")
	if len(bearer) > 0 && bearer != "null" {
		if len(bearer) >= 8 && strings.ToLower(bearer[:7]) == "bearer " {
			return strings.TrimSpace(bearer[7:])
		}
		return bearer
	}
	if cookie, _ := r.Cookie("Campus-JWT"); cookie != nil {
		return cookie.Value
	}
	return ""
}
