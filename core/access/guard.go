package access

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/campus/core"
	"github.com/relabs-tech/campus/core/logger"
)

// Guard returns a middleware which rejects every request that is not authorized
// for operation according to permits. Rejected requests get http.StatusForbidden,
// both for anonymous callers and for callers lacking the required role.
func Guard(operation core.Operation, permits []Permit) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := AuthorizationFromContext(r.Context())
			if !auth.IsAuthorized(operation, permits) {
				logger.FromContext(r.Context()).Debugf("%s %s: not authorized for %s", r.Method, r.URL.Path, operation)
				http.Error(w, "not authorized", http.StatusForbidden)
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}
