/*
Package access provides utilities for access control
*/
package access

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/campus/core"
	"github.com/relabs-tech/campus/core/logger"
)

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

// the predefined context key
const (
	contextKeyAuthorization contextKey = "_authorization_"
)

// Well known roles
const (
	// RoleAdmin may do everything, unless a permit says otherwise
	RoleAdmin = "admin"
	// RoleUser is granted to every authenticated caller
	RoleUser = "user"
	// RoleEverybody addresses every authenticated caller in a permit
	RoleEverybody = "everybody"
	// RolePublic addresses everybody in a permit, including anonymous callers
	RolePublic = "public"
)

/*
Authorization is a context object which stores authorization information
for the caller of a request.

An authorization carries the caller's identity and a list of roles.
Authorizations are added to a request context with

	ctx = access.ContextWithAuthorization(ctx, auth)

and retrieved with

	auth := access.AuthorizationFromContext(ctx)

Authorization objects are added to the context by identity middlewares, see
NewJwtMiddleware and NewBackdoorMiddleware. A request without authorization is
anonymous.
*/
type Authorization struct {
	Identity string   `json:"identity,omitempty"`
	Roles    []string `json:"roles"`
}

// Permit grants a role a set of operations on a resource
type Permit struct {
	Role       string           `json:"role"`
	Operations []core.Operation `json:"operations"`
}

// HasRole returns true if the authorization contains the requested role;
// otherwise it returns false.
func (a *Authorization) HasRole(role string) bool {
	if a == nil {
		return false
	}
	for _, hasRole := range a.Roles {
		if role == hasRole {
			return true
		}
	}
	return false
}

// IsAuthorized returns true if the authorization is authorized for the requested
// operation according to the passed permits.
//
// The "admin" role is always authorized by default, unless specified otherwise in the permits.
// A permit given to "everybody" applies to all authenticated roles, a permit given to "public"
// also applies to anonymous callers.
func (a *Authorization) IsAuthorized(operation core.Operation, permits []Permit) bool {
	permissions := map[string][]core.Operation{}
	for _, permit := range permits {
		permissions[permit.Role] = append(permissions[permit.Role], permit.Operations...)
	}

	var roles []string
	if a != nil {
		roles = append(roles, a.Roles...)
	}
	roles = append(roles, RolePublic)

	for _, role := range roles {
		operations, ok := permissions[role]
		if !ok && role != RolePublic {
			operations, ok = permissions[RoleEverybody]
		}
		if !ok && role == RoleAdmin {
			return true
		}
		for _, o := range operations {
			if o == operation {
				return true
			}
		}
	}
	return false
}

// ContextWithAuthorization returns a new context with the authorization added to it
func ContextWithAuthorization(ctx context.Context, auth *Authorization) context.Context {
	return context.WithValue(ctx, contextKeyAuthorization, auth)
}

// AuthorizationFromContext retrieves an authorization from the context
func AuthorizationFromContext(ctx context.Context) *Authorization {
	a, ok := ctx.Value(contextKeyAuthorization).(*Authorization)
	if ok {
		return a
	}
	return nil
}

// AuthorizationCache is an in-memory cache for authorizations. It is used by
// jwt middleware to skip the account lookup for tokens it has seen recently.
// Every entry expires, at the latest with the token it was derived from.
type AuthorizationCache struct {
	mutex sync.RWMutex
	cache map[string]cachedAuthorization
}

type cachedAuthorization struct {
	auth      *Authorization
	expiresAt time.Time
}

// NewAuthorizationCache creates a new authorization cache
func NewAuthorizationCache() *AuthorizationCache {
	return &AuthorizationCache{cache: make(map[string]cachedAuthorization)}
}

// Read returns an authorization from in-process cache, or nil if there is none or
// it has expired.
// Token should be the temporary token the authorization was derived from, not the identity.
// This function is go-routine safe
func (a *AuthorizationCache) Read(token string) *Authorization {
	a.mutex.RLock()
	entry, ok := a.cache[token]
	a.mutex.RUnlock()
	if !ok || !time.Now().Before(entry.expiresAt) {
		return nil
	}
	return entry.auth
}

// Write stores an authorization in the in-memory cache until expiresAt. Expired
// entries are dropped on every write.
// This function is go-routine safe
func (a *AuthorizationCache) Write(token string, auth *Authorization, expiresAt time.Time) {
	now := time.Now()
	a.mutex.Lock()
	defer a.mutex.Unlock()
	for t, entry := range a.cache {
		if !now.Before(entry.expiresAt) {
			delete(a.cache, t)
		}
	}
	if now.Before(expiresAt) {
		a.cache[token] = cachedAuthorization{auth: auth, expiresAt: expiresAt}
	}
}

// Len returns the number of cached authorizations, including expired ones not yet dropped
func (a *AuthorizationCache) Len() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return len(a.cache)
}

// HandleAuthorizationRoute adds a route /api/currentUser GET to the router
//
// The route returns the current authorization of the caller, or 204 for
// anonymous callers.
func HandleAuthorizationRoute(router *mux.Router) {
	rlog := logger.Default()
	rlog.Debugln("authorization")
	rlog.Debugln("  handle route: /api/currentUser GET")
	router.HandleFunc("/api/currentUser", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		auth := AuthorizationFromContext(r.Context())
		if auth == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		jsonData, _ := json.Marshal(auth)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write(jsonData)
	}).Methods(http.MethodOptions, http.MethodGet)
}
