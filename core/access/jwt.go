package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/campus/core/csql"
	"github.com/relabs-tech/campus/core/logger"
	"github.com/relabs-tech/campus/core/registry"
)

const (
	// certificateRefresh is the maximum age of cached well-known certificates
	certificateRefresh = 6 * time.Hour
	// authorizationCaching is the maximum time an account lookup is reused
	authorizationCaching = 10 * time.Minute
)

// JwtMiddlewareBuilder is a helper builder for NewJwtMiddleware
type JwtMiddlewareBuilder struct {
	// Secret is the shared secret for HS256 signed tokens. Optional.
	Secret string
	// PublicKeyDownloadURL is the download url for public keys of RS256 signed tokens. In case of google, this would be
	//  "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
	// Optional.
	PublicKeyDownloadURL string
	// Issuer is the accepted issuer for the token. If empty, any issuer is accepted.
	Issuer string
	// AdminEmails are the emails which are granted the admin role
	AdminEmails []string
	// DB is the postgres database for accounts and the certificate registry. Optional, unless
	// PublicKeyDownloadURL is set.
	DB *csql.DB
}

// NewJwtMiddleware returns a middleware handler to validate
// JWT bearer token.
//
// Java-Web-Token (JWT) are accepted as "Authorization: Bearer"
// header or as "Campus-JWT"-cookie.
//
// Every authenticated caller gets the role "user". The caller also gets the role
// "admin" if its email is listed in AdminEmails, or if the account table marks it
// as admin. Accounts are created on first login.
//
// This is a final handler with regards to the bearer token. It will return
// http.StatusUnauthorized when a token is available but invalid. Requests
// without token are passed on as anonymous.
func NewJwtMiddleware(jmb *JwtMiddlewareBuilder) mux.MiddlewareFunc {
	if len(jmb.Secret) == 0 && len(jmb.PublicKeyDownloadURL) == 0 {
		panic("jwt middleware needs either a secret or a public key download url")
	}

	rlog := logger.Default()

	wellKnownKeys := map[string]interface{}{}
	if len(jmb.PublicKeyDownloadURL) > 0 {
		if jmb.DB == nil {
			panic("jwt middleware needs a database to cache public keys")
		}
		jwtRegistry, err := registry.New(jmb.DB, "_jwt_")
		if err != nil {
			panic(err)
		}
		certificates, err := wellKnownCertificates(context.Background(), jwtRegistry, jmb.PublicKeyDownloadURL)
		if err != nil {
			rlog.WithError(err).Errorln("cannot load well known certificates")
		}
		for kid, cert := range certificates {
			key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cert))
			if err != nil {
				rlog.WithError(err).Warnln("certificate error for kid", kid)
				continue
			}
			wellKnownKeys[kid] = key
		}
	}

	if jmb.DB != nil {
		if err := EnsureAccountTable(jmb.DB); err != nil {
			panic(err)
		}
	}

	adminEmails := map[string]bool{}
	for _, email := range jmb.AdminEmails {
		adminEmails[strings.ToLower(strings.TrimSpace(email))] = true
	}

	keyLookup := func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if len(jmb.Secret) == 0 {
				return nil, errors.New("hmac signed tokens are not accepted")
			}
			return []byte(jmb.Secret), nil
		case *jwt.SigningMethodRSA:
			kid, _ := token.Header["kid"].(string)
			if key, ok := wellKnownKeys[kid]; ok {
				return key, nil
			}
			return nil, fmt.Errorf("have %d well known keys, but not %q", len(wellKnownKeys), kid)
		}
		return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
	}

	authCache := NewAuthorizationCache()

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if AuthorizationFromContext(r.Context()) != nil { // already authorized?
				h.ServeHTTP(w, r)
				return
			}

			tokenString := bearerToken(r)
			if len(tokenString) == 0 {
				h.ServeHTTP(w, r) // no token no auth, moving on
				return
			}

			rlog := logger.FromContext(r.Context())

			claims := struct {
				Email string `json:"email"`
				jwt.RegisteredClaims
			}{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, keyLookup)
			if err != nil || !token.Valid || len(claims.Email) == 0 ||
				(len(jmb.Issuer) > 0 && claims.Issuer != jmb.Issuer) {
				rlog.WithError(err).Debugln("rejecting token")
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			// the token is valid, look up its authorization. We do this by tokenString, and not
			// by identity, so the frontend can enforce a new database lookup with a new token.
			auth := authCache.Read(tokenString)
			if auth == nil {
				email := strings.ToLower(claims.Email)
				admin := adminEmails[email]
				if jmb.DB != nil {
					accountAdmin, err := loginAccount(r.Context(), jmb.DB, email)
					if err != nil {
						rlog.WithError(err).Errorf("Error 4723: cannot login account %s", email)
						http.Error(w, "Error 4723", http.StatusInternalServerError)
						return
					}
					admin = admin || accountAdmin
				}

				auth = &Authorization{Identity: email, Roles: []string{RoleUser}}
				if admin {
					auth.Roles = append(auth.Roles, RoleAdmin)
				}
				expiresAt := time.Now().Add(authorizationCaching)
				if claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(expiresAt) {
					expiresAt = claims.ExpiresAt.Time
				}
				authCache.Write(tokenString, auth, expiresAt)
			}

			ctx, _ := logger.ContextWithLoggerIdentity(r.Context(), auth.Identity)
			ctx = ContextWithAuthorization(ctx, auth)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// wellKnownCertificates returns the certificates published at url, keyed by kid.
// Certificates are cached in the registry and downloaded again when they are older
// than certificateRefresh.
func wellKnownCertificates(ctx context.Context, jwtRegistry *registry.Registry, url string) (map[string]string, error) {
	var certificates map[string]string
	fresh, err := jwtRegistry.Fresh(ctx, url, &certificates, certificateRefresh)
	if err != nil {
		return nil, err
	}
	if fresh {
		return certificates, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return certificates, err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return certificates, fmt.Errorf("cannot download certificates: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return certificates, fmt.Errorf("cannot download certificates: status %d", res.StatusCode)
	}
	var downloaded map[string]string
	if err = json.NewDecoder(res.Body).Decode(&downloaded); err != nil {
		return certificates, fmt.Errorf("cannot decode certificates: %w", err)
	}
	if err = jwtRegistry.Put(ctx, url, downloaded); err != nil {
		return downloaded, err
	}
	return downloaded, nil
}
