package access

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/campus/core"
	"github.com/relabs-tech/campus/core/csql"
)

func TestIsAuthorized(t *testing.T) {
	readers := []Permit{
		{Role: RoleUser, Operations: []core.Operation{core.OperationRead, core.OperationList}},
	}
	restricted := []Permit{
		{Role: RoleAdmin, Operations: []core.Operation{core.OperationRead}},
	}
	everybody := []Permit{
		{Role: RoleEverybody, Operations: []core.Operation{core.OperationList}},
	}
	public := []Permit{
		{Role: RolePublic, Operations: []core.Operation{core.OperationRead}},
	}

	user := &Authorization{Identity: "cgaucho@ucsb.edu", Roles: []string{RoleUser}}
	admin := &Authorization{Identity: "phtcon@ucsb.edu", Roles: []string{RoleUser, RoleAdmin}}
	var anonymous *Authorization

	tests := []struct {
		name      string
		auth      *Authorization
		operation core.Operation
		permits   []Permit
		want      bool
	}{
		{"user reads", user, core.OperationRead, readers, true},
		{"user lists", user, core.OperationList, readers, true},
		{"user cannot create", user, core.OperationCreate, readers, false},
		{"user cannot delete", user, core.OperationDelete, readers, false},
		{"admin by default", admin, core.OperationDelete, readers, true},
		{"restricted admin reads", admin, core.OperationRead, restricted, true},
		{"restricted admin cannot delete", admin, core.OperationDelete, restricted, false},
		{"everybody applies to users", user, core.OperationList, everybody, true},
		{"everybody does not grant read", user, core.OperationRead, everybody, false},
		{"anonymous is not everybody", anonymous, core.OperationList, everybody, false},
		{"anonymous is public", anonymous, core.OperationRead, public, true},
		{"anonymous without public permit", anonymous, core.OperationRead, readers, false},
		{"user is public too", user, core.OperationRead, public, true},
		{"no permits", user, core.OperationRead, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.auth.IsAuthorized(tt.operation, tt.permits))
		})
	}
}

func TestHasRole(t *testing.T) {
	auth := &Authorization{Roles: []string{RoleUser}}
	assert.True(t, auth.HasRole(RoleUser))
	assert.False(t, auth.HasRole(RoleAdmin))

	var anonymous *Authorization
	assert.False(t, anonymous.HasRole(RoleUser))
}

func TestAuthorizationContext(t *testing.T) {
	assert.Nil(t, AuthorizationFromContext(context.Background()))

	auth := &Authorization{Identity: "a@b.c", Roles: []string{RoleUser}}
	ctx := ContextWithAuthorization(context.Background(), auth)
	assert.Equal(t, auth, AuthorizationFromContext(ctx))
}

func TestAuthorizationCache(t *testing.T) {
	cache := NewAuthorizationCache()
	assert.Nil(t, cache.Read("token"))
	auth := &Authorization{Identity: "a@b.c"}
	cache.Write("token", auth, time.Now().Add(time.Hour))
	assert.Equal(t, auth, cache.Read("token"))

	// expired entries are neither stored nor kept
	cache.Write("old", auth, time.Now().Add(-time.Second))
	assert.Nil(t, cache.Read("old"))
	assert.Equal(t, 1, cache.Len())

	cache.Write("short", auth, time.Now().Add(50*time.Millisecond))
	assert.Equal(t, 2, cache.Len())
	time.Sleep(100 * time.Millisecond)
	assert.Nil(t, cache.Read("short"))
	cache.Write("next", auth, time.Now().Add(time.Hour))
	assert.Equal(t, 2, cache.Len())
}

// serve runs a request through the middleware and records the roles the final handler sees
func serve(t *testing.T, mw mux.MiddlewareFunc, r *http.Request) (*httptest.ResponseRecorder, *Authorization) {
	t.Helper()
	var seen *Authorization
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AuthorizationFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	mw(final).ServeHTTP(rec, r)
	return rec, seen
}

func TestGuard(t *testing.T) {
	permits := []Permit{{Role: RoleUser, Operations: []core.Operation{core.OperationList}}}
	guard := Guard(core.OperationList, permits)

	r := httptest.NewRequest(http.MethodGet, "/api/helprequest/all", nil)
	rec, _ := serve(t, guard, r)
	assert.Equal(t, http.StatusForbidden, rec.Code, "anonymous must be rejected")

	r = r.WithContext(ContextWithAuthorization(r.Context(), &Authorization{Roles: []string{RoleUser}}))
	rec, _ = serve(t, guard, r)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = serve(t, Guard(core.OperationDelete, permits), r)
	assert.Equal(t, http.StatusForbidden, rec.Code, "user must not delete")
}

func TestBackdoorMiddleware(t *testing.T) {
	backdoor := NewBackdoorMiddleware(&BackdoorMiddlewareBuilder{
		Backdoors: map[string]Authorization{
			"please": {Identity: "backdoor", Roles: []string{RoleUser, RoleAdmin}},
		},
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer please")
	_, auth := serve(t, backdoor, r)
	require.NotNil(t, auth)
	assert.True(t, auth.HasRole(RoleAdmin))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "Campus-JWT", Value: "please"})
	_, auth = serve(t, backdoor, r)
	require.NotNil(t, auth)
	assert.Equal(t, "backdoor", auth.Identity)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer pretty please")
	_, auth = serve(t, backdoor, r)
	assert.Nil(t, auth)
}

func TestCurrentUserRoute(t *testing.T) {
	router := mux.NewRouter()
	HandleAuthorizationRoute(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/currentUser", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	r := httptest.NewRequest(http.MethodGet, "/api/currentUser", nil)
	r = r.WithContext(ContextWithAuthorization(r.Context(), &Authorization{Identity: "cgaucho@ucsb.edu", Roles: []string{RoleUser}}))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)
	var auth Authorization
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))
	assert.Equal(t, "cgaucho@ucsb.edu", auth.Identity)
	assert.Equal(t, []string{RoleUser}, auth.Roles)
}

type testClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func hs256Token(t *testing.T, secret, email, issuer string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, testClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJwtMiddlewareWithSecret(t *testing.T) {
	mw := NewJwtMiddleware(&JwtMiddlewareBuilder{
		Secret:      "s3cr3t",
		Issuer:      "campus",
		AdminEmails: []string{"PHTCON@ucsb.edu"},
	})
	later := time.Now().Add(time.Hour)

	t.Run("no token", func(t *testing.T) {
		rec, auth := serve(t, mw, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, auth)
	})

	t.Run("user", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+hs256Token(t, "s3cr3t", "cgaucho@ucsb.edu", "campus", later))
		rec, auth := serve(t, mw, r)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, auth)
		assert.Equal(t, "cgaucho@ucsb.edu", auth.Identity)
		assert.Equal(t, []string{RoleUser}, auth.Roles)
	})

	t.Run("admin via cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "Campus-JWT", Value: hs256Token(t, "s3cr3t", "phtcon@ucsb.edu", "campus", later)})
		_, auth := serve(t, mw, r)
		require.NotNil(t, auth)
		assert.True(t, auth.HasRole(RoleAdmin))
		assert.True(t, auth.HasRole(RoleUser))
	})

	invalid := map[string]string{
		"wrong secret": hs256Token(t, "guess", "cgaucho@ucsb.edu", "campus", later),
		"wrong issuer": hs256Token(t, "s3cr3t", "cgaucho@ucsb.edu", "elsewhere", later),
		"expired":      hs256Token(t, "s3cr3t", "cgaucho@ucsb.edu", "campus", time.Now().Add(-time.Hour)),
		"no email":     hs256Token(t, "s3cr3t", "", "campus", later),
		"garbage":      "not-a-token",
	}
	for name, token := range invalid {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", "Bearer "+token)
			rec, auth := serve(t, mw, r)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, auth)
		})
	}
}

func TestJwtMiddlewareAccounts(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	db := &csql.DB{DB: mockDB, Schema: "_campus_test_"}

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS _campus_test_\."account"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mw := NewJwtMiddleware(&JwtMiddlewareBuilder{Secret: "s3cr3t", DB: db})

	mock.ExpectQuery(`INSERT INTO _campus_test_\."account" \(email\) VALUES\(\$1\) ON CONFLICT \(email\) DO UPDATE SET last_login=now\(\) RETURNING admin`).
		WithArgs("ldelplaya@ucsb.edu").
		WillReturnRows(sqlmock.NewRows([]string{"admin"}).AddRow(true))

	token := hs256Token(t, "s3cr3t", "LDelPlaya@ucsb.edu", "", time.Now().Add(time.Hour))
	for i := 0; i < 2; i++ { // second request is served from the cache
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		_, auth := serve(t, mw, r)
		require.NotNil(t, auth)
		assert.Equal(t, "ldelplaya@ucsb.edu", auth.Identity)
		assert.True(t, auth.HasRole(RoleAdmin))
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJwtMiddlewareExpiredTokenAfterCaching(t *testing.T) {
	defer func() { jwt.TimeFunc = time.Now }()
	mw := NewJwtMiddleware(&JwtMiddlewareBuilder{Secret: "s3cr3t"})
	token := hs256Token(t, "s3cr3t", "cgaucho@ucsb.edu", "", time.Now().Add(time.Hour))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec, auth := serve(t, mw, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, auth)

	// two hours later the same token is rejected, although its authorization was cached
	jwt.TimeFunc = func() time.Time { return time.Now().Add(2 * time.Hour) }
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec, auth = serve(t, mw, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid token\n", rec.Body.String())
	assert.Nil(t, auth)
}

func TestJwtMiddlewareWithCertificates(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	certificates := map[string]string{
		"kid-1": string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})),
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(certificates)
	}))
	defer server.Close()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	db := &csql.DB{DB: mockDB, Schema: "_campus_test_"}

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS _campus_test_\."_registry_"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT value, written_at FROM _campus_test_\."_registry_"`).
		WithArgs("_jwt_:" + server.URL).
		WillReturnRows(sqlmock.NewRows([]string{"value", "written_at"}))
	mock.ExpectExec(`INSERT INTO _campus_test_\."_registry_"`).
		WithArgs("_jwt_:"+server.URL, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS _campus_test_\."account"`).WillReturnResult(sqlmock.NewResult(0, 0))

	mw := NewJwtMiddleware(&JwtMiddlewareBuilder{PublicKeyDownloadURL: server.URL, DB: db})

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, testClaims{
		Email:            "cgaucho@ucsb.edu",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	token.Header["kid"] = "kid-1"
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	mock.ExpectQuery(`INSERT INTO _campus_test_\."account"`).
		WithArgs("cgaucho@ucsb.edu").
		WillReturnRows(sqlmock.NewRows([]string{"admin"}).AddRow(false))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	rec, auth := serve(t, mw, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, auth)
	assert.Equal(t, []string{RoleUser}, auth.Roles)

	// hmac tokens are not accepted without a secret
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+hs256Token(t, "s3cr3t", "cgaucho@ucsb.edu", "", time.Now().Add(time.Hour)))
	rec, _ = serve(t, mw, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureAccounts(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	db := &csql.DB{DB: mockDB, Schema: "_campus_test_"}

	mock.ExpectExec(`INSERT INTO _campus_test_\."account" \(email,admin\)`).
		WithArgs("phtcon@ucsb.edu", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, EnsureAccounts(db, Account{Email: "PHTCON@ucsb.edu", Admin: true}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
