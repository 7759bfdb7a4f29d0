package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/jwtauth/v5"

	"github.com/worklinehq/workline/pkg/schema"
)

// Auth guards the API with either a bearer JWT or a static API key.
// With neither configured the API runs open; the caller decides whether
// that is acceptable for its deployment.
type Auth struct {
	tokenAuth *jwtauth.JWTAuth
	apiKey    string
}

// NewAuth builds the guard. An empty jwtSecret disables JWT checking,
// an empty apiKey disables key checking.
func NewAuth(jwtSecret, apiKey string) *Auth {
	a := &Auth{apiKey: apiKey}
	if jwtSecret != "" {
		a.tokenAuth = jwtauth.New("HS256", []byte(jwtSecret), nil)
	}
	return a
}

// Enabled reports whether any credential check is configured.
func (a *Auth) Enabled() bool {
	return a.tokenAuth != nil || a.apiKey != ""
}

// TokenAuth exposes the JWT keyset, mainly for tests issuing tokens.
func (a *Auth) TokenAuth() *jwtauth.JWTAuth {
	return a.tokenAuth
}

// Middleware accepts a request carrying a valid X-API-Key header or a
// verifiable Authorization bearer token.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		if a.apiKey != "" {
			key := r.Header.Get("X-API-Key")
			if key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(a.apiKey)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}

		if a.tokenAuth != nil {
			if _, err := jwtauth.VerifyRequest(a.tokenAuth, r, jwtauth.TokenFromHeader); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		writeError(w, schema.NewError("UNAUTHORIZED", "missing or invalid credentials"))
	})
}
