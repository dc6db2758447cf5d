package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	cfg "photomatch/src/configuration"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
)

const (
	userContextKey  = "user"
	devUserHeader   = "X-User-Email"
	authorizationID = "Authorization"
)

var errUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves the user making a request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// OIDCAuthenticator accepts ID tokens from the configured issuer, either as
// a bearer token or in the ID token cookie.
type OIDCAuthenticator struct {
	verifier   *oidc.IDTokenVerifier
	cookieName string
}

func NewOIDCAuthenticator(ctx context.Context, props cfg.AuthProperties) (*OIDCAuthenticator, error) {
	provider, err := oidc.NewProvider(ctx, props.Host)
	if err != nil {
		return nil, fmt.Errorf("error creating OIDC provider for %s: %w", props.Host, err)
	}
	return NewOIDCAuthenticatorWith(provider.Verifier(&oidc.Config{ClientID: props.ID}), props.IDTokenCookieName), nil
}

func NewOIDCAuthenticatorWith(verifier *oidc.IDTokenVerifier, cookieName string) *OIDCAuthenticator {
	return &OIDCAuthenticator{verifier: verifier, cookieName: cookieName}
}

func (a *OIDCAuthenticator) Authenticate(r *http.Request) (string, error) {
	raw := bearerToken(r)
	if raw == "" && a.cookieName != "" {
		if cookie, err := r.Cookie(a.cookieName); err == nil {
			raw = cookie.Value
		}
	}
	if raw == "" {
		return "", fmt.Errorf("no ID token found: %w", errUnauthenticated)
	}
	idToken, err := a.verifier.Verify(r.Context(), raw)
	if err != nil {
		return "", fmt.Errorf("error verifying ID token: %v: %w", err, errUnauthenticated)
	}
	var claims struct {
		Email    string `json:"email"`
		Verified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", fmt.Errorf("can not parse claims: %v: %w", err, errUnauthenticated)
	}
	if claims.Email == "" {
		return "", fmt.Errorf("token has no email claim: %w", errUnauthenticated)
	}
	return strings.ToLower(claims.Email), nil
}

// HeaderAuthenticator trusts the X-User-Email header. It is only wired when
// no issuer is configured.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(r *http.Request) (string, error) {
	user := strings.ToLower(strings.TrimSpace(r.Header.Get(devUserHeader)))
	if user == "" {
		return "", fmt.Errorf("missing %s header: %w", devUserHeader, errUnauthenticated)
	}
	return user, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get(authorizationID)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// authorize rejects requests without an authenticated user and stores the
// user id in the gin context.
func authorize(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := auth.Authenticate(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "error", "error": err.Error()})
			return
		}
		c.Set(userContextKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userContextKey)
}
