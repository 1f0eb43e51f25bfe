package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"

	"github.com/cleanjamaica/rewards-ledger/ledger"
	"github.com/cleanjamaica/rewards-ledger/rewards"
)

// =============================================================================
// AUTHENTICATION - Bearer tokens from the identity provider
// =============================================================================

type contextKey string

const (
	userIDKey    contextKey = "userID"
	bearerSchema            = "Bearer "
)

// Claims accepts the user id in either user_id or the registered sub claim.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// subject returns the user id the token speaks for.
func (c *Claims) subject() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Authenticator verifies HMAC-signed tokens and puts the caller's user id
// into the request context.
type Authenticator struct {
	secret []byte
	issuer string
	log    logrus.FieldLogger
}

// NewAuthenticator creates an authenticator. An empty issuer is not checked.
func NewAuthenticator(secret, issuer string, log logrus.FieldLogger) *Authenticator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, log: log}
}

// Middleware rejects requests without a valid bearer token with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.authenticate(r)
		if err != nil {
			a.log.WithError(err).WithField("path", r.URL.Path).Debug("authentication failed")
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{
				Error: "authentication required",
				Code:  "unauthenticated",
			})
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (ledger.UserID, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerSchema) {
		return "", errors.New("missing bearer token")
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, bearerSchema))

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return "", fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}
	return rewards.ParseUserID(claims.subject())
}

// Issue signs a token for userID. Used by tests and local tooling; production
// tokens come from the identity provider.
func (a *Authenticator) Issue(userID ledger.UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(userID),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// UserIDFromContext returns the authenticated caller.
func UserIDFromContext(ctx context.Context) (ledger.UserID, bool) {
	id, ok := ctx.Value(userIDKey).(ledger.UserID)
	return id, ok
}
