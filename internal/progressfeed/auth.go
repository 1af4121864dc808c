package progressfeed

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing authentication token")
	ErrInvalidToken = errors.New("invalid authentication token")
	ErrExpiredToken = errors.New("token has expired")
)

// Authenticator extracts and validates caller identity from an
// upgrade request.
type Authenticator interface {
	Authenticate(r *http.Request) (callerID string, err error)
}

// JWTAuth gates progress-feed subscriptions behind an HS256 JWT, the
// same scheme the audit receipts (see internal/auditsign) use.
type JWTAuth struct {
	secretKey string
}

func NewJWTAuth(secretKey string) *JWTAuth {
	return &JWTAuth{secretKey: secretKey}
}

// Claims identifies who is allowed to watch a run's progress.
type Claims struct {
	RunID string `json:"run_id"`
	jwt.RegisteredClaims
}

// Authenticate tries the Authorization header first, then the "token"
// query parameter (WebSocket clients often can't set custom headers).
func (a *JWTAuth) Authenticate(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
		return a.validateToken(strings.TrimPrefix(authHeader, "Bearer "))
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return a.validateToken(token)
	}
	return "", ErrMissingToken
}

func (a *JWTAuth) validateToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(a.secretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.RunID == "" {
		return "", ErrInvalidToken
	}
	return claims.RunID, nil
}

// GenerateToken issues a token scoping its holder to one run ID.
func (a *JWTAuth) GenerateToken(runID string, expiresAt time.Time) (string, error) {
	claims := Claims{
		RunID: runID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   runID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.secretKey))
}
