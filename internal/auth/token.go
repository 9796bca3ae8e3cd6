package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned for missing, malformed or expired
// credentials. The caller closes the connection and never retries.
var ErrUnauthenticated = errors.New("unauthenticated")

// Verifier validates a bearer credential extracted from the connection
// handshake and resolves it to a merchant identity.
type Verifier interface {
	Verify(token string) (int64, error)
}

// JWTVerifier validates HS256-signed merchant tokens.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for tokens signed with the given secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify checks the token signature and expiry and returns the merchant id
// from the merchant_id claim. All failures map to ErrUnauthenticated.
func (v *JWTVerifier) Verify(token string) (int64, error) {
	if token == "" {
		return 0, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	// JSON numbers decode as float64 in MapClaims
	raw, ok := claims["merchant_id"]
	if !ok {
		return 0, fmt.Errorf("%w: merchant_id claim missing", ErrUnauthenticated)
	}
	id, ok := raw.(float64)
	if !ok || id <= 0 {
		return 0, fmt.Errorf("%w: merchant_id claim invalid", ErrUnauthenticated)
	}

	return int64(id), nil
}

// NewToken mints an HS256 token for the given merchant id, used by the
// tokengen utility and tests. The merchant backend issues real tokens.
func NewToken(secret string, merchantID int64, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"merchant_id": merchantID,
		"exp":         time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
