package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sociosflow/apperr"
)

var (
	// ErrInvalidToken signals a token that failed verification.
	ErrInvalidToken = apperr.New(apperr.KindAuthorization, "auth: invalid token")
	// ErrMissingSecret signals a verifier built without a signing key.
	ErrMissingSecret = errors.New("auth: signing secret is required")
)

type actorClaims struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier turns operator tokens issued by the identity service into
// Actors.
type TokenVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewTokenVerifier creates a verifier for HS256 tokens signed with secret.
func NewTokenVerifier(secret string) (*TokenVerifier, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &TokenVerifier{secret: []byte(secret), now: time.Now}, nil
}

// Verify validates a token and returns the actor it names.
func (v *TokenVerifier) Verify(tokenString string) (Actor, error) {
	claims := &actorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID <= 0 {
		return Actor{}, ErrInvalidToken
	}

	role := NormalizeRole(claims.Role)
	if role == "" {
		return Actor{}, fmt.Errorf("%w: missing role", ErrInvalidToken)
	}
	return Actor{ID: claims.UserID, Role: role}, nil
}

// Issue signs a token for actor that expires after ttl.
func (v *TokenVerifier) Issue(actor Actor, ttl time.Duration) (string, error) {
	now := v.now()
	claims := actorClaims{
		UserID: actor.ID,
		Role:   NormalizeRole(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}
