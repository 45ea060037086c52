package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/openshelf/apiserver/config"
	"github.com/openshelf/apiserver/types"
)

// ErrInvalidToken is returned for any token that fails verification:
// corrupted structure, signature mismatch, or expiry. Verification
// never yields a partially trusted identity.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the request-scoped result of verifying a bearer token.
type Identity struct {
	UserID int
	Email  string
	Role   string
}

// Claims is the token payload: the registered sub/iat/exp set plus the
// user's email and role.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HMAC-signed bearer tokens.
//
// Tokens are stateless and carry no revocation mechanism: once issued,
// a token stays valid for its full TTL regardless of later account
// changes. This is a known limitation of the design.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService constructs a TokenService from the immutable auth
// config. A missing signing secret is a startup-fatal condition.
func NewTokenService(cfg config.AuthConfig) (*TokenService, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{
		secret: []byte(cfg.JWTSecret),
		ttl:    ttl,
	}, nil
}

// Issue signs a token for the given user, valid for the configured TTL.
func (s *TokenService) Issue(user types.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks signature and expiry and decodes the caller identity.
func (s *TokenService) Verify(tokenString string) (Identity, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	userID, err := strconv.Atoi(claims.Subject)
	if err != nil || userID < 1 {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		UserID: userID,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}
