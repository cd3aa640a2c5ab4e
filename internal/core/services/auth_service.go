package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"roomrelay/internal/core/domain"
	"roomrelay/pkg/cache"
	"roomrelay/pkg/config"
	"roomrelay/pkg/utils"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token expired")
	ErrMissingCredential  = errors.New("missing credential")
	ErrSigningUnavailable = errors.New("token signing is not configured")
)

// Claims carried by relay tokens. The identity is taken from user_id, then
// id, then sub.
type Claims struct {
	UserID   string `json:"user_id,omitempty"`
	LegacyID string `json:"id,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) identity() string {
	switch {
	case c.UserID != "":
		return c.UserID
	case c.LegacyID != "":
		return c.LegacyID
	default:
		return c.Subject
	}
}

// AuthService admits connections with either the static shared token or an
// HS256 token signed with the configured secret, in that order.
type AuthService struct {
	staticToken    []byte
	jwtSecret      []byte
	tokenTTL       time.Duration
	verifyCacheTTL time.Duration
	verifyCache    *cache.Cache
	now            func() time.Time
}

// NewAuthService fails with config.ErrNoAuthConfigured when neither strategy
// is configured. verifyCacheTTL <= 0 disables caching of verified tokens.
func NewAuthService(staticToken, jwtSecret string, tokenTTL, verifyCacheTTL time.Duration) (*AuthService, error) {
	if staticToken == "" && jwtSecret == "" {
		return nil, config.ErrNoAuthConfigured
	}

	s := &AuthService{
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
	if staticToken != "" {
		s.staticToken = []byte(staticToken)
	}
	if jwtSecret != "" {
		s.jwtSecret = []byte(jwtSecret)
		if verifyCacheTTL > 0 {
			s.verifyCacheTTL = verifyCacheTTL
			s.verifyCache = cache.NewCache(verifyCacheTTL)
		}
	}
	return s, nil
}

func (s *AuthService) StaticEnabled() bool { return len(s.staticToken) > 0 }

func (s *AuthService) JWTEnabled() bool { return len(s.jwtSecret) > 0 }

// Authenticate maps a credential to an identity or returns an error wrapping
// domain.ErrUnauthorized.
func (s *AuthService) Authenticate(_ context.Context, credential string) (domain.Identity, error) {
	if credential == "" {
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrUnauthorized, ErrMissingCredential)
	}

	if s.MatchesStaticToken(credential) {
		return domain.Identity{
			UserID: domain.UserID(utils.GenerateUserID()),
			Method: domain.AuthMethodStaticToken,
		}, nil
	}

	if !s.JWTEnabled() {
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrUnauthorized, ErrInvalidToken)
	}

	if s.verifyCache != nil {
		if cached, ok := s.verifyCache.Get(credential); ok {
			return cached.(domain.Identity), nil
		}
	}

	claims, err := s.ValidateToken(credential)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}

	identity := domain.Identity{
		UserID: domain.UserID(claims.identity()),
		Method: domain.AuthMethodJWT,
	}
	if s.verifyCache != nil {
		s.cacheIdentity(credential, identity, claims)
	}
	return identity, nil
}

// cacheIdentity keeps a verified identity until the earlier of the token's
// expiry and the cache TTL.
func (s *AuthService) cacheIdentity(token string, identity domain.Identity, claims *Claims) {
	ttl := s.verifyCacheTTL
	if claims.ExpiresAt != nil {
		if untilExpiry := claims.ExpiresAt.Sub(s.now()); untilExpiry < ttl {
			ttl = untilExpiry
		}
	}
	if ttl > 0 {
		s.verifyCache.SetWithTTL(token, identity, ttl)
	}
}

// MatchesStaticToken compares credential to the static token in constant time.
func (s *AuthService) MatchesStaticToken(credential string) bool {
	if !s.StaticEnabled() {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(credential), s.staticToken) == 1
}

func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.identity() == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateToken mints a token for userID. ttl <= 0 uses the configured default.
func (s *AuthService) GenerateToken(userID domain.UserID, ttl time.Duration) (string, time.Time, error) {
	if !s.JWTEnabled() {
		return "", time.Time{}, ErrSigningUnavailable
	}
	if ttl <= 0 {
		ttl = s.tokenTTL
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		UserID: string(userID),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(userID),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Stop releases the verification cache.
func (s *AuthService) Stop() {
	if s.verifyCache != nil {
		s.verifyCache.Stop()
	}
}
