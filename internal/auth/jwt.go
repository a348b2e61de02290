package auth

import (
	"errors"
	"time"

	"soapbox/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Manager issues and verifies HS256 access/refresh tokens for users.
type Manager struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return &Manager{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.JWTIssuer,
		audience:   cfg.JWTAudience,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
	}, nil
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// ErrTokenType is returned when an access token is presented as a refresh token or vice versa.
var ErrTokenType = errors.New("auth: unexpected token type")

// IssuePair signs a fresh access/refresh pair for userID.
func (m *Manager) IssuePair(now time.Time, userID string) (TokenPair, error) {
	if userID == "" {
		return TokenPair{}, errors.New("auth: user_id required")
	}
	var (
		pair TokenPair
		err  error
	)
	if pair.AccessToken, err = m.issue(now, TokenTypeAccess, userID, m.accessTTL); err != nil {
		return TokenPair{}, err
	}
	if pair.RefreshToken, err = m.issue(now, TokenTypeRefresh, userID, m.refreshTTL); err != nil {
		return TokenPair{}, err
	}
	pair.ExpiresIn = int(m.accessTTL.Seconds())
	return pair, nil
}

// Refresh exchanges a valid refresh token for a new pair.
func (m *Manager) Refresh(refreshToken string, now time.Time) (TokenPair, error) {
	claims, err := m.Verify(refreshToken, TokenTypeRefresh, now)
	if err != nil {
		return TokenPair{}, err
	}
	return m.IssuePair(now, claims.UserID)
}

// Verify parses and validates a token as of now. Expiry allows 30s of clock skew.
func (m *Manager) Verify(tokenString string, expected TokenType, now time.Time) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	var claims Claims
	if _, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		return Claims{}, err
	}
	if claims.TokenType != expected {
		return Claims{}, ErrTokenType
	}
	if claims.UserID == "" || claims.Subject != claims.UserID {
		return Claims{}, errors.New("auth: user_id missing")
	}
	return claims, nil
}

func (m *Manager) issue(now time.Time, tokenType TokenType, userID string, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Audience:  audienceOrNil(m.audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   userID,
			ID:        uuid.NewString(),
		},
		UserID:    userID,
		TokenType: tokenType,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func audienceOrNil(aud string) jwt.ClaimStrings {
	if aud == "" {
		return nil
	}
	return jwt.ClaimStrings{aud}
}
