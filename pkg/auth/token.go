package auth

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultTokenIssuer   = "mangareader-api"
	defaultTokenAudience = "mangareader"
	defaultTokenTTL      = 30 * time.Minute
)

var (
	// ErrTokenInvalid covers malformed, tampered and foreign tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned once a token is past its expiry instant.
	ErrTokenExpired = errors.New("token expired")
	// ErrSecretRequired is returned when no signing secret is configured.
	ErrSecretRequired = errors.New("token signing secret required")
)

// TokenOptions configures token issuance and validation.
type TokenOptions struct {
	Secret   string
	TTL      time.Duration
	Issuer   string
	Audience string
	Leeway   time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// TokenService issues and validates stateless HS256 bearer tokens.
type TokenService struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// NewTokenService builds a token service from options, filling defaults.
func NewTokenService(opts TokenOptions) (*TokenService, error) {
	if strings.TrimSpace(opts.Secret) == "" {
		return nil, ErrSecretRequired
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTokenTTL
	}
	opts.Issuer = strings.TrimSpace(opts.Issuer)
	if opts.Issuer == "" {
		opts.Issuer = defaultTokenIssuer
	}
	opts.Audience = strings.TrimSpace(opts.Audience)
	if opts.Audience == "" {
		opts.Audience = defaultTokenAudience
	}
	if opts.Leeway < 0 {
		opts.Leeway = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &TokenService{
		secret:   []byte(opts.Secret),
		ttl:      opts.TTL,
		issuer:   opts.Issuer,
		audience: opts.Audience,
		leeway:   opts.Leeway,
		now:      opts.Now,
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue creates a signed token for subject expiring after the configured TTL.
func (s *TokenService) Issue(subject string) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("token subject required")
	}
	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate verifies signature, algorithm and claims and returns the subject.
func (s *TokenService) Validate(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrTokenInvalid
	}
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}
