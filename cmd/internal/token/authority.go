// Package token implements the session token authority.
//
// Tokens are signed JWTs binding {subject: sessionID, jti}. The signature and
// expiry are only the safety net: the real check is whether the presented jti
// is still the authority's current one for that session. Every issue
// supersedes the previous token atomically, so a leaked token dies on the
// legitimate client's next check-in.
package token

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTTL is the coarse expiry safety net. Rotation is the real
	// invalidation mechanism; this just bounds how long a never-rotated
	// token can live.
	DefaultTTL = 1 * time.Hour

	// DefaultIssuer is the iss claim value.
	DefaultIssuer = "nestwatch"

	minSecretBytes = 32
)

// Config controls token signing and validation.
type Config struct {
	// Secret is the HMAC-SHA256 signing key (>= 32 bytes).
	Secret []byte
	// Issuer is set and validated on the iss claim.
	Issuer string
	// TTL is the coarse token expiry.
	TTL time.Duration
}

// Authority issues, rotates, and verifies session-bound tokens. It holds the
// current jti per session; exactly one token verifies per session at any
// instant.
type Authority struct {
	secret []byte
	issuer string
	ttl    time.Duration

	now func() time.Time

	mu      sync.Mutex
	current map[string]string // sessionID -> current jti
}

// NewAuthority constructs an Authority. The secret must be at least 32 bytes.
func NewAuthority(cfg Config) (*Authority, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("%w: secret shorter than %d bytes", ErrConfig, minSecretBytes)
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	return &Authority{
		secret:  cfg.Secret,
		issuer:  cfg.Issuer,
		ttl:     cfg.TTL,
		now:     func() time.Time { return time.Now().UTC() },
		current: make(map[string]string),
	}, nil
}

// Issue mints a new token for the session and records its jti as the only
// valid one, superseding any previously issued token immediately.
func (a *Authority) Issue(sessionID string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("%w: empty session id", ErrConfig)
	}

	now := a.now()
	jti := uuid.NewString()

	claims := jwt.RegisteredClaims{
		ID:        jti,
		Subject:   sessionID,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	a.current[sessionID] = jti
	a.mu.Unlock()

	return signed, nil
}

// Verify checks signature, expiry, issuer, and that the jti is still the
// current one for its session. It returns the bound session id.
func (a *Authority) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims,
		func(t *jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" {
		return "", ErrInvalidToken
	}

	a.mu.Lock()
	current, ok := a.current[claims.Subject]
	a.mu.Unlock()

	// Stale jti: signature-valid but already superseded (or revoked by stop).
	if !ok || current != claims.ID {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Invalidate clears the current jti for a session so no token verifies for it
// again until a new one is issued.
func (a *Authority) Invalidate(sessionID string) {
	a.mu.Lock()
	delete(a.current, sessionID)
	a.mu.Unlock()
}
