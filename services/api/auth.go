package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultSessionTTL = 7 * 24 * time.Hour

// Claims is the verified identity carried by a session token.
type Claims struct {
	UserID    uuid.UUID
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Authority issues, verifies, and revokes bearer session tokens. Tokens
// are stateless HS256 JWTs; revocation is tracked in a denylist keyed by
// token id with a TTL equal to the token's remaining lifetime.
type Authority struct {
	key      []byte
	ttl      time.Duration
	denylist Denylist
	now      func() time.Time
}

// NewAuthority builds an Authority with the given signing key and session
// lifetime. A zero ttl falls back to seven days.
func NewAuthority(key []byte, ttl time.Duration, denylist Denylist) (*Authority, error) {
	if len(key) == 0 {
		return nil, errors.New("signing key is required")
	}
	if denylist == nil {
		return nil, errors.New("denylist is required")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Authority{key: key, ttl: ttl, denylist: denylist, now: time.Now}, nil
}

// Issue produces a signed, time-bounded credential for the user.
func (a *Authority) Issue(userID uuid.UUID, role string) (string, error) {
	if userID == uuid.Nil {
		return "", errors.New("user id is required")
	}

	now := a.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry. Malformed, tampered, or expired
// tokens all report ErrUnauthenticated.
func (a *Authority) Verify(token string) (Claims, error) {
	parsed, err := a.parse(token)
	if err != nil {
		return Claims{}, err
	}
	if parsed.ExpiresAt == nil || !a.now().Before(parsed.ExpiresAt.Time) {
		return Claims{}, fmt.Errorf("%w: session expired", ErrUnauthenticated)
	}
	return a.toClaims(parsed)
}

// Revoke denylists the token's id for the remainder of its lifetime so
// the entry self-prunes. Already-expired tokens are a no-op.
func (a *Authority) Revoke(ctx context.Context, token string) error {
	parsed, err := a.parse(token)
	if err != nil {
		return err
	}
	if parsed.ExpiresAt == nil {
		return fmt.Errorf("%w: token has no expiry", ErrUnauthenticated)
	}
	remaining := parsed.ExpiresAt.Time.Sub(a.now())
	if remaining <= 0 {
		return nil
	}
	if err := a.denylist.Add(ctx, parsed.ID, remaining); err != nil {
		return fmt.Errorf("denylist token: %w", err)
	}
	return nil
}

// Authenticate composes Verify with a denylist lookup. A denylist store
// fault fails closed: the caller is treated as unauthenticated.
func (a *Authority) Authenticate(ctx context.Context, token string) (Claims, error) {
	claims, err := a.Verify(token)
	if err != nil {
		return Claims{}, err
	}

	revoked, err := a.denylist.Contains(ctx, claims.TokenID)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: denylist unavailable", ErrUnauthenticated)
	}
	if revoked {
		return Claims{}, fmt.Errorf("%w: session revoked", ErrUnauthenticated)
	}
	return claims, nil
}

func (a *Authority) parse(token string) (*sessionClaims, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return a.key, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid session token", ErrUnauthenticated)
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: incomplete session claims", ErrUnauthenticated)
	}
	return &claims, nil
}

func (a *Authority) toClaims(parsed *sessionClaims) (Claims, error) {
	userID, err := uuid.Parse(parsed.Subject)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: invalid subject", ErrUnauthenticated)
	}
	return Claims{
		UserID:    userID,
		Role:      parsed.Role,
		TokenID:   parsed.ID,
		ExpiresAt: parsed.ExpiresAt.Time,
	}, nil
}
