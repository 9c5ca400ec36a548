package checkout

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DraftTokenTTL = 24 * time.Hour

	draftTokenAudience = "checkout-draft"
)

// ErrDraftAccess is returned when a request for an existing draft or order
// does not carry that reference's draft token.
var ErrDraftAccess = errors.New("draft token missing or invalid")

// DraftTokenIssuer signs the bearer token that proves a client created the
// draft it is reading or changing.
type DraftTokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewDraftTokenIssuer(secret []byte) (*DraftTokenIssuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("draft token secret must be at least 32 bytes")
	}
	return &DraftTokenIssuer{secret: secret, ttl: DraftTokenTTL, now: time.Now}, nil
}

func (i *DraftTokenIssuer) Issue(reference string) (string, error) {
	issuedAt := i.now()
	claims := jwt.RegisteredClaims{
		Subject:   reference,
		Audience:  jwt.ClaimStrings{draftTokenAudience},
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(i.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign draft token: %w", err)
	}
	return signed, nil
}

// Verify returns ErrDraftAccess unless raw is an unexpired draft token for
// reference.
func (i *DraftTokenIssuer) Verify(raw, reference string) error {
	if raw == "" {
		return ErrDraftAccess
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(draftTokenAudience),
		jwt.WithSubject(reference),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDraftAccess, err)
	}
	return nil
}
