// Package card charges cards tokenized by the processor's hosted fields.
package card

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const ClientTokenTTL = 15 * time.Minute

var ErrInvalidClientToken = errors.New("invalid card client token")

// ClientTokenClaims bind a hosted-fields session to one draft attempt.
type ClientTokenClaims struct {
	OrderReference string `json:"ref"`
	Amount         int64  `json:"amt"`
	Currency       string `json:"cur"`
	AttemptID      string `json:"att"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("card client token secret must be at least 32 bytes")
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ClientTokenTTL, now: time.Now}, nil
}

func (i *TokenIssuer) Issue(orderReference string, amount int64, currency, attemptID string) (string, time.Time, error) {
	issuedAt := i.now()
	expiresAt := issuedAt.Add(i.ttl)
	claims := ClientTokenClaims{
		OrderReference: orderReference,
		Amount:         amount,
		Currency:       currency,
		AttemptID:      attemptID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   orderReference,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign client token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry and that the token was issued for
// orderReference and amount.
func (i *TokenIssuer) Verify(raw, orderReference string, amount int64) (*ClientTokenClaims, error) {
	claims := &ClientTokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidClientToken, err)
	}
	if claims.OrderReference != orderReference {
		return nil, fmt.Errorf("%w: order reference mismatch", ErrInvalidClientToken)
	}
	if claims.Amount != amount {
		return nil, fmt.Errorf("%w: amount mismatch", ErrInvalidClientToken)
	}
	return claims, nil
}
