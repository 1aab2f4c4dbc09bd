package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrWrongUse    = errors.New("jwtx: wrong token use")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")

	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// KeyVerifier checks signature, kid, issuer, use and expiry. It performs no
// I/O and is safe for concurrent use once built.
type KeyVerifier struct {
	alg    string
	keys   map[string]any
	issuer string
	use    string
	leeway time.Duration
	now    func() time.Time
}

// VerifierOption tweaks a KeyVerifier.
type VerifierOption func(*KeyVerifier)

// WithLeeway allows small clock skew on exp/nbf.
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *KeyVerifier) { v.leeway = d }
}

// WithClock overrides the time source. Tests use it to age tokens.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *KeyVerifier) { v.now = now }
}

// NewVerifier builds a verifier accepting tokens from any of the signers,
// which must all share one algorithm.
func NewVerifier(issuer, use string, signers []Signer, opts ...VerifierOption) (*KeyVerifier, error) {
	if len(signers) == 0 {
		return nil, errors.New("jwtx: at least one signer is required")
	}

	v := &KeyVerifier{
		alg:    signers[0].Alg(),
		keys:   make(map[string]any, len(signers)),
		issuer: issuer,
		use:    use,
		now:    time.Now,
	}
	for _, s := range signers {
		if s.Alg() != v.alg {
			return nil, fmt.Errorf("jwtx: mixed algorithms %s and %s", v.alg, s.Alg())
		}
		v.keys[s.KID()] = s.VerificationKey()
	}
	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

// Verify validates the token string and returns its claims.
func (v *KeyVerifier) Verify(raw string) (Claims, error) {
	// Expiry is checked below against v.now so the parser's own time checks
	// are turned off.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{v.alg}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := v.keys[kid]
		if !ok {
			return nil, ErrUnknownKID
		}
		return key, nil
	})
	if err != nil {
		return Claims{}, mapParseError(err)
	}

	if claims.Subject == "" {
		return Claims{}, ErrInvalidClaim
	}
	if err := claims.ValidateUse(v.use); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiryWithLeeway(v.now(), v.leeway); err != nil {
		return Claims{}, err
	}

	return *claims, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, ErrUnknownKID):
		return ErrUnknownKID
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrSignatureInvalid):
		return ErrInvalidSig
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	}
}
