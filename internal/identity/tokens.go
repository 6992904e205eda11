package identity

import (
	"errors"
	"fmt"
	"time"

	jose "gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"

	"github.com/educates/lookup-service/internal/errdefs"
)

// DefaultTokenExpiration is how long an issued access token stays valid.
const DefaultTokenExpiration = 72 * time.Hour

// TokenIssuer signs and validates access tokens. Tokens are HS256 JWTs
// carrying the client name as subject and its identity value as token ID.
type TokenIssuer struct {
	secret     []byte
	expiration time.Duration
	signer     jose.Signer

	// now is overridden in tests.
	now func() time.Time
}

func NewTokenIssuer(secret []byte, expiration time.Duration) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: token signing secret is required", errdefs.ErrConfig)
	}
	if expiration <= 0 {
		expiration = DefaultTokenExpiration
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token signer: %w", err)
	}

	return &TokenIssuer{
		secret:     secret,
		expiration: expiration,
		signer:     signer,
		now:        time.Now,
	}, nil
}

// Issue returns a signed token for the client and the time it expires.
func (i *TokenIssuer) Issue(name, uid string) (string, time.Time, error) {
	issuedAt := i.now()
	expiresAt := issuedAt.Add(i.expiration)

	claims := jwt.Claims{
		Subject:  name,
		ID:       uid,
		IssuedAt: jwt.NewNumericDate(issuedAt),
		Expiry:   jwt.NewNumericDate(expiresAt),
	}

	token, err := jwt.Signed(i.signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt.Truncate(time.Second), nil
}

// Validate checks the signature and expiry of a token and returns the client
// name and identity value it carries.
func (i *TokenIssuer) Validate(token string) (string, string, error) {
	parsed, err := jwt.ParseSigned(token)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", errdefs.ErrTokenInvalid, err)
	}
	if len(parsed.Headers) != 1 || parsed.Headers[0].Algorithm != string(jose.HS256) {
		return "", "", fmt.Errorf("%w: unexpected signing algorithm", errdefs.ErrTokenInvalid)
	}

	var claims jwt.Claims
	if err := parsed.Claims(i.secret, &claims); err != nil {
		return "", "", fmt.Errorf("%w: %v", errdefs.ErrTokenInvalid, err)
	}

	if claims.Expiry == nil {
		return "", "", fmt.Errorf("%w: token has no expiry", errdefs.ErrTokenInvalid)
	}
	if err := claims.ValidateWithLeeway(jwt.Expected{Time: i.now()}, 0); err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return "", "", fmt.Errorf("%w: expired at %s", errdefs.ErrTokenExpired, claims.Expiry.Time().UTC().Format(time.RFC3339))
		}
		return "", "", fmt.Errorf("%w: %v", errdefs.ErrTokenInvalid, err)
	}

	if claims.Subject == "" || claims.ID == "" {
		return "", "", fmt.Errorf("%w: missing subject or token id", errdefs.ErrTokenInvalid)
	}

	return claims.Subject, claims.ID, nil
}
