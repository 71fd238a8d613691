package auth

import (
	"context"
	"strings"
	"time"
)

// Verifier checks bearer tokens. RS256 tokens with a key id are verified against
// the JWKS when one is configured; everything else falls back to the shared secret.
type Verifier struct {
	Secret string
	JWKS   *JWKSClient
	Now    func() time.Time
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	header, err := ParseHeader(token)
	if err != nil {
		return nil, err
	}
	if header.Alg == "RS256" && header.Kid != "" && v.JWKS != nil {
		pub, err := v.JWKS.Get(ctx, header.Kid)
		if err != nil {
			return nil, ErrInvalidToken
		}
		return VerifyRS256(token, pub, v.now())
	}
	if header.Alg != "HS256" || v.Secret == "" {
		return nil, ErrInvalidToken
	}
	return VerifyHS256(token, v.Secret, v.now())
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
