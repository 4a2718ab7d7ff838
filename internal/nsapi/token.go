package nsapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	id "openletter/pkg/domain"
)

// ErrMissingSecret is returned when no signing secret is configured. It is a
// startup error; the service cannot verify signatures without one.
var ErrMissingSecret = errors.New("nsapi: signing secret is empty")

// TokenSigner produces the site-specific token sent with verify calls. The
// signing page must render the same value, so both sides go through Token.
type TokenSigner struct {
	secret []byte
}

func NewTokenSigner(secret string) (*TokenSigner, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &TokenSigner{secret: []byte(secret)}, nil
}

// Token returns hex(HMAC-SHA-256(secret, NationKey(nation))), so every
// spelling the game accepts for a nation gets the same token.
func (s *TokenSigner) Token(nation string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(id.NationKey(nation)))
	return hex.EncodeToString(mac.Sum(nil))
}
