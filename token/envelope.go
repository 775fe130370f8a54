package token

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// AuthMethodLDAP marks envelope tokens minted by the directory provider.
const AuthMethodLDAP = "ldap"

// Envelope is the self-describing token carried by directory-authenticated
// sessions: a single base64 segment wrapping a JSON object, not a signed
// JWT. The session row remains the source of truth for its validity.
type Envelope struct {
	AuthMethod string `json:"auth_method"`
	Subject    string `json:"sub"`
	Username   string `json:"username,omitempty"`
	IssuedAt   int64  `json:"iat,omitempty"`
	ExpiresAt  int64  `json:"exp"`
}

// Expired reports whether the envelope expiry has passed.
func (e *Envelope) Expired(now time.Time) bool {
	return e.ExpiresAt <= now.Unix()
}

// EncodeEnvelope serializes the envelope into its wire form.
func EncodeEnvelope(env Envelope) (string, error) {
	if env.AuthMethod == "" {
		env.AuthMethod = AuthMethodLDAP
	}
	bytes, err := json.Marshal(env)
	if err != nil {
		return "", errors.Wrap(err, "[EncodeEnvelope] Marshal")
	}
	return base64.StdEncoding.EncodeToString(bytes), nil
}

// DecodeEnvelope parses an envelope token. Tokens that are not a single
// base64 JSON object carrying auth_method, sub and exp fail with
// ErrMalformedToken.
func DecodeEnvelope(tokenStr string) (*Envelope, error) {
	bytes, err := base64.StdEncoding.DecodeString(tokenStr)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedToken, "[DecodeEnvelope] base64 decode")
	}

	var env Envelope
	if err := json.Unmarshal(bytes, &env); err != nil {
		return nil, errors.Wrap(ErrMalformedToken, "[DecodeEnvelope] Unmarshal")
	}
	if env.AuthMethod == "" || env.Subject == "" || env.ExpiresAt == 0 {
		return nil, errors.Wrap(ErrMalformedToken, "[DecodeEnvelope] missing envelope fields")
	}
	return &env, nil
}

// IsEnvelope reports whether the token is a directory envelope. Structural
// inspection only; no validity check.
func IsEnvelope(tokenStr string) bool {
	env, err := DecodeEnvelope(tokenStr)
	return err == nil && env.AuthMethod == AuthMethodLDAP
}
