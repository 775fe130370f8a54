package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrMalformedToken is returned by Decode when a token is structurally
// invalid: not three dot-separated base64url segments, or a header missing
// the alg/typ fields.
var ErrMalformedToken = errors.New("malformed token")

const refreshTokenBytes = 32 // 256 bits of entropy

// Claims is the claim set carried by an access token.
type Claims map[string]any

// Codec signs and verifies bearer tokens and generates opaque refresh
// tokens. It is stateless: revocation is a higher-layer concern and is
// never consulted here.
type Codec struct {
	secret  []byte
	salt    []byte
	issuer  string
	nowFunc func() time.Time
}

// CodecOption modifies a Codec instance.
type CodecOption func(*Codec)

// WithIssuer sets the iss claim stamped into generated tokens.
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		c.issuer = issuer
	}
}

// WithNowFunc sets the time source (primarily for testing).
func WithNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

// NewCodec creates a Codec. secret signs access tokens (HS256); salt feeds
// the installation-wide token fingerprint.
func NewCodec(secret, salt []byte, options ...CodecOption) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("[NewCodec] signing secret is required")
	}
	if len(salt) == 0 {
		return nil, errors.New("[NewCodec] fingerprint salt is required")
	}

	codec := &Codec{
		secret:  secret,
		salt:    salt,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(codec)
	}
	return codec, nil
}

// Generate signs the claims into an access token expiring ttl from now.
func (c *Codec) Generate(claims Claims, ttl time.Duration) (string, error) {
	now := c.nowFunc()

	mapClaims := jwt.MapClaims{}
	for k, v := range claims {
		mapClaims[k] = v
	}
	mapClaims["iat"] = now.Unix()
	mapClaims["exp"] = now.Add(ttl).Unix()
	mapClaims["jti"] = uuid.New().String()
	if c.issuer != "" {
		mapClaims["iss"] = c.issuer
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims).SignedString(c.secret)
	if err != nil {
		return "", errors.Wrap(err, "[Codec.Generate] SignedString")
	}
	return signed, nil
}

// Verify checks signature and expiry only.
func (c *Codec) Verify(tokenStr string) bool {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.nowFunc),
		jwt.WithExpirationRequired(),
	)
	token, err := parser.Parse(tokenStr, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	return err == nil && token.Valid
}

// Decode parses a token without verifying the signature. It is intended for
// diagnostic and routing paths; callers must not treat the result as
// authenticated data.
func (c *Codec) Decode(tokenStr string) (Claims, error) {
	segments := strings.Split(tokenStr, ".")
	if len(segments) != 3 {
		return nil, errors.Wrap(ErrMalformedToken, "[Codec.Decode] expected three segments")
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(segments[0])
	if err != nil {
		return nil, errors.Wrap(ErrMalformedToken, "[Codec.Decode] header decode")
	}
	var header map[string]any
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, errors.Wrap(ErrMalformedToken, "[Codec.Decode] header unmarshal")
	}
	if _, ok := header["alg"]; !ok {
		return nil, errors.Wrap(ErrMalformedToken, "[Codec.Decode] header missing alg")
	}
	if _, ok := header["typ"]; !ok {
		return nil, errors.Wrap(ErrMalformedToken, "[Codec.Decode] header missing typ")
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(segments[1])
	if err != nil {
		return nil, errors.Wrap(ErrMalformedToken, "[Codec.Decode] payload decode")
	}
	var claims Claims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return nil, errors.Wrap(ErrMalformedToken, "[Codec.Decode] payload unmarshal")
	}
	return claims, nil
}

// NewRefreshToken returns a cryptographically random opaque token with no
// embedded semantics. The result is always the same length.
func (c *Codec) NewRefreshToken() (string, error) {
	bytes := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", errors.Wrap(err, "[Codec.NewRefreshToken] rand.Read")
	}
	return hex.EncodeToString(bytes), nil
}

// Fingerprint returns a one-way digest of the token mixed with the
// installation salt. It is stored alongside a session for tamper evidence
// and is never used for lookup.
func (c *Codec) Fingerprint(tokenStr string) string {
	mac := hmac.New(sha256.New, c.salt)
	mac.Write([]byte(tokenStr))
	return hex.EncodeToString(mac.Sum(nil))
}
