package token

import "github.com/jrsteele09/go-auth-core/identity"

// Pair is an access/refresh token pair. The access token is self-contained
// and signed; the refresh token is a bare capability matched only against a
// stored session row.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // access token lifetime, seconds
}

// SessionPayload is the OAuth-shaped response returned on session creation
// and refresh.
type SessionPayload struct {
	AccessToken  string              `json:"access_token"`
	TokenType    string              `json:"token_type"`
	ExpiresIn    int                 `json:"expires_in"`
	RefreshToken string              `json:"refresh_token"`
	User         identity.PublicUser `json:"user"`
}

// TokenTypeBearer is the only token type this core issues.
const TokenTypeBearer = "Bearer"
