package providerfakes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-core/identity"
	"github.com/jrsteele09/go-auth-core/provider"
	"github.com/jrsteele09/go-auth-core/request"
	"github.com/jrsteele09/go-auth-core/session"
	"github.com/jrsteele09/go-auth-core/token"
)

// FakeProvider is a scriptable authentication strategy for manager tests.
// It accepts any request when Identity is set and recognizes tokens by the
// TokenPrefix.
type FakeProvider struct {
	ProviderName string
	// Identity is returned by Authenticate; nil means every attempt fails.
	Identity *identity.Identity
	// TokenPrefix drives CanHandleToken and ValidateToken.
	TokenPrefix string
	// AdminResult is returned by IsAdmin.
	AdminResult bool
	// GenerateErr, when set, fails GenerateTokens and RefreshTokens.
	GenerateErr error

	// AuthCalls counts Authenticate invocations.
	AuthCalls int

	seq    int
	reason string
}

var _ provider.Provider = (*FakeProvider)(nil)

func (f *FakeProvider) Name() string { return f.ProviderName }

func (f *FakeProvider) Authenticate(_ context.Context, _ request.Request) *identity.Identity {
	f.AuthCalls++
	if f.Identity == nil {
		f.reason = "scripted failure"
		return nil
	}
	f.reason = ""
	clone := *f.Identity
	return &clone
}

func (f *FakeProvider) IsAdmin(context.Context, *identity.Identity) bool {
	return f.AdminResult
}

func (f *FakeProvider) ValidateToken(_ context.Context, tokenStr string) bool {
	return f.CanHandleToken(tokenStr)
}

func (f *FakeProvider) CanHandleToken(tokenStr string) bool {
	return f.TokenPrefix != "" && strings.HasPrefix(tokenStr, f.TokenPrefix)
}

func (f *FakeProvider) GenerateTokens(_ context.Context, _ *identity.Identity, accessTTL, _ time.Duration) (*token.Pair, error) {
	if f.GenerateErr != nil {
		return nil, f.GenerateErr
	}
	f.seq++
	return &token.Pair{
		AccessToken:  fmt.Sprintf("%saccess-%d", f.TokenPrefix, f.seq),
		RefreshToken: fmt.Sprintf("%srefresh-%d", f.TokenPrefix, f.seq),
		ExpiresIn:    int(accessTTL.Seconds()),
	}, nil
}

func (f *FakeProvider) RefreshTokens(ctx context.Context, refreshToken string, sess *session.Session, accessTTL, refreshTTL time.Duration) (*token.Pair, error) {
	if sess == nil || sess.Status != session.StatusActive || sess.RefreshToken != refreshToken {
		return nil, nil
	}
	return f.GenerateTokens(ctx, nil, accessTTL, refreshTTL)
}

func (f *FakeProvider) Error() string { return f.reason }
