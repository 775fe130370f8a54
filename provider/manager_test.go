package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-core/identity"
	"github.com/jrsteele09/go-auth-core/provider"
	"github.com/jrsteele09/go-auth-core/provider/providerfakes"
	"github.com/jrsteele09/go-auth-core/request/requestfakes"
)

func TestRegisterRejectsDuplicates(t *testing.T) {
	m, err := provider.NewManager(&providerfakes.FakeProvider{ProviderName: "one"})
	require.NoError(t, err)

	err = m.Register(&providerfakes.FakeProvider{ProviderName: "one"})
	require.Error(t, err)
	err = m.Register(nil)
	require.Error(t, err)
}

func TestFirstRegisteredProviderIsDefault(t *testing.T) {
	first := &providerfakes.FakeProvider{ProviderName: "first"}
	second := &providerfakes.FakeProvider{ProviderName: "second"}

	m, err := provider.NewManager(first, second)
	require.NoError(t, err)
	require.Equal(t, "first", m.Default().Name())

	require.NoError(t, m.SetDefault("second"))
	require.Equal(t, "second", m.Default().Name())

	require.Error(t, m.SetDefault("missing"))
}

func TestAuthenticateHidesFailureReason(t *testing.T) {
	failing := &providerfakes.FakeProvider{ProviderName: "failing"}
	m, err := provider.NewManager(failing)
	require.NoError(t, err)

	_, err = m.Authenticate(context.Background(), requestfakes.NewFakeRequest())
	require.ErrorIs(t, err, provider.ErrInvalidCredentials)
	require.NotContains(t, err.Error(), "scripted failure")
}

func TestAuthenticateWithProvidersFirstMatchWins(t *testing.T) {
	failing := &providerfakes.FakeProvider{ProviderName: "failing"}
	passing := &providerfakes.FakeProvider{
		ProviderName: "passing",
		Identity:     &identity.Identity{UUID: "user-1"},
	}
	unreached := &providerfakes.FakeProvider{
		ProviderName: "unreached",
		Identity:     &identity.Identity{UUID: "user-2"},
	}

	m, err := provider.NewManager(failing, passing, unreached)
	require.NoError(t, err)

	ident, err := m.AuthenticateWithProviders(context.Background(),
		[]string{"unknown", "failing", "passing", "unreached"}, requestfakes.NewFakeRequest())
	require.NoError(t, err)
	require.Equal(t, "user-1", ident.UUID)
	require.Equal(t, 1, failing.AuthCalls)
	require.Equal(t, 1, passing.AuthCalls)
	require.Zero(t, unreached.AuthCalls)
}

func TestAuthenticateWithProvidersTotalFailure(t *testing.T) {
	m, err := provider.NewManager(&providerfakes.FakeProvider{ProviderName: "failing"})
	require.NoError(t, err)

	_, err = m.AuthenticateWithProviders(context.Background(), []string{"failing"}, requestfakes.NewFakeRequest())
	require.ErrorIs(t, err, provider.ErrInvalidCredentials)
}

func TestIsAdminResolutionChain(t *testing.T) {
	p := &providerfakes.FakeProvider{ProviderName: "fake"}
	m, err := provider.NewManager(p)
	require.NoError(t, err)
	ctx := context.Background()

	require.False(t, m.IsAdmin(ctx, nil))
	require.False(t, m.IsAdmin(ctx, &identity.Identity{UUID: "u", Provider: "fake"}))

	// The explicit flag short-circuits everything.
	require.True(t, m.IsAdmin(ctx, &identity.Identity{UUID: "u", IsAdmin: true}))

	// The identity's own provider gets the next say.
	p.AdminResult = true
	require.True(t, m.IsAdmin(ctx, &identity.Identity{UUID: "u", Provider: "fake"}))
	p.AdminResult = false

	// The superuser role scan is the last resort, case-insensitively.
	require.True(t, m.IsAdmin(ctx, &identity.Identity{UUID: "u", Roles: []string{"SuperUser"}}))
}
