package provider

import (
	"github.com/jrsteele09/go-auth-core/identity"
	"github.com/jrsteele09/go-auth-core/token"
)

// identityClaims builds the claim subset embedded in an access token: just
// enough of the identity to authorize without a store round-trip.
func identityClaims(ident *identity.Identity) token.Claims {
	claims := token.Claims{"sub": ident.UUID}
	if ident.Username != "" {
		claims["username"] = ident.Username
	}
	if ident.Email != "" {
		claims["email"] = ident.Email
	}
	if len(ident.Roles) > 0 {
		claims["roles"] = ident.Roles
	}
	if ident.IsAdmin {
		claims["is_admin"] = true
	}
	if ident.Provider != "" {
		claims["provider"] = ident.Provider
	}
	return claims
}

// identityFromClaims rebuilds the identity subset carried by a token.
func identityFromClaims(claims token.Claims) *identity.Identity {
	ident := &identity.Identity{}
	if sub, ok := claims["sub"].(string); ok {
		ident.UUID = sub
	}
	if username, ok := claims["username"].(string); ok {
		ident.Username = username
	}
	if email, ok := claims["email"].(string); ok {
		ident.Email = email
	}
	if isAdmin, ok := claims["is_admin"].(bool); ok {
		ident.IsAdmin = isAdmin
	}
	if providerName, ok := claims["provider"].(string); ok {
		ident.Provider = providerName
	}
	if rawRoles, ok := claims["roles"].([]any); ok {
		for _, raw := range rawRoles {
			if role, ok := raw.(string); ok {
				ident.Roles = append(ident.Roles, role)
			}
		}
	} else if roles, ok := claims["roles"].([]string); ok {
		ident.Roles = append(ident.Roles, roles...)
	}
	return ident
}
