package provider

import (
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/jrsteele09/go-auth-core/identity"
	"github.com/jrsteele09/go-auth-core/request"
)

var bearerPattern = regexp.MustCompile(`(?i)^\s*bearer\s+(\S+)\s*$`)

// BearerToken extracts a bearer token from the Authorization header.
// Matching is case-insensitive and tolerates extra whitespace.
func BearerToken(req request.Request) string {
	header := req.Header("Authorization")
	if header == "" {
		return ""
	}
	match := bearerPattern.FindStringSubmatch(header)
	if match == nil {
		return ""
	}
	return match[1]
}

// credentials extracts a username/password pair from the request: Basic
// authorization header first, request attributes as a fallback for callers
// that pre-parsed a login form.
func credentials(req request.Request) (username, password string) {
	header := req.Header("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(strings.TrimSpace(parts[0]), "basic") {
			decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(parts[1]))
			if err == nil {
				pair := strings.SplitN(string(decoded), ":", 2)
				if len(pair) == 2 {
					return pair[0], pair[1]
				}
			}
		}
	}

	if u, ok := req.Attribute("username").(string); ok {
		username = u
	}
	if p, ok := req.Attribute("password").(string); ok {
		password = p
	}
	return username, password
}

// markAuthenticated writes the post-authentication attributes onto the
// request for downstream middleware.
func markAuthenticated(req request.Request, ident *identity.Identity) {
	req.SetAttribute(request.AttrAuthenticated, true)
	req.SetAttribute(request.AttrUserID, ident.UUID)
	req.SetAttribute(request.AttrUserData, ident)
}
