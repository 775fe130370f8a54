// Package directory defines the directory-service capability consumed by
// the directory authentication provider, plus the attribute and group→role
// mapping applied to directory entries.
package directory

import (
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-core/identity"
)

// ErrBindFailed is returned by a Client when the supplied credentials are
// rejected by the directory.
var ErrBindFailed = errors.New("directory bind failed")

// Client is the directory-service capability. The wire protocol and schema
// live behind this boundary.
type Client interface {
	Bind(username, password string) error
	FindUser(attribute, value string) (map[string][]string, error)
	ListGroups(username string) ([]string, error)
}

// AttributeMap names the directory attributes that populate each identity
// field. Empty entries are skipped.
type AttributeMap struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Photo     string
}

// DefaultAttributeMap covers common OpenLDAP/AD schemas.
func DefaultAttributeMap() AttributeMap {
	return AttributeMap{
		Username:  "uid",
		Email:     "mail",
		FirstName: "givenName",
		LastName:  "sn",
		Photo:     "jpegPhoto",
	}
}

// Apply copies mapped attribute values onto the identity.
func (m AttributeMap) Apply(attrs map[string][]string, ident *identity.Identity) {
	if v := first(attrs, m.Username); v != "" {
		ident.Username = v
	}
	if v := first(attrs, m.Email); v != "" {
		ident.Email = v
	}
	if v := first(attrs, m.FirstName); v != "" {
		ident.Profile.FirstName = v
	}
	if v := first(attrs, m.LastName); v != "" {
		ident.Profile.LastName = v
	}
	if v := first(attrs, m.Photo); v != "" {
		ident.Profile.Photo = v
	}
}

func first(attrs map[string][]string, name string) string {
	if name == "" {
		return ""
	}
	values := attrs[name]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
