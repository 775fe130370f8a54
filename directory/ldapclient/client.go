// Package ldapclient adapts a real LDAP directory to the directory.Client
// capability.
package ldapclient

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-core/directory"
)

var _ directory.Client = (*Client)(nil)

// Config describes the directory connection and search layout.
type Config struct {
	URL            string // e.g. ldaps://directory.internal:636
	BaseDN         string // search base, e.g. dc=example,dc=org
	UserDNTemplate string // bind DN template, %s replaced by username
	GroupBaseDN    string // optional, defaults to BaseDN
	GroupFilter    string // optional, %s replaced by escaped username
}

// Client talks to an LDAP server. Each call dials a fresh connection; the
// driver handles its own timeouts.
type Client struct {
	config Config
}

func New(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("[ldapclient.New] URL is required")
	}
	if config.BaseDN == "" {
		return nil, errors.New("[ldapclient.New] BaseDN is required")
	}
	if config.UserDNTemplate == "" {
		config.UserDNTemplate = "uid=%s," + config.BaseDN
	}
	if config.GroupBaseDN == "" {
		config.GroupBaseDN = config.BaseDN
	}
	if config.GroupFilter == "" {
		config.GroupFilter = "(|(memberUid=%s)(member=uid=%s,{base}))"
	}
	return &Client{config: config}, nil
}

// Bind authenticates the supplied credentials against the directory.
func (c *Client) Bind(username, password string) error {
	conn, err := ldap.DialURL(c.config.URL)
	if err != nil {
		return errors.Wrap(err, "[Client.Bind] DialURL")
	}
	defer conn.Close()

	userDN := fmt.Sprintf(c.config.UserDNTemplate, ldap.EscapeDN(username))
	if err := conn.Bind(userDN, password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return errors.Wrap(directory.ErrBindFailed, err.Error())
		}
		return errors.Wrap(err, "[Client.Bind] Bind")
	}
	return nil
}

// FindUser searches for a single entry where attribute=value and returns
// its attributes.
func (c *Client) FindUser(attribute, value string) (map[string][]string, error) {
	conn, err := ldap.DialURL(c.config.URL)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.FindUser] DialURL")
	}
	defer conn.Close()

	filter := fmt.Sprintf("(%s=%s)", attribute, ldap.EscapeFilter(value))
	req := ldap.NewSearchRequest(
		c.config.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 2, 0, false,
		filter, nil, nil,
	)
	result, err := conn.Search(req)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.FindUser] Search")
	}
	if len(result.Entries) == 0 {
		return nil, errors.Errorf("[Client.FindUser] no entry for %s=%s", attribute, value)
	}

	entry := result.Entries[0]
	attrs := make(map[string][]string, len(entry.Attributes)+1)
	attrs["dn"] = []string{entry.DN}
	for _, attr := range entry.Attributes {
		attrs[attr.Name] = attr.Values
	}
	return attrs, nil
}

// ListGroups returns the group names/DNs the user belongs to.
func (c *Client) ListGroups(username string) ([]string, error) {
	conn, err := ldap.DialURL(c.config.URL)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.ListGroups] DialURL")
	}
	defer conn.Close()

	escaped := ldap.EscapeFilter(username)
	filter := strings.ReplaceAll(c.config.GroupFilter, "{base}", c.config.BaseDN)
	filter = strings.ReplaceAll(filter, "%s", escaped)

	req := ldap.NewSearchRequest(
		c.config.GroupBaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter, []string{"cn", "dn"}, nil,
	)
	result, err := conn.Search(req)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.ListGroups] Search")
	}

	groups := make([]string, 0, len(result.Entries))
	for _, entry := range result.Entries {
		groups = append(groups, entry.DN)
	}
	return groups, nil
}
