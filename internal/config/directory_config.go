package config

import "github.com/spf13/viper"

const (
	ldapURLVar            = "LDAP_URL"
	ldapBaseDNVar         = "LDAP_BASE_DN"
	ldapUserDNTemplateVar = "LDAP_USER_DN_TEMPLATE"
	ldapGroupBaseDNVar    = "LDAP_GROUP_BASE_DN"
	ldapGroupFilterVar    = "LDAP_GROUP_FILTER"
)

type DirectoryConfig interface {
	// DirectoryEnabled reports whether an LDAP endpoint is configured at all.
	DirectoryEnabled() bool
	GetLDAPURL() string
	GetLDAPBaseDN() string
	GetLDAPUserDNTemplate() string
	GetLDAPGroupBaseDN() string
	GetLDAPGroupFilter() string
}

type Directory struct {
	v *viper.Viper
}

var _ DirectoryConfig = Directory{}

func (d Directory) DirectoryEnabled() bool {
	return d.v.GetString(ldapURLVar) != ""
}

func (d Directory) GetLDAPURL() string {
	return d.v.GetString(ldapURLVar)
}

func (d Directory) GetLDAPBaseDN() string {
	return d.v.GetString(ldapBaseDNVar)
}

func (d Directory) GetLDAPUserDNTemplate() string {
	return d.v.GetString(ldapUserDNTemplateVar)
}

func (d Directory) GetLDAPGroupBaseDN() string {
	return d.v.GetString(ldapGroupBaseDNVar)
}

func (d Directory) GetLDAPGroupFilter() string {
	return d.v.GetString(ldapGroupFilterVar)
}
