package directory_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-core/directory"
)

func TestNewGroupRoleTableValidatesEntries(t *testing.T) {
	_, err := directory.NewGroupRoleTable([]directory.GroupRole{{Exact: "admins"}})
	require.Error(t, err) // no role

	_, err = directory.NewGroupRoleTable([]directory.GroupRole{{Pattern: "(unclosed", Role: "broken"}})
	require.Error(t, err)
}

func TestResolveDeclaredOrderWins(t *testing.T) {
	table, err := directory.NewGroupRoleTable([]directory.GroupRole{
		{Exact: "admins", Role: "superuser"},
		{Exact: "developers", Role: "developer"},
		{Exact: "qa", Role: "tester"},
	})
	require.NoError(t, err)

	// Group order is irrelevant; the table's declaration order decides.
	roles := table.Resolve([]string{
		"cn=qa,ou=groups,dc=example,dc=com",
		"cn=developers,ou=groups,dc=example,dc=com",
		"cn=admins,ou=groups,dc=example,dc=com",
	})
	require.Equal(t, []string{"superuser", "developer", "tester"}, roles)
}

func TestResolveCollapsesDuplicateRoles(t *testing.T) {
	table, err := directory.NewGroupRoleTable([]directory.GroupRole{
		{Exact: "admins", Role: "superuser"},
		{Exact: "operators", Role: "superuser"},
		{Exact: "developers", Role: "developer"},
	})
	require.NoError(t, err)

	roles := table.Resolve([]string{"operators", "admins", "developers"})
	require.Equal(t, []string{"superuser", "developer"}, roles)
}

func TestResolveMatchKinds(t *testing.T) {
	table, err := directory.NewGroupRoleTable([]directory.GroupRole{
		{DN: "cn=admins,ou=groups,dc=example,dc=com", Role: "superuser"},
		{Pattern: `^cn=team-[a-z]+,`, Role: "member"},
		{Exact: "Auditors", Role: "auditor"},
	})
	require.NoError(t, err)

	roles := table.Resolve([]string{
		"cn=ADMINS,ou=groups,dc=example,dc=com", // DN match is case-insensitive
		"cn=team-alpha,ou=groups,dc=example,dc=com",
		"cn=auditors,ou=groups,dc=example,dc=com", // exact match on bare name
	})
	require.Equal(t, []string{"superuser", "member", "auditor"}, roles)

	require.Empty(t, table.Resolve([]string{"cn=strangers,ou=groups,dc=example,dc=com"}))
	require.Empty(t, table.Resolve(nil))
}
