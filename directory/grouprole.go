package directory

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// GroupRole maps a directory group to a local role. Exactly one of Exact,
// DN or Pattern should be set; when several are set they are tried in that
// order within the entry.
type GroupRole struct {
	Exact   string // case-insensitive match on the bare group name
	DN      string // case-insensitive match on the full group DN
	Pattern string // regular expression over group name or DN
	Role    string
}

// GroupRoleTable resolves directory-group membership to local roles.
// Entries are evaluated in declaration order and declared order wins: the
// first entry matching a group assigns its role, and the resulting role
// list preserves first occurrence.
type GroupRoleTable struct {
	entries  []GroupRole
	compiled []*regexp.Regexp
}

// NewGroupRoleTable compiles the pattern entries up front so a bad regex
// fails at configuration time, not during authentication.
func NewGroupRoleTable(entries []GroupRole) (*GroupRoleTable, error) {
	table := &GroupRoleTable{
		entries:  entries,
		compiled: make([]*regexp.Regexp, len(entries)),
	}
	for i, entry := range entries {
		if entry.Role == "" {
			return nil, errors.Errorf("[NewGroupRoleTable] entry %d has no role", i)
		}
		if entry.Pattern != "" {
			re, err := regexp.Compile(entry.Pattern)
			if err != nil {
				return nil, errors.Wrapf(err, "[NewGroupRoleTable] entry %d pattern", i)
			}
			table.compiled[i] = re
		}
	}
	return table, nil
}

// Resolve maps the given group names/DNs to roles. Duplicate roles are
// collapsed keeping the first occurrence.
func (t *GroupRoleTable) Resolve(groups []string) []string {
	var roles []string
	seen := make(map[string]struct{})

	for _, entry := range t.orderedEntries() {
		for _, group := range groups {
			if !t.matches(entry.index, group) {
				continue
			}
			if _, dup := seen[entry.gr.Role]; !dup {
				seen[entry.gr.Role] = struct{}{}
				roles = append(roles, entry.gr.Role)
			}
			break
		}
	}
	return roles
}

type indexedEntry struct {
	index int
	gr    GroupRole
}

func (t *GroupRoleTable) orderedEntries() []indexedEntry {
	ordered := make([]indexedEntry, len(t.entries))
	for i, gr := range t.entries {
		ordered[i] = indexedEntry{index: i, gr: gr}
	}
	return ordered
}

func (t *GroupRoleTable) matches(index int, group string) bool {
	entry := t.entries[index]
	if entry.Exact != "" && strings.EqualFold(bareGroupName(group), entry.Exact) {
		return true
	}
	if entry.DN != "" && strings.EqualFold(group, entry.DN) {
		return true
	}
	if re := t.compiled[index]; re != nil && re.MatchString(group) {
		return true
	}
	return false
}

// bareGroupName extracts the leading RDN value from a DN, or returns the
// input unchanged when it is already a plain name.
func bareGroupName(group string) string {
	if !strings.Contains(group, "=") {
		return group
	}
	head := strings.SplitN(group, ",", 2)[0]
	parts := strings.SplitN(head, "=", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return group
}
