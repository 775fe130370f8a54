package session

import (
	"path"
	"sort"
	"strings"
	"time"
)

// Predicate evaluates one record.
type Predicate func(rec *Record) bool

// QueryFilter is an in-process fluent filter over session records. Calls
// chain and conditions combine with AND unless grouped with OrGroup. The
// filter never touches a store: callers fetch a slice first and refine it
// here.
type QueryFilter struct {
	predicates []Predicate
	sortField  string
	sortDesc   bool
	offset     int
	limit      int
}

// NewQueryFilter creates an empty filter that matches every record.
func NewQueryFilter() *QueryFilter {
	return &QueryFilter{limit: -1}
}

// Where matches records whose named field equals value. Unknown field names
// match nothing.
func (q *QueryFilter) Where(field string, value any) *QueryFilter {
	return q.WhereFunc(func(rec *Record) bool {
		got, ok := fieldValue(rec, field)
		return ok && equalValues(got, value)
	})
}

// WhereIn matches records whose named field equals any of the values.
func (q *QueryFilter) WhereIn(field string, values ...any) *QueryFilter {
	return q.WhereFunc(func(rec *Record) bool {
		got, ok := fieldValue(rec, field)
		if !ok {
			return false
		}
		for _, v := range values {
			if equalValues(got, v) {
				return true
			}
		}
		return false
	})
}

// WhereRange matches records whose named time field lies in [from, to).
func (q *QueryFilter) WhereRange(field string, from, to time.Time) *QueryFilter {
	return q.WhereFunc(func(rec *Record) bool {
		got, ok := fieldValue(rec, field)
		if !ok {
			return false
		}
		t, ok := got.(time.Time)
		if !ok {
			return false
		}
		return !t.Before(from) && t.Before(to)
	})
}

// WhereContains matches records whose named string field contains the
// substring, case-insensitively.
func (q *QueryFilter) WhereContains(field, substring string) *QueryFilter {
	needle := strings.ToLower(substring)
	return q.WhereFunc(func(rec *Record) bool {
		got, ok := fieldValue(rec, field)
		if !ok {
			return false
		}
		s, ok := got.(string)
		return ok && strings.Contains(strings.ToLower(s), needle)
	})
}

// WhereGlob matches records whose named string field matches the shell-style
// pattern ("ses_*", "10.0.?.1").
func (q *QueryFilter) WhereGlob(field, pattern string) *QueryFilter {
	return q.WhereFunc(func(rec *Record) bool {
		got, ok := fieldValue(rec, field)
		if !ok {
			return false
		}
		s, ok := got.(string)
		if !ok {
			return false
		}
		matched, err := path.Match(pattern, s)
		return err == nil && matched
	})
}

// WhereRole matches records carrying the role, case-insensitively.
func (q *QueryFilter) WhereRole(role string) *QueryFilter {
	return q.WhereFunc(func(rec *Record) bool {
		for _, r := range rec.Roles {
			if strings.EqualFold(r, role) {
				return true
			}
		}
		return false
	})
}

// WherePermission matches records whose permission map grants the action on
// the resource.
func (q *QueryFilter) WherePermission(resource, action string) *QueryFilter {
	return q.WhereFunc(func(rec *Record) bool {
		for _, a := range rec.Permissions[resource] {
			if a == action {
				return true
			}
		}
		return false
	})
}

// WhereFunc appends an arbitrary predicate.
func (q *QueryFilter) WhereFunc(pred Predicate) *QueryFilter {
	q.predicates = append(q.predicates, pred)
	return q
}

// AndGroup appends a sub-filter whose conditions must all hold.
func (q *QueryFilter) AndGroup(build func(sub *QueryFilter)) *QueryFilter {
	sub := NewQueryFilter()
	build(sub)
	return q.WhereFunc(func(rec *Record) bool {
		return sub.matches(rec)
	})
}

// OrGroup appends a sub-filter whose conditions combine with OR: the group
// holds when any of its conditions does.
func (q *QueryFilter) OrGroup(build func(sub *QueryFilter)) *QueryFilter {
	sub := NewQueryFilter()
	build(sub)
	return q.WhereFunc(func(rec *Record) bool {
		if len(sub.predicates) == 0 {
			return true
		}
		for _, pred := range sub.predicates {
			if pred(rec) {
				return true
			}
		}
		return false
	})
}

// SortBy orders results on the named field. Unknown fields leave input
// order untouched.
func (q *QueryFilter) SortBy(field string, desc bool) *QueryFilter {
	q.sortField = field
	q.sortDesc = desc
	return q
}

// Offset skips the first n matches.
func (q *QueryFilter) Offset(n int) *QueryFilter {
	q.offset = n
	return q
}

// Limit caps the result size.
func (q *QueryFilter) Limit(n int) *QueryFilter {
	q.limit = n
	return q
}

func (q *QueryFilter) matches(rec *Record) bool {
	for _, pred := range q.predicates {
		if !pred(rec) {
			return false
		}
	}
	return true
}

// Apply runs the filter over the records and returns the matching slice
// after sorting and pagination. The input slice is never mutated.
func (q *QueryFilter) Apply(records []*Record) []*Record {
	matched := make([]*Record, 0, len(records))
	for _, rec := range records {
		if rec != nil && q.matches(rec) {
			matched = append(matched, rec)
		}
	}

	if q.sortField != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			less := lessValues(matched[i], matched[j], q.sortField)
			if q.sortDesc {
				return !less && !equalField(matched[i], matched[j], q.sortField)
			}
			return less
		})
	}

	if q.offset > 0 {
		if q.offset >= len(matched) {
			return []*Record{}
		}
		matched = matched[q.offset:]
	}
	if q.limit >= 0 && q.limit < len(matched) {
		matched = matched[:q.limit]
	}
	return matched
}

// First returns the first match after sorting and offset, or nil.
func (q *QueryFilter) First(records []*Record) *Record {
	saved := q.limit
	q.limit = 1
	out := q.Apply(records)
	q.limit = saved
	if len(out) == 0 {
		return nil
	}
	return out[0]
}

// Exists reports whether any record matches, ignoring pagination.
func (q *QueryFilter) Exists(records []*Record) bool {
	for _, rec := range records {
		if rec != nil && q.matches(rec) {
			return true
		}
	}
	return false
}

// Count returns the number of matches, ignoring pagination.
func (q *QueryFilter) Count(records []*Record) int {
	n := 0
	for _, rec := range records {
		if rec != nil && q.matches(rec) {
			n++
		}
	}
	return n
}

// fieldValue resolves the queryable fields by name.
func fieldValue(rec *Record, field string) (any, bool) {
	switch field {
	case "id", "session_id":
		return rec.ID, true
	case "user_uuid", "user_id":
		return rec.UserUUID, true
	case "access_token":
		return rec.AccessToken, true
	case "refresh_token":
		return rec.RefreshToken, true
	case "token_fingerprint":
		return rec.TokenFingerprint, true
	case "provider":
		return rec.Provider, true
	case "status":
		return string(rec.Status), true
	case "ip_address":
		return rec.IPAddress, true
	case "user_agent":
		return rec.UserAgent, true
	case "remember_me":
		return rec.RememberMe, true
	case "created_at":
		return rec.CreatedAt, true
	case "access_expires_at":
		return rec.AccessExpiresAt, true
	case "refresh_expires_at":
		return rec.RefreshExpiresAt, true
	case "last_activity":
		return rec.LastActivity, true
	default:
		return nil, false
	}
}

func equalValues(got, want any) bool {
	if s, ok := want.(Status); ok {
		want = string(s)
	}
	if t1, ok := got.(time.Time); ok {
		t2, ok := want.(time.Time)
		return ok && t1.Equal(t2)
	}
	return got == want
}

func lessValues(a, b *Record, field string) bool {
	va, okA := fieldValue(a, field)
	vb, okB := fieldValue(b, field)
	if !okA || !okB {
		return false
	}
	switch x := va.(type) {
	case string:
		y, _ := vb.(string)
		return x < y
	case time.Time:
		y, _ := vb.(time.Time)
		return x.Before(y)
	case bool:
		y, _ := vb.(bool)
		return !x && y
	default:
		return false
	}
}

func equalField(a, b *Record, field string) bool {
	va, okA := fieldValue(a, field)
	vb, okB := fieldValue(b, field)
	return okA && okB && equalValues(va, vb)
}
