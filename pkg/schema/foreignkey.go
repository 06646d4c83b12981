package schema

import (
	"sort"
	"strings"
)

// Delimiters that may join several relations in one foreignKey field.
var relationDelimiters = []string{"、", ";", ","}

// Relation is one parsed foreign key.
type Relation struct {
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string
}

func (r Relation) String() string {
	return r.FromTable + "." + r.FromColumn + "=" + r.ToTable + "." + r.ToColumn
}

// SplitRelations splits a foreignKey field into its raw relation strings.
func SplitRelations(field string) []string {
	parts := []string{field}
	for _, d := range relationDelimiters {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, d)...)
		}
		parts = next
	}
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseRelation parses "a.x=b.y". Malformed input reports ok=false.
func ParseRelation(raw string) (Relation, bool) {
	left, right, found := strings.Cut(raw, "=")
	if !found {
		return Relation{}, false
	}
	ft, fc, ok1 := cutQualified(left)
	tt, tc, ok2 := cutQualified(right)
	if !ok1 || !ok2 {
		return Relation{}, false
	}
	return Relation{FromTable: ft, FromColumn: fc, ToTable: tt, ToColumn: tc}, true
}

func cutQualified(s string) (table, column string, ok bool) {
	s = strings.TrimSpace(s)
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), true
}

// ParseForeignKeys parses every relation of a foreignKey field.
func ParseForeignKeys(field string) []Relation {
	var out []Relation
	for _, raw := range SplitRelations(field) {
		if r, ok := ParseRelation(raw); ok {
			out = append(out, r)
		}
	}
	return out
}

// ReferencedTables returns the distinct table names on either side of the relations.
func ReferencedTables(rels []Relation) []string {
	seen := make(map[string]struct{})
	for _, r := range rels {
		seen[r.FromTable] = struct{}{}
		seen[r.ToTable] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
