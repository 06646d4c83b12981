package schema

import (
	"sort"
	"strings"
)

// MissingTables returns tables referenced by foreign keys but absent from the schema.
func (s Schema) MissingTables() []string {
	present := make(map[string]struct{}, len(s.Tables))
	for _, t := range s.Tables {
		present[strings.ToLower(t.Name)] = struct{}{}
	}
	missing := make(map[string]struct{})
	for _, fk := range s.ForeignKeys {
		rel, ok := ParseRelation(fk)
		if !ok {
			continue
		}
		for _, t := range []string{rel.FromTable, rel.ToTable} {
			if _, ok := present[strings.ToLower(t)]; !ok {
				missing[t] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(missing))
	for t := range missing {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Complete reports whether every foreign key resolves inside the schema.
func (s Schema) Complete() bool {
	return len(s.MissingTables()) == 0
}
