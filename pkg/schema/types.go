package schema

import "strings"

// Schema is the recalled slice of a datasource.
type Schema struct {
	Name        string   `json:"name"`
	Tables      []Table  `json:"tables"`
	ForeignKeys []string `json:"foreign_keys,omitempty"`
}

// Table is one recalled table.
type Table struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	PrimaryKeys []string `json:"primary_keys,omitempty"`
	Columns     []Column `json:"columns"`
}

// Column is one recalled column.
type Column struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Type         string   `json:"type,omitempty"`
	SampleValues []string `json:"sample_values,omitempty"`
}

// IsEmpty reports whether no table was recalled.
func (s Schema) IsEmpty() bool {
	return len(s.Tables) == 0
}

// Table returns the table with the given name, case-insensitively.
func (s Schema) Table(name string) (Table, bool) {
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Table{}, false
}

// TableNames lists table names in schema order.
func (s Schema) TableNames() []string {
	out := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		out = append(out, t.Name)
	}
	return out
}
