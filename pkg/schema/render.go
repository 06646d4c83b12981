package schema

import (
	"fmt"
	"strings"
)

// Render writes the compact textual form used in prompts:
//
//	# Table: orders, customer orders
//	[
//	(region:VARCHAR, 销售区域, Examples: [华东, 华北])
//	]
func Render(s Schema) string {
	var sb strings.Builder
	if s.Name != "" {
		fmt.Fprintf(&sb, "【DB_ID】 %s\n", s.Name)
	}
	for _, t := range s.Tables {
		sb.WriteString("# Table: ")
		sb.WriteString(t.Name)
		if t.Description != "" {
			sb.WriteString(", ")
			sb.WriteString(t.Description)
		}
		sb.WriteString("\n[\n")
		for _, c := range t.Columns {
			sb.WriteString("(")
			sb.WriteString(c.Name)
			if c.Type != "" {
				sb.WriteString(":")
				sb.WriteString(c.Type)
			}
			if c.Description != "" {
				sb.WriteString(", ")
				sb.WriteString(c.Description)
			}
			if isPrimary(t, c.Name) {
				sb.WriteString(", Primary Key")
			}
			if len(c.SampleValues) > 0 {
				fmt.Fprintf(&sb, ", Examples: [%s]", strings.Join(c.SampleValues, ", "))
			}
			sb.WriteString(")\n")
		}
		sb.WriteString("]\n")
	}
	if len(s.ForeignKeys) > 0 {
		sb.WriteString("【Foreign keys】\n")
		for _, fk := range s.ForeignKeys {
			sb.WriteString(fk)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func isPrimary(t Table, column string) bool {
	for _, pk := range t.PrimaryKeys {
		if strings.EqualFold(pk, column) {
			return true
		}
	}
	return false
}
