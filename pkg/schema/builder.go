package schema

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/aretw0/sqlgraph/pkg/domain"
)

// Build assembles a Schema from table and column documents. Columns are
// attached to their owning table in the order given; tables keep document
// order. Foreign keys from all table documents are deduplicated.
func Build(name string, tables, columns []domain.RetrievedDocument) Schema {
	s := Schema{Name: name}
	index := make(map[string]int, len(tables))
	fks := make(map[string]struct{})

	for _, doc := range tables {
		tname := doc.MetaString(domain.MetaName)
		if tname == "" {
			continue
		}
		key := strings.ToLower(tname)
		if _, dup := index[key]; dup {
			continue
		}
		index[key] = len(s.Tables)
		s.Tables = append(s.Tables, Table{
			Name:        tname,
			Description: doc.MetaString(domain.MetaDescription),
			PrimaryKeys: splitList(doc.MetaStrings(domain.MetaPrimaryKey)),
		})
		for _, rel := range ParseForeignKeys(doc.MetaString(domain.MetaForeignKey)) {
			fks[rel.String()] = struct{}{}
		}
	}

	seenCols := make(map[string]struct{})
	for _, doc := range columns {
		owner := strings.ToLower(doc.MetaString(domain.MetaTableName))
		i, ok := index[owner]
		if !ok {
			continue
		}
		cname := doc.MetaString(domain.MetaName)
		if cname == "" {
			continue
		}
		ckey := owner + "." + strings.ToLower(cname)
		if _, dup := seenCols[ckey]; dup {
			continue
		}
		seenCols[ckey] = struct{}{}
		s.Tables[i].Columns = append(s.Tables[i].Columns, Column{
			Name:         cname,
			Description:  doc.MetaString(domain.MetaDescription),
			Type:         doc.MetaString(domain.MetaType),
			SampleValues: samples(doc),
		})
	}

	for fk := range fks {
		s.ForeignKeys = append(s.ForeignKeys, fk)
	}
	sort.Strings(s.ForeignKeys)
	return s
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func samples(doc domain.RetrievedDocument) []string {
	if raw, ok := doc.Metadata[domain.MetaSamples].(string); ok && strings.HasPrefix(strings.TrimSpace(raw), "[") {
		var out []string
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			return out
		}
	}
	return doc.MetaStrings(domain.MetaSamples)
}
