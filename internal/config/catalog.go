package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/sqlgraph/pkg/domain"
)

// Catalog describes the tables, columns and evidence of each scope.
// It is the seed of the schema index.
//
//	scopes:
//	  - id: sales
//	    tables:
//	      - name: orders
//	        description: customer orders
//	        primary_key: id
//	        foreign_keys: [orders.customer_id=customers.id]
//	        columns:
//	          - {name: amount, type: DECIMAL, description: order total}
//	    evidence:
//	      - revenue means the sum of orders.amount
type Catalog struct {
	Scopes []CatalogScope `yaml:"scopes"`
}

// CatalogScope groups the documents of one scope.
type CatalogScope struct {
	ID       string         `yaml:"id"`
	Tables   []CatalogTable `yaml:"tables"`
	Evidence []string       `yaml:"evidence"`
}

// CatalogTable is one table with its columns.
type CatalogTable struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	PrimaryKey  StringList      `yaml:"primary_key"`
	ForeignKeys StringList      `yaml:"foreign_keys"`
	Columns     []CatalogColumn `yaml:"columns"`
}

// CatalogColumn is one column.
type CatalogColumn struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Description string   `yaml:"description"`
	Samples     []string `yaml:"samples"`
}

// StringList decodes from a YAML scalar or sequence.
type StringList []string

// UnmarshalYAML accepts "id" as well as [id, region].
func (l *StringList) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*l = StringList{n.Value}
		return nil
	}
	var list []string
	if err := n.Decode(&list); err != nil {
		return err
	}
	*l = list
	return nil
}

// LoadCatalog reads a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	for i, s := range c.Scopes {
		if s.ID == "" {
			return nil, fmt.Errorf("catalog scope %d has no id", i)
		}
		for _, t := range s.Tables {
			if t.Name == "" {
				return nil, fmt.Errorf("catalog scope %s has a table without a name", s.ID)
			}
		}
	}
	return &c, nil
}

// Documents returns the retrievable documents of the scope.
func (s CatalogScope) Documents() (tables, columns, evidence []domain.RetrievedDocument) {
	for _, t := range s.Tables {
		meta := map[string]any{
			domain.MetaName:        t.Name,
			domain.MetaDescription: t.Description,
		}
		if len(t.PrimaryKey) > 0 {
			meta[domain.MetaPrimaryKey] = strings.Join(t.PrimaryKey, ",")
		}
		if len(t.ForeignKeys) > 0 {
			meta[domain.MetaForeignKey] = strings.Join(t.ForeignKeys, ";")
		}
		tables = append(tables, domain.RetrievedDocument{
			ID:       "table:" + t.Name,
			Text:     strings.TrimSpace(t.Name + " " + t.Description),
			Metadata: meta,
		})
		for _, c := range t.Columns {
			cm := map[string]any{
				domain.MetaName:        c.Name,
				domain.MetaTableName:   t.Name,
				domain.MetaDescription: c.Description,
				domain.MetaType:        c.Type,
			}
			if len(c.Samples) > 0 {
				cm[domain.MetaSamples] = c.Samples
			}
			columns = append(columns, domain.RetrievedDocument{
				ID:       "column:" + t.Name + "." + c.Name,
				Text:     strings.TrimSpace(c.Name + " " + c.Description),
				Metadata: cm,
			})
		}
	}
	for i, e := range s.Evidence {
		evidence = append(evidence, domain.RetrievedDocument{
			ID:       fmt.Sprintf("evidence:%d", i),
			Text:     e,
			Metadata: map[string]any{domain.MetaDescription: e},
		})
	}
	return tables, columns, evidence
}
