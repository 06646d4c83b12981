package schema_test

import (
	"testing"

	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableDoc(name, fk string) domain.RetrievedDocument {
	return domain.RetrievedDocument{
		ID:   "t:" + name,
		Text: name,
		Metadata: map[string]any{
			domain.MetaName:       name,
			domain.MetaPrimaryKey: "id",
			domain.MetaForeignKey: fk,
		},
		Score: 1,
	}
}

func columnDoc(table, name, typ string) domain.RetrievedDocument {
	return domain.RetrievedDocument{
		ID: "c:" + table + "." + name,
		Metadata: map[string]any{
			domain.MetaName:      name,
			domain.MetaTableName: table,
			domain.MetaType:      typ,
			domain.MetaSamples:   `["华东","华北"]`,
		},
	}
}

func TestParseForeignKeys(t *testing.T) {
	rels := schema.ParseForeignKeys("orders.customer_id=customers.id、orders.region_id=regions.id; bad, x.y=z")
	require.Len(t, rels, 2)
	assert.Equal(t, "orders.customer_id=customers.id", rels[0].String())
	assert.Equal(t, "regions", rels[1].ToTable)
	assert.Equal(t, []string{"customers", "orders", "regions"}, schema.ReferencedTables(rels))
}

func TestParseRelation_Malformed(t *testing.T) {
	for _, raw := range []string{"", "a=b", "a.=b.c", ".x=b.c", "a.b"} {
		_, ok := schema.ParseRelation(raw)
		assert.False(t, ok, raw)
	}
}

func TestBuild(t *testing.T) {
	s := schema.Build("shop",
		[]domain.RetrievedDocument{
			tableDoc("orders", "orders.customer_id=customers.id"),
			tableDoc("customers", ""),
			tableDoc("orders", "orders.customer_id=customers.id"),
		},
		[]domain.RetrievedDocument{
			columnDoc("orders", "region", "VARCHAR"),
			columnDoc("orders", "amount", "DECIMAL"),
			columnDoc("orders", "region", "VARCHAR"),
			columnDoc("ghost", "x", "INT"),
		},
	)

	require.Len(t, s.Tables, 2)
	assert.Equal(t, []string{"orders", "customers"}, s.TableNames())
	orders, ok := s.Table("ORDERS")
	require.True(t, ok)
	assert.Len(t, orders.Columns, 2)
	assert.Equal(t, []string{"华东", "华北"}, orders.Columns[0].SampleValues)
	assert.Equal(t, []string{"id"}, orders.PrimaryKeys)
	assert.Equal(t, []string{"orders.customer_id=customers.id"}, s.ForeignKeys)
	assert.True(t, s.Complete())
}

func TestMissingTables(t *testing.T) {
	s := schema.Build("shop", []domain.RetrievedDocument{tableDoc("orders", "orders.customer_id=customers.id")}, nil)
	assert.Equal(t, []string{"customers"}, s.MissingTables())
	assert.False(t, s.Complete())
}

func TestRender(t *testing.T) {
	s := schema.Build("shop",
		[]domain.RetrievedDocument{tableDoc("orders", "")},
		[]domain.RetrievedDocument{columnDoc("orders", "id", "INT")},
	)
	out := schema.Render(s)
	assert.Contains(t, out, "# Table: orders")
	assert.Contains(t, out, "(id:INT, Primary Key, Examples: [华东, 华北])")
}
