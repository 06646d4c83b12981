package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/sqlgraph/pkg/domain"
)

const catalogYAML = `
scopes:
  - id: sales
    tables:
      - name: orders
        description: customer orders
        primary_key: id
        foreign_keys: [orders.customer_id=customers.id]
        columns:
          - {name: amount, type: DECIMAL, description: order total}
          - {name: region, type: TEXT, samples: [north, south]}
      - name: customers
        primary_key: [id, region]
    evidence:
      - revenue means the sum of orders.amount
`

func TestCatalog_Documents(t *testing.T) {
	c, err := LoadCatalog(writeFile(t, "catalog.yaml", catalogYAML))
	require.NoError(t, err)
	require.Len(t, c.Scopes, 1)
	assert.Equal(t, StringList{"id", "region"}, c.Scopes[0].Tables[1].PrimaryKey)

	tables, columns, evidence := c.Scopes[0].Documents()
	require.Len(t, tables, 2)
	assert.Equal(t, "orders", tables[0].MetaString(domain.MetaName))
	assert.Equal(t, "id", tables[0].MetaString(domain.MetaPrimaryKey))
	assert.Equal(t, "orders.customer_id=customers.id", tables[0].MetaString(domain.MetaForeignKey))
	assert.Equal(t, "id,region", tables[1].MetaString(domain.MetaPrimaryKey))

	require.Len(t, columns, 2)
	assert.Equal(t, "column:orders.amount", columns[0].ID)
	assert.Equal(t, "orders", columns[0].MetaString(domain.MetaTableName))
	assert.Equal(t, "DECIMAL", columns[0].MetaString(domain.MetaType))
	assert.Equal(t, []string{"north", "south"}, columns[1].MetaStrings(domain.MetaSamples))

	require.Len(t, evidence, 1)
	assert.Contains(t, evidence[0].Text, "revenue")
}

func TestCatalog_Invalid(t *testing.T) {
	_, err := LoadCatalog(writeFile(t, "c.yaml", "scopes:\n  - tables: []\n"))
	assert.ErrorContains(t, err, "has no id")

	_, err = LoadCatalog(writeFile(t, "c.yaml", "scopes:\n  - id: s\n    tables:\n      - description: x\n"))
	assert.ErrorContains(t, err, "without a name")
}
