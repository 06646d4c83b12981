package sqlgen_test

import (
	"testing"

	"github.com/aretw0/sqlgraph/internal/sqlgen"
	"github.com/stretchr/testify/assert"
)

func TestEvaluate_Clean(t *testing.T) {
	a := sqlgen.Evaluate("SELECT SUM(amount) FROM orders WHERE region = '华东';")
	assert.Equal(t, 1.0, a.Syntax)
	assert.Equal(t, 1.0, a.Security)
	assert.Equal(t, 1.0, a.Performance)
	assert.InDelta(t, 1.0, a.Total, 1e-9)
	assert.Empty(t, a.Issues)
}

func TestEvaluate_Syntax(t *testing.T) {
	a := sqlgen.Evaluate("SELECT (amount FROM orders WHERE name = 'x")
	assert.InDelta(t, 0.6, a.Syntax, 1e-9)
	assert.Contains(t, a.Issues, "unbalanced parentheses")
	assert.Contains(t, a.Issues, "unbalanced single quotes")

	a = sqlgen.Evaluate("orders WHERE x = 1")
	assert.InDelta(t, 0.4, a.Syntax, 1e-9)
}

func TestEvaluate_SecurityIsSoft(t *testing.T) {
	tests := []struct {
		sql   string
		issue string
	}{
		{"DROP TABLE orders", "contains a data-modifying or DDL keyword"},
		{"SELECT a FROM t WHERE b = 1 -- hidden", "contains a SQL comment"},
		{"SELECT a FROM t WHERE b = 1 UNION ALL SELECT password FROM users", "contains UNION SELECT"},
		{"SELECT a FROM t WHERE name = 'x' OR '1'='1'", "contains an always-true OR condition"},
		{"SELECT a FROM t WHERE b = 2 OR 1=1", "contains an always-true OR condition"},
		{"SELECT a FROM t WHERE b = 2 OR kind = KIND", "contains an always-true OR condition"},
		{"SELECT a FROM t WHERE b = 1; SELECT 2", "contains stacked statements"},
		{"SELECT SLEEP(5) FROM t WHERE b = 1", "contains a time-based function"},
	}
	for _, tt := range tests {
		a := sqlgen.Evaluate(tt.sql)
		assert.Less(t, a.Security, 1.0, tt.sql)
		assert.Contains(t, a.Issues, tt.issue, tt.sql)
	}
}

func TestEvaluate_IgnoresKeywordsInsideLiterals(t *testing.T) {
	a := sqlgen.Evaluate("SELECT id FROM audit WHERE action = 'DELETE' AND note = 'a--b'")
	assert.Equal(t, 1.0, a.Security)

	a = sqlgen.Evaluate("SELECT id FROM t WHERE created_at > '2026-01-01' OR updated_by = 3")
	assert.Equal(t, 1.0, a.Security, "identifiers containing keywords and ordinary OR are fine")

	a = sqlgen.Evaluate("SELECT id FROM items WHERE status = 'open' OR type = 'type'")
	assert.Equal(t, 1.0, a.Security, "a column compared with its own name as a literal is a filter")
	assert.NotContains(t, a.Issues, "contains an always-true OR condition")
}

func TestEvaluate_Performance(t *testing.T) {
	a := sqlgen.Evaluate("SELECT * FROM orders")
	assert.InDelta(t, 0.5, a.Performance, 1e-9)
	assert.InDelta(t, 0.4+0.3+0.15, a.Total, 1e-9)
}
