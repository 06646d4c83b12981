package postgres_test

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/sqlgraph/pkg/adapters/postgres"
	"github.com/aretw0/sqlgraph/pkg/adapters/sqldb"
	"github.com/aretw0/sqlgraph/pkg/domain"
)

func TestFormatValue(t *testing.T) {
	id := [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"华东", "华东"},
		{int64(42), "42"},
		{1.5, "1.5"},
		{true, "true"},
		{id, "12345678-9abc-def0-1234-56789abcdef0"},
		{[]byte{0xde, 0xad}, `\xdead`},
		{time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), "2024-05-01"},
		{time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC), "2024-05-01T08:30:00Z"},
		{pgtype.Numeric{Int: big.NewInt(128000000), Exp: -2, Valid: true}, "1280000.00"},
		{pgtype.Numeric{}, ""},
		{pgtype.Interval{Days: 3, Valid: true}, "3 day 00:00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, postgres.FormatValue(tt.in))
	}
}

func TestAccessor_RejectsWritesBeforeConnecting(t *testing.T) {
	a := postgres.New()
	defer a.Close()
	_, err := a.Query(context.Background(), domain.Datasource{ID: "pg", DSN: "postgres://invalid"}, "DROP TABLE orders")
	assert.ErrorIs(t, err, sqldb.ErrNotReadOnly)
}

func TestAccessor_InvalidDSN(t *testing.T) {
	a := postgres.New()
	defer a.Close()
	_, err := a.Query(context.Background(), domain.Datasource{ID: "pg", DSN: "::not a dsn::"}, "SELECT 1")
	assert.ErrorContains(t, err, "invalid postgres dsn")
}

// Runs against a live server when SQLGRAPH_TEST_POSTGRES_DSN is set.
func TestAccessor_Live(t *testing.T) {
	dsn := os.Getenv("SQLGRAPH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SQLGRAPH_TEST_POSTGRES_DSN not set")
	}
	a := postgres.New()
	defer a.Close()

	res, err := a.Query(context.Background(), domain.Datasource{ID: "live", DSN: dsn}, "SELECT 1 AS one, 'x' AS s;")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "s"}, res.Columns)
	assert.Equal(t, [][]string{{"1", "x"}}, res.Rows)
}
