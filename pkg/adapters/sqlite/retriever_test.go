package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/sqlgraph/pkg/adapters/sqlite"
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/ports"
)

func seed(t *testing.T) *sqlite.Retriever {
	t.Helper()
	r, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	ctx := context.Background()
	require.NoError(t, r.Add(ctx, "shop", domain.DocTable,
		domain.RetrievedDocument{ID: "t1", Text: "orders 订单表 销售额 区域", Metadata: map[string]any{
			domain.MetaName: "orders", domain.MetaForeignKey: "orders.user_id=users.id",
		}},
		domain.RetrievedDocument{ID: "t2", Text: "users 用户表", Metadata: map[string]any{domain.MetaName: "users"}},
	))
	require.NoError(t, r.Add(ctx, "shop", domain.DocColumn,
		domain.RetrievedDocument{ID: "c1", Text: "region 区域", Metadata: map[string]any{domain.MetaName: "region", domain.MetaTableName: "orders"}},
		domain.RetrievedDocument{ID: "c2", Text: "amount 销售额", Metadata: map[string]any{domain.MetaName: "amount", domain.MetaTableName: "orders"}},
		domain.RetrievedDocument{ID: "c3", Text: "name 姓名", Metadata: map[string]any{domain.MetaName: "name", domain.MetaTableName: "users"}},
	))
	require.NoError(t, r.Add(ctx, "other", domain.DocTable,
		domain.RetrievedDocument{ID: "x1", Text: "orders elsewhere", Metadata: map[string]any{domain.MetaName: "orders"}},
	))
	return r
}

func TestRetriever_RanksHanQuery(t *testing.T) {
	r := seed(t)
	docs, err := r.Search(context.Background(), ports.SearchRequest{ScopeID: "shop", Query: "上月华东区销售额", Kind: domain.DocTable, TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.Equal(t, "t1", docs[0].ID)
	assert.Greater(t, docs[0].Score, 0.0)
	assert.Less(t, docs[0].Score, 1.0)
	assert.Equal(t, "orders.user_id=users.id", docs[0].MetaString(domain.MetaForeignKey))
	assert.Equal(t, "table", docs[0].MetaString(domain.MetaKind))
}

func TestRetriever_ColumnsByTable(t *testing.T) {
	r := seed(t)
	docs, err := r.Search(context.Background(), ports.SearchRequest{ScopeID: "shop", Kind: domain.DocColumn, Names: []string{"ORDERS"}})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "c1", docs[0].ID)
	assert.Equal(t, "c2", docs[1].ID)
	assert.Equal(t, 1.0, docs[0].Score)
}

func TestRetriever_RankedWithNameFilter(t *testing.T) {
	r := seed(t)
	docs, err := r.Search(context.Background(), ports.SearchRequest{ScopeID: "shop", Query: "销售额", Kind: domain.DocColumn, Names: []string{"orders", "users"}})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "c2", docs[0].ID)
	assert.Greater(t, docs[0].Score, 0.0)
	assert.Equal(t, "c1", docs[1].ID)
	assert.Equal(t, 0.0, docs[1].Score)
	assert.Equal(t, "c3", docs[2].ID)
}

func TestRetriever_ColumnsOfRecalledTablesKeepUnmatched(t *testing.T) {
	r, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	ctx := context.Background()
	require.NoError(t, r.Add(ctx, "shop", domain.DocColumn,
		domain.RetrievedDocument{ID: "column:orders.region", Text: "region 区域", Metadata: map[string]any{domain.MetaName: "region", domain.MetaTableName: "orders"}},
		domain.RetrievedDocument{ID: "column:orders.amount", Text: "amount 销售额", Metadata: map[string]any{domain.MetaName: "amount", domain.MetaTableName: "orders"}},
		domain.RetrievedDocument{ID: "column:orders.order_date", Text: "order_date 下单日期", Metadata: map[string]any{domain.MetaName: "order_date", domain.MetaTableName: "orders"}},
	))

	docs, err := r.Search(ctx, ports.SearchRequest{ScopeID: "shop", Query: "上月华东区销售额", Kind: domain.DocColumn, Names: []string{"orders"}, TopK: 10})
	require.NoError(t, err)
	var names []string
	for _, d := range docs {
		names = append(names, d.MetaString(domain.MetaName))
	}
	assert.ElementsMatch(t, []string{"region", "amount", "order_date"}, names)
	assert.Equal(t, "amount", names[0])
	assert.Equal(t, 0.0, docs[2].Score)
}

func TestRetriever_ScopeIsolation(t *testing.T) {
	r := seed(t)
	docs, err := r.Search(context.Background(), ports.SearchRequest{ScopeID: "other", Query: "orders", TopK: 10})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "x1", docs[0].ID)
	assert.Equal(t, "table", docs[0].MetaString(domain.MetaKind))
}

func TestRetriever_PunctuationOnlyQuery(t *testing.T) {
	r := seed(t)
	docs, err := r.Search(context.Background(), ports.SearchRequest{ScopeID: "shop", Query: "？？", Kind: domain.DocTable})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestRetriever_Reset(t *testing.T) {
	r := seed(t)
	ctx := context.Background()
	require.NoError(t, r.Reset(ctx, "shop"))

	docs, err := r.Search(ctx, ports.SearchRequest{ScopeID: "shop", Query: "orders", TopK: 10})
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = r.Search(ctx, ports.SearchRequest{ScopeID: "other", Query: "orders", TopK: 10})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}
