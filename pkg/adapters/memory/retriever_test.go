package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/sqlgraph/pkg/adapters/memory"
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed() *memory.Retriever {
	r := memory.NewRetriever()
	r.Add("shop", domain.DocTable,
		domain.RetrievedDocument{ID: "t1", Text: "orders 订单 销售额", Metadata: map[string]any{domain.MetaName: "orders"}},
		domain.RetrievedDocument{ID: "t2", Text: "users 用户", Metadata: map[string]any{domain.MetaName: "users"}},
	)
	r.Add("shop", domain.DocColumn,
		domain.RetrievedDocument{ID: "c1", Text: "region 区域", Metadata: map[string]any{domain.MetaName: "region", domain.MetaTableName: "orders"}},
		domain.RetrievedDocument{ID: "c2", Text: "name", Metadata: map[string]any{domain.MetaName: "name", domain.MetaTableName: "users"}},
	)
	return r
}

func TestRetriever_RanksByOverlap(t *testing.T) {
	docs, err := seed().Search(context.Background(), ports.SearchRequest{ScopeID: "shop", Query: "华东区销售额", Kind: domain.DocTable, TopK: 10})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "t1", docs[0].ID)
	assert.Greater(t, docs[0].Score, docs[1].Score)
}

func TestRetriever_NameFilter(t *testing.T) {
	docs, err := seed().Search(context.Background(), ports.SearchRequest{ScopeID: "shop", Kind: domain.DocColumn, Names: []string{"ORDERS"}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "c1", docs[0].ID)
	assert.Equal(t, 1.0, docs[0].Score)
}

func TestRetriever_ScopeIsolation(t *testing.T) {
	docs, err := seed().Search(context.Background(), ports.SearchRequest{ScopeID: "other", Query: "orders"})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestTokenize(t *testing.T) {
	toks := memory.Tokenize("SUM(amount) 销售额")
	for _, want := range []string{"sum", "amount", "销", "销售", "售额"} {
		assert.Contains(t, toks, want)
	}
}
