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

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunCheckpointStoreContract(t, store)
}

func TestMemoryStore_CopyOnRead(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Save(ctx, "s", &domain.Checkpoint{SessionID: "s", State: []byte(`{}`)}))

	cp, err := store.Load(ctx, "s")
	require.NoError(t, err)
	cp.State[0] = 'X'

	again, err := store.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(again.State))
}

func TestDatasources_Active(t *testing.T) {
	ds := memory.NewDatasources(
		domain.Datasource{ID: "a", Scope: "agent-1", Active: false},
		domain.Datasource{ID: "b", Scope: "agent-1", Active: true},
	)

	got, err := ds.Active(context.Background(), "agent-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "b", got.ID)

	got, err = ds.Active(context.Background(), "agent-2")
	require.NoError(t, err)
	assert.Nil(t, got)
}
