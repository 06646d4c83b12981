package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/sqlgraph/pkg/adapters/memory"
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/ports"
	"github.com/aretw0/sqlgraph/pkg/session"
)

// slowStore simulates latency to provoke race conditions if locking is missing.
type slowStore struct {
	ports.CheckpointStore
	mu       sync.Mutex
	inflight int
	overlap  bool
}

func (s *slowStore) enter() {
	s.mu.Lock()
	s.inflight++
	if s.inflight > 1 {
		s.overlap = true
	}
	s.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
}

func (s *slowStore) Save(ctx context.Context, id string, cp *domain.Checkpoint) error {
	s.enter()
	return s.CheckpointStore.Save(ctx, id, cp)
}

func (s *slowStore) Load(ctx context.Context, id string) (*domain.Checkpoint, error) {
	s.enter()
	return s.CheckpointStore.Load(ctx, id)
}

func TestManager_SerializesSameSession(t *testing.T) {
	store := &slowStore{CheckpointStore: memory.NewStore()}
	manager := session.NewManager(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, manager.Save(ctx, &domain.Checkpoint{SessionID: "race", NodeID: "human_feedback"}))
		}()
	}
	wg.Wait()
	assert.False(t, store.overlap, "writes to one session must not overlap")
}

func TestManager_TakeResumesOnce(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()
	require.NoError(t, manager.Save(ctx, &domain.Checkpoint{SessionID: "s1", NodeID: "human_feedback", State: []byte(`{}`)}))

	cp, err := manager.Take(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "human_feedback", cp.NodeID)

	_, err = manager.Take(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_TrackAndCancel(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	untrack, err := manager.Track("s1", cancel)
	require.NoError(t, err)

	_, err = manager.Track("s1", func() {})
	assert.ErrorIs(t, err, session.ErrSessionRunning)
	assert.Equal(t, []string{"s1"}, manager.Running())

	assert.True(t, manager.Cancel("s1"))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	untrack()
	assert.False(t, manager.Cancel("s1"))
	assert.Empty(t, manager.Running())
}

type failingLocker struct{}

func (failingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	return nil, errors.New("lock timeout")
}

func TestManager_DistributedLockFailure(t *testing.T) {
	manager := session.NewManager(memory.NewStore(), session.WithLocker(failingLocker{}))
	err := manager.Save(context.Background(), &domain.Checkpoint{SessionID: "s1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to acquire distributed lock")
}
