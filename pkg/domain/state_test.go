package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *domain.Registry {
	t.Helper()
	reg, err := domain.NewRegistry(
		domain.Declare[string]("query", domain.Replace).Require(),
		domain.Declare[int]("counter", domain.Replace),
		domain.Declare[string]("report", domain.Append),
		domain.Declare[[]string]("notes", domain.Append),
		domain.Declare[domain.Plan]("plan", domain.Replace),
	)
	require.NoError(t, err)
	return reg
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	_, err := domain.NewRegistry(
		domain.Declare[string]("k", domain.Replace),
		domain.Declare[int]("k", domain.Replace),
	)
	assert.Error(t, err)

	_, err = domain.NewRegistry(domain.KeySpec{Name: "raw"})
	assert.Error(t, err, "specs must come from Declare")
}

func TestState_MergeStrategies(t *testing.T) {
	st := testRegistry(t).NewState()

	require.NoError(t, st.Set("counter", 1))
	require.NoError(t, st.Set("counter", 2))
	assert.Equal(t, 2, domain.ValueOr[int](st, "counter"))

	require.NoError(t, st.Set("report", "Hello"))
	require.NoError(t, st.Set("report", ", world"))
	assert.Equal(t, "Hello, world", domain.ValueOr[string](st, "report"))

	require.NoError(t, st.Set("notes", []string{"a"}))
	require.NoError(t, st.Set("notes", "b"))
	require.NoError(t, st.Set("notes", []string{"c", "d"}))
	assert.Equal(t, []string{"a", "b", "c", "d"}, domain.ValueOr[[]string](st, "notes"))

	assert.Error(t, st.Set("notes", 42), "incompatible append")
}

func TestState_UndeclaredKey(t *testing.T) {
	st := testRegistry(t).NewState()
	err := st.Set("nope", "x")
	assert.ErrorIs(t, err, domain.ErrUndeclaredKey)

	err = st.Apply(domain.Update{"counter": 1, "nope": true})
	assert.ErrorIs(t, err, domain.ErrUndeclaredKey)
}

func TestState_RequiredAndDefaults(t *testing.T) {
	st := testRegistry(t).NewState()

	_, err := domain.Require[string](st, "query")
	assert.ErrorIs(t, err, domain.ErrMissingRequiredKey)

	assert.Equal(t, 0, domain.ValueOr[int](st, "counter"))
	assert.Nil(t, domain.ValueOr[[]string](st, "notes"))
	assert.Equal(t, "fallback", st.GetOrDefault("report", "fallback"))

	require.NoError(t, st.Set("query", "q"))
	q, err := domain.Require[string](st, "query")
	require.NoError(t, err)
	assert.Equal(t, "q", q)
}

func TestState_NilClears(t *testing.T) {
	st := testRegistry(t).NewState()
	require.NoError(t, st.Set("counter", 3))
	require.NoError(t, st.Apply(domain.Update{"counter": nil}))
	assert.False(t, st.Has("counter"))
}

func TestState_CloneIsolation(t *testing.T) {
	st := testRegistry(t).NewState()
	require.NoError(t, st.Set("counter", 1))

	c := st.Clone()
	require.NoError(t, c.Set("counter", 5))
	assert.Equal(t, 1, domain.ValueOr[int](st, "counter"))
}

func TestState_JSONRoundTripRestoresTypes(t *testing.T) {
	reg := testRegistry(t)
	st := reg.NewState()
	plan := domain.Plan{
		ThoughtProcess: "sum sales",
		ExecutionPlan: []domain.ExecutionStep{
			{StepNumber: 1, Tool: domain.ToolSQL, Parameters: domain.StepParameters{Instruction: "sum", SQLQuery: "SELECT 1;"}},
		},
	}
	require.NoError(t, st.Apply(domain.Update{
		"query":   "q",
		"counter": 7,
		"notes":   []string{"x"},
		"plan":    plan,
	}))

	data, err := json.Marshal(st)
	require.NoError(t, err)

	restored, err := reg.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 7, domain.ValueOr[int](restored, "counter"))
	assert.Equal(t, plan, domain.ValueOr[domain.Plan](restored, "plan"))
	assert.Nil(t, domain.Diff(st, restored))
}

func TestRegistry_DecodeRejectsUnknownKeys(t *testing.T) {
	_, err := testRegistry(t).Decode([]byte(`{"ghost": 1}`))
	assert.ErrorIs(t, err, domain.ErrUndeclaredKey)
}
