package session

import (
	"context"
	"errors"
	"testing"

	"github.com/abhisek/twinly/internal/questiongen"
	"github.com/abhisek/twinly/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVStateStore_RoundTrip(t *testing.T) {
	kv := store.NewMemoryKV()
	s := NewKVStateStore(kv, "twin:")
	ctx := context.Background()

	_, err := s.Load(ctx, testID)
	assert.ErrorIs(t, err, ErrUnknownIdentity)

	st := NewState("Robin Vale")
	st.Coverage.Increment("Financial Outlook")
	st.Pending = &questiongen.Question{Text: "Save?", Answers: []string{"Yes", "No"}, PersonaIndex: 1, Category: "Financial Outlook"}
	require.NoError(t, s.Save(ctx, testID, st))

	got, err := s.Load(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, st, got)

	_, ok, err := kv.Get(ctx, "twin:"+testID)
	require.NoError(t, err)
	assert.True(t, ok, "state is stored under the prefixed key")
}

func TestKVStateStore_ReadsOriginalLayout(t *testing.T) {
	kv := store.NewMemoryKV()
	ctx := context.Background()
	blob := `{"name":"Robin Vale","persona":"Calm.","guidance":"","coverage":{"Culture & Arts":2},
		"stats":{"asked":3,"correct":1,"history":[true,false,false]},
		"pending":{"question":"Jazz or rock?","answers":["Jazz","Rock"],"personaIndex":0,"category":"Culture & Arts"},
		"lastUsed":"2026-01-02T03:04:05.000Z"}`
	require.NoError(t, kv.Put(ctx, testID, blob))

	st, err := NewKVStateStore(kv, "").Load(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, "Robin Vale", st.Name)
	assert.Equal(t, 2, st.Coverage["Culture & Arts"])
	assert.Equal(t, []bool{true, false, false}, st.Stats.History)
	require.NotNil(t, st.Pending)
	assert.Equal(t, "Jazz or rock?", st.Pending.Text)
	assert.Equal(t, 2026, st.LastUsed.Year())
}

func TestKVStateStore_NullPendingAndHistory(t *testing.T) {
	kv := store.NewMemoryKV()
	ctx := context.Background()
	require.NoError(t, kv.Put(ctx, testID, `{"name":"A","persona":".","pending":null,"stats":{"asked":0,"correct":0}}`))

	st, err := NewKVStateStore(kv, "").Load(ctx, testID)
	require.NoError(t, err)
	assert.Nil(t, st.Pending)
	assert.NotNil(t, st.Stats.History)
}

func TestKVStateStore_CorruptBlob(t *testing.T) {
	kv := store.NewMemoryKV()
	ctx := context.Background()
	require.NoError(t, kv.Put(ctx, testID, "{not json"))

	_, err := NewKVStateStore(kv, "").Load(ctx, testID)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnknownIdentity))
}

func TestKVStateStore_StaleSaveConflicts(t *testing.T) {
	s := NewKVStateStore(store.NewMemoryKV(), "twin:")
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, testID, NewState("Robin Vale")))

	first, err := s.Load(ctx, testID)
	require.NoError(t, err)
	second, err := s.Load(ctx, testID)
	require.NoError(t, err)

	first.Stats.Asked = 1
	require.NoError(t, s.Save(ctx, testID, first))

	second.Stats.Asked = 7
	err = s.Save(ctx, testID, second)
	require.ErrorIs(t, err, ErrStateConflict)

	got, err := s.Load(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stats.Asked, "the stale write stored nothing")
	assert.Equal(t, first.Version, got.Version)

	// Creating over an existing identity is a conflict too.
	assert.ErrorIs(t, s.Save(ctx, testID, NewState("Ash Marlow")), ErrStateConflict)
}
