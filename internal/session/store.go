package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/abhisek/twinly/internal/store"
)

// StateStore loads and saves per-identity state.
type StateStore interface {
	// Load returns the state for id, or ErrUnknownIdentity.
	Load(ctx context.Context, id string) (*State, error)

	// Save replaces the state for id if it is still at s.Version, then
	// advances s.Version. It returns ErrStateConflict otherwise.
	Save(ctx context.Context, id string, s *State) error
}

// KVStateStore keeps one JSON blob per identity in a store.KV.
type KVStateStore struct {
	kv     store.KV
	prefix string
}

var _ StateStore = (*KVStateStore)(nil)

// NewKVStateStore stores each identity under prefix+id.
func NewKVStateStore(kv store.KV, prefix string) *KVStateStore {
	return &KVStateStore{kv: kv, prefix: prefix}
}

func (s *KVStateStore) Load(ctx context.Context, id string) (*State, error) {
	raw, version, ok, err := s.kv.GetVersioned(ctx, s.prefix+id)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if !ok {
		return nil, ErrUnknownIdentity
	}

	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if st.Stats.History == nil {
		st.Stats.History = []bool{}
	}
	st.Version = version
	return &st, nil
}

func (s *KVStateStore) Save(ctx context.Context, id string, st *State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	version, err := s.kv.PutVersioned(ctx, s.prefix+id, string(raw), st.Version)
	if errors.Is(err, store.ErrVersionConflict) {
		return fmt.Errorf("save state: %w", ErrStateConflict)
	}
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	st.Version = version
	return nil
}
