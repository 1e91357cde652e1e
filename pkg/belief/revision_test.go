package belief

import (
	"context"
	"testing"

	"github.com/kittclouds/cortex/internal/storage"
	"github.com/kittclouds/cortex/pkg/cortex"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestReviseAddsFirstFact(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, _, err := store.RegisterSpace(ctx, cortex.MemorySpace{MemorySpaceID: "s1", Name: "space"})
	require.NoError(t, err)

	engine := New(store, true, nil)
	decision, err := engine.Revise(ctx, cortex.Fact{
		MemorySpaceID: "s1", Fact: "Alice prefers TypeScript", FactType: cortex.FactPreference,
		Subject: "Alice", Predicate: "prefers", Object: "TypeScript", Confidence: 85, CreatedAt: 1,
	})
	require.NoError(t, err)
	require.Equal(t, ActionAdd, decision.Action)
	require.Equal(t, cortex.FactActive, decision.Fact.Status)
}

func TestReviseSupersedesOnConflictingObject(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, _, err := store.RegisterSpace(ctx, cortex.MemorySpace{MemorySpaceID: "s1", Name: "space"})
	require.NoError(t, err)

	engine := New(store, true, nil)
	first, err := engine.Revise(ctx, cortex.Fact{
		MemorySpaceID: "s1", Fact: "Alice prefers TypeScript", FactType: cortex.FactPreference,
		Subject: "Alice", Predicate: "prefers", Object: "TypeScript", Confidence: 85, CreatedAt: 1,
	})
	require.NoError(t, err)
	require.Equal(t, ActionAdd, first.Action)

	second, err := engine.Revise(ctx, cortex.Fact{
		MemorySpaceID: "s1", Fact: "Alice prefers Python", FactType: cortex.FactPreference,
		Subject: "Alice", Predicate: "prefers", Object: "Python", Confidence: 90, CreatedAt: 2,
	})
	require.NoError(t, err)
	require.Equal(t, ActionSupersede, second.Action)
	require.Contains(t, second.SupersededFactID, first.Fact.FactID)

	active, err := store.QueryFacts(ctx, "s1", storage.FactQuery{Subject: "Alice", Predicate: "prefers"})
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "Python", active[0].Object)

	superseded, err := store.QueryFacts(ctx, "s1", storage.FactQuery{Subject: "Alice", Predicate: "prefers", Status: cortex.FactSuperseded})
	require.NoError(t, err)
	require.Len(t, superseded, 1)
	require.Equal(t, second.Fact.FactID, superseded[0].SupersededBy)
}

func TestReviseDuplicateIsAbsorbing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, _, err := store.RegisterSpace(ctx, cortex.MemorySpace{MemorySpaceID: "s1", Name: "space"})
	require.NoError(t, err)

	engine := New(store, true, nil)
	candidate := cortex.Fact{
		MemorySpaceID: "s1", Fact: "Alice works at Acme", FactType: cortex.FactRelationship,
		Subject: "Alice", Predicate: "works_at", Object: "Acme", Confidence: 80, SourceType: "extractor", CreatedAt: 1,
	}
	first, err := engine.Revise(ctx, candidate)
	require.NoError(t, err)
	require.Equal(t, ActionAdd, first.Action)

	second, err := engine.Revise(ctx, candidate)
	require.NoError(t, err)
	require.Equal(t, ActionNone, second.Action)
}

func TestClassifyFallsBackOnInvalidResolution(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, _, err := store.RegisterSpace(ctx, cortex.MemorySpace{MemorySpaceID: "s1", Name: "space"})
	require.NoError(t, err)

	badResolver := func(ctx context.Context, candidate cortex.Fact, matches []cortex.Fact) (Resolution, error) {
		return Resolution{Action: "NOT_A_REAL_ACTION"}, nil
	}
	engine := New(store, true, badResolver)
	decision, err := engine.Revise(ctx, cortex.Fact{
		MemorySpaceID: "s1", Fact: "Alice prefers TypeScript", FactType: cortex.FactPreference,
		Subject: "Alice", Predicate: "prefers", Object: "TypeScript", Confidence: 85, CreatedAt: 1,
	})
	require.NoError(t, err)
	require.Equal(t, ActionAdd, decision.Action) // rule-based fallback, since no matches existed
}
