package storage

import (
	"context"
	"testing"

	"github.com/kittclouds/cortex/pkg/cortex"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConversationAppendOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, _, err := s.RegisterSpace(ctx, cortex.MemorySpace{MemorySpaceID: "s1", Name: "space"})
	require.NoError(t, err)

	conv, err := s.CreateConversation(ctx, "s1", cortex.ConvUserAgent, nil, 1000)
	require.NoError(t, err)

	_, err = s.AddMessage(ctx, conv.ConversationID, "user", "I prefer TypeScript", 1001)
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, conv.ConversationID, "agent", "Noted", 1002)
	require.NoError(t, err)

	got, err := s.GetConversation(ctx, conv.ConversationID)
	require.NoError(t, err)
	require.Equal(t, 2, got.MessageCount)
	require.Len(t, got.Messages, got.MessageCount)
	require.Equal(t, "user", got.Messages[0].Role)
	require.Equal(t, "agent", got.Messages[1].Role)
}

func TestMemoryVersioningCap(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, _, err := s.RegisterSpace(ctx, cortex.MemorySpace{MemorySpaceID: "s1", Name: "space"})
	require.NoError(t, err)

	mem, err := s.StoreMemory(ctx, cortex.Memory{MemorySpaceID: "s1", Content: "v1", ContentType: cortex.ContentRaw, Importance: 1, CreatedAt: 1})
	require.NoError(t, err)
	require.Equal(t, 1, mem.Version)

	for i := 0; i < 3; i++ {
		mem, err = s.UpdateMemory(ctx, "s1", mem.MemoryID, cortex.Memory{Content: "vN"}, int64(2+i), 2)
		require.NoError(t, err)
	}
	require.Equal(t, 4, mem.Version)

	var archived int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE memory_space_id = ? AND memory_id = ? AND is_current = 0`,
		"s1", mem.MemoryID).Scan(&archived))
	require.Equal(t, 2, archived)

	got, err := s.GetMemory(ctx, "s1", mem.MemoryID)
	require.NoError(t, err)
	require.Equal(t, "vN", got.Content)
}

func TestVectorSelfRecall(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, _, err := s.RegisterSpace(ctx, cortex.MemorySpace{MemorySpaceID: "s1", Name: "space"})
	require.NoError(t, err)

	embedding := make([]float32, 8)
	embedding[0] = 0.1
	embedding[1] = 0.2

	mem, err := s.StoreMemory(ctx, cortex.Memory{
		MemorySpaceID: "s1", Content: "I prefer TypeScript", ContentType: cortex.ContentRaw,
		Embedding: embedding, Importance: 5, CreatedAt: 1,
	})
	require.NoError(t, err)

	hits, err := s.SearchVectors(ctx, "s1", embedding, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Equal(t, mem.MemoryID, hits[0].MemoryID)
	require.GreaterOrEqual(t, hits[0].Score, 0.99)
}

func TestFactSupersedeChain(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, _, err := s.RegisterSpace(ctx, cortex.MemorySpace{MemorySpaceID: "s1", Name: "space"})
	require.NoError(t, err)

	f1, err := s.InsertFact(ctx, cortex.Fact{
		MemorySpaceID: "s1", Fact: "Alice prefers TypeScript", FactType: cortex.FactPreference,
		Subject: "Alice", Predicate: "prefers", Object: "TypeScript", Confidence: 85,
		Status: cortex.FactActive, CreatedAt: 1,
	})
	require.NoError(t, err)

	f2, err := s.InsertFact(ctx, cortex.Fact{
		MemorySpaceID: "s1", Fact: "Alice prefers Python", FactType: cortex.FactPreference,
		Subject: "Alice", Predicate: "prefers", Object: "Python", Confidence: 90,
		Status: cortex.FactActive, CreatedAt: 2,
	})
	require.NoError(t, err)

	require.NoError(t, s.SupersedeFact(ctx, "s1", f1.FactID, f2.FactID))

	active, err := s.QueryFacts(ctx, "s1", FactQuery{Subject: "Alice", Predicate: "prefers"})
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "Python", active[0].Object)

	old, err := s.QueryFacts(ctx, "s1", FactQuery{Subject: "Alice", Predicate: "prefers", Status: cortex.FactSuperseded})
	require.NoError(t, err)
	require.Len(t, old, 1)
	require.Equal(t, f2.FactID, old[0].SupersededBy)
}

func TestContextChainAndDepth(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, _, err := s.RegisterSpace(ctx, cortex.MemorySpace{MemorySpaceID: "s1", Name: "space"})
	require.NoError(t, err)

	root, err := s.CreateContext(ctx, cortex.Context{MemorySpaceID: "s1", Purpose: "project"}, 1, 16)
	require.NoError(t, err)
	require.Equal(t, 0, root.Depth)

	a, err := s.CreateContext(ctx, cortex.Context{MemorySpaceID: "s1", Purpose: "subtask", ParentID: root.ContextID}, 2, 16)
	require.NoError(t, err)
	require.Equal(t, 1, a.Depth)

	b, err := s.CreateContext(ctx, cortex.Context{MemorySpaceID: "s1", Purpose: "leaf", ParentID: a.ContextID}, 3, 16)
	require.NoError(t, err)
	require.Equal(t, 2, b.Depth)

	chain, err := s.GetChain(ctx, "s1", b.ContextID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	require.Equal(t, []int{0, 1, 2}, []int{chain[0].Depth, chain[1].Depth, chain[2].Depth})

	require.NoError(t, s.DeleteContext(ctx, "s1", root.ContextID))
	_, err = s.GetContext(ctx, "s1", b.ContextID)
	require.Error(t, err)
}

func TestMemorySpaceIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, _, err := s.RegisterSpace(ctx, cortex.MemorySpace{MemorySpaceID: "s1", Name: "space one"})
	require.NoError(t, err)
	_, _, err = s.RegisterSpace(ctx, cortex.MemorySpace{MemorySpaceID: "s2", Name: "space two"})
	require.NoError(t, err)

	_, err = s.StoreMemory(ctx, cortex.Memory{MemorySpaceID: "s1", Content: "only in s1", ContentType: cortex.ContentRaw, CreatedAt: 1})
	require.NoError(t, err)

	listS2, err := s.ListMemories(ctx, "s2", 10)
	require.NoError(t, err)
	require.Empty(t, listS2)
}
