package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/kittclouds/cortex/internal/storage"
	"github.com/kittclouds/cortex/pkg/belief"
	"github.com/kittclouds/cortex/pkg/cortex"
	"github.com/kittclouds/cortex/pkg/graphmirror"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T, extractor ExtractorFunc) (*storage.Store, *Orchestrator) {
	t.Helper()
	store, err := storage.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	beliefEngine := belief.New(store, true, nil)
	mirror := graphmirror.New(nil, nil)
	cfg := cortex.DefaultConfig()
	orch := New(store, beliefEngine, mirror, nil, extractor, nil, cfg, nil)
	return store, orch
}

func TestRememberAppendsMessagesAndVectors(t *testing.T) {
	ctx := context.Background()
	store, orch := newTestOrchestrator(t, nil)

	result, err := orch.Remember(ctx, RememberRequest{
		MemorySpaceID: "s1",
		UserID:        "alice",
		UserMessage:   "I prefer TypeScript",
		AgentMessage:  "Noted",
		Timestamp:     1000,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.OrchestrationID)
	require.Contains(t, result.CreatedIDs, "conversationId")

	conv, err := store.GetConversation(ctx, result.CreatedIDs["conversationId"])
	require.NoError(t, err)
	require.Equal(t, 2, conv.MessageCount)

	memories, err := store.ListMemories(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, memories, 2)
}

func TestRememberSoftFailsOnExtractorError(t *testing.T) {
	ctx := context.Background()
	failingExtractor := func(ctx context.Context, userMessage, agentMessage string) ([]ExtractedFact, error) {
		return nil, errors.New("extractor unavailable")
	}
	store, orch := newTestOrchestrator(t, failingExtractor)

	result, err := orch.Remember(ctx, RememberRequest{
		MemorySpaceID: "s1",
		UserMessage:   "turn one",
		AgentMessage:  "turn two",
		Timestamp:     1,
	})
	require.NoError(t, err) // remember still completes

	var factsEvent *LayerEvent
	for i := range result.Events {
		if result.Events[i].Layer == "facts" {
			factsEvent = &result.Events[i]
		}
	}
	require.NotNil(t, factsEvent)
	require.Equal(t, StatusError, factsEvent.Status)

	conv, err := store.GetConversation(ctx, result.CreatedIDs["conversationId"])
	require.NoError(t, err)
	require.Equal(t, 2, conv.MessageCount)

	memories, err := store.ListMemories(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, memories, 2)
}

func TestRememberRunsBeliefRevisionFromExtractedFacts(t *testing.T) {
	ctx := context.Background()
	extractor := func(ctx context.Context, userMessage, agentMessage string) ([]ExtractedFact, error) {
		return []ExtractedFact{{
			FactType: cortex.FactPreference, Subject: "Alice", Predicate: "prefers", Object: "TypeScript", Confidence: 85,
		}}, nil
	}
	store, orch := newTestOrchestrator(t, extractor)

	result, err := orch.Remember(ctx, RememberRequest{
		MemorySpaceID: "s1",
		UserMessage:   "I prefer TypeScript",
		AgentMessage:  "Noted",
		Timestamp:     1,
	})
	require.NoError(t, err)
	require.Contains(t, result.CreatedIDs, "factIds")

	facts, err := store.ListFacts(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	require.Equal(t, "TypeScript", facts[0].Object)
}

func TestForgetConversationCascadesMemoriesAndFacts(t *testing.T) {
	ctx := context.Background()
	store, orch := newTestOrchestrator(t, nil)

	_, _, err := store.RegisterSpace(ctx, cortex.MemorySpace{MemorySpaceID: "s1", Name: "space"})
	require.NoError(t, err)
	conv, err := store.CreateConversation(ctx, "s1", cortex.ConvUserAgent, nil, 1)
	require.NoError(t, err)
	_, err = store.AddMessage(ctx, conv.ConversationID, "user", "hello", 1)
	require.NoError(t, err)

	_, err = store.StoreMemory(ctx, cortex.Memory{
		MemorySpaceID: "s1", Content: "hello", ContentType: cortex.ContentRaw,
		ConversationRef: &cortex.ConversationRef{ConversationID: conv.ConversationID}, CreatedAt: 1,
	})
	require.NoError(t, err)
	_, err = store.InsertFact(ctx, cortex.Fact{
		MemorySpaceID: "s1", Fact: "hello fact", FactType: cortex.FactKnowledge, Subject: "a", Predicate: "b", Object: "c",
		Status: cortex.FactActive, SourceRef: &cortex.FactSourceRef{ConversationID: conv.ConversationID}, CreatedAt: 1,
	})
	require.NoError(t, err)

	summary, err := orch.Forget(ctx, "s1", conv.ConversationID, ForgetOptions{Target: TargetConversation, DeleteFacts: true})
	require.NoError(t, err)
	require.Equal(t, 1, summary.DeletedConversations)
	require.Equal(t, 1, summary.DeletedMemories)
	require.Equal(t, 1, summary.DeletedFacts)

	_, err = store.GetConversation(ctx, conv.ConversationID)
	require.Error(t, err)
}
