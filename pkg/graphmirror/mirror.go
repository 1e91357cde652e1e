package graphmirror

import (
	"context"
	"fmt"

	"github.com/kittclouds/cortex/internal/storage"
	"github.com/kittclouds/cortex/pkg/cortex"
	"github.com/kittclouds/cortex/pkg/lexical"
	"go.uber.org/zap"
)

// Mirror keeps an Adapter-backed property graph in sync with the
// canonical layers. Every write has a deterministic inverse so the graph
// is always rebuildable from scratch (§4.8, §9).
type Mirror struct {
	adapter Adapter
	log     *zap.SugaredLogger
}

// New builds a Mirror over the given adapter. adapter may be nil, in
// which case every operation is a no-op — the caller's job is to check
// config.GraphMirror before constructing one, not this package's.
func New(adapter Adapter, log *zap.SugaredLogger) *Mirror {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Mirror{adapter: adapter, log: log}
}

func (m *Mirror) enabled() bool { return m.adapter != nil }

// MirrorSpace projects a MemorySpace to a node.
func (m *Mirror) MirrorSpace(ctx context.Context, sp cortex.MemorySpace) error {
	if !m.enabled() {
		return nil
	}
	return m.adapter.CreateNode(ctx, Node{ID: sp.MemorySpaceID, Label: "MemorySpace", Properties: map[string]string{
		"name": sp.Name, "type": string(sp.Type),
	}})
}

// MirrorConversation projects a Conversation and its CONTAINS edge from
// the owning space.
func (m *Mirror) MirrorConversation(ctx context.Context, conv cortex.Conversation) error {
	if !m.enabled() {
		return nil
	}
	if err := m.adapter.CreateNode(ctx, Node{ID: conv.ConversationID, Label: "Conversation",
		Properties: map[string]string{"type": string(conv.Type)}}); err != nil {
		return err
	}
	return m.adapter.CreateEdge(ctx, Edge{
		ID: "contains:" + conv.MemorySpaceID + ":" + conv.ConversationID,
		SourceID: conv.MemorySpaceID, TargetID: conv.ConversationID, Type: "CONTAINS",
	})
}

// MirrorMemory projects a Memory node, its CONTAINS edge from the space,
// and (if present) a REFERENCES edge to its source conversation.
func (m *Mirror) MirrorMemory(ctx context.Context, mem cortex.Memory) error {
	if !m.enabled() {
		return nil
	}
	if err := m.adapter.CreateNode(ctx, Node{ID: mem.MemoryID, Label: "Memory",
		Properties: map[string]string{"contentType": string(mem.ContentType)}}); err != nil {
		return err
	}
	if err := m.adapter.CreateEdge(ctx, Edge{
		ID: "contains:" + mem.MemorySpaceID + ":" + mem.MemoryID,
		SourceID: mem.MemorySpaceID, TargetID: mem.MemoryID, Type: "CONTAINS",
	}); err != nil {
		return err
	}
	if mem.ConversationRef != nil && mem.ConversationRef.ConversationID != "" {
		if err := m.adapter.CreateEdge(ctx, Edge{
			ID: "references:" + mem.MemoryID + ":" + mem.ConversationRef.ConversationID,
			SourceID: mem.MemoryID, TargetID: mem.ConversationRef.ConversationID, Type: "REFERENCES",
		}); err != nil {
			return err
		}
	}
	// A2A denormalised edge (§4.8, §13 OQ2): only created when both ends
	// are present in metadata — never inferred.
	if mem.Source.Type == "a2a" && mem.Source.FromMemorySpace != "" && mem.Source.ToMemorySpace != "" {
		if err := m.adapter.CreateEdge(ctx, Edge{
			ID:       "sentto:" + mem.MemoryID + ":" + mem.Source.ToMemorySpace,
			SourceID: mem.Source.FromMemorySpace, TargetID: mem.Source.ToMemorySpace, Type: "SENT_TO",
			Properties: map[string]string{"memoryId": mem.MemoryID},
		}); err != nil {
			return err
		}
	}
	return nil
}

// MirrorFact projects a Fact node, its EXTRACTED_FROM edge, SUPERSEDES
// edges, and MENTIONS edges to entities. Entity mentions come from the
// fact's subject/object terms first; dict, if supplied, additionally
// scans the fact text with simple name matching as a fallback — no
// deeper NLP is attempted (§9, §13 OQ1).
func (m *Mirror) MirrorFact(ctx context.Context, memorySpaceID string, f cortex.Fact, dict *lexical.Dictionary) error {
	if !m.enabled() {
		return nil
	}
	if err := m.adapter.CreateNode(ctx, Node{ID: f.FactID, Label: "Fact",
		Properties: map[string]string{"factType": string(f.FactType), "status": string(f.Status)}}); err != nil {
		return err
	}
	if f.SourceRef != nil && f.SourceRef.ConversationID != "" {
		if err := m.adapter.CreateEdge(ctx, Edge{
			ID: "extracted:" + f.FactID + ":" + f.SourceRef.ConversationID,
			SourceID: f.FactID, TargetID: f.SourceRef.ConversationID, Type: "EXTRACTED_FROM",
		}); err != nil {
			return err
		}
	}
	for _, old := range f.Supersedes {
		if err := m.adapter.CreateEdge(ctx, Edge{
			ID: "supersedes:" + f.FactID + ":" + old,
			SourceID: f.FactID, TargetID: old, Type: "SUPERSEDES",
		}); err != nil {
			return err
		}
	}

	entityIDs := mentionedEntities(f, dict)
	for _, entityID := range entityIDs {
		if err := m.adapter.CreateNode(ctx, Node{ID: "entity:" + entityID, Label: "Entity",
			Properties: map[string]string{"name": entityID}}); err != nil {
			return err
		}
		if err := m.adapter.CreateEdge(ctx, Edge{
			ID: "mentions:" + f.FactID + ":" + entityID,
			SourceID: f.FactID, TargetID: "entity:" + entityID, Type: "MENTIONS",
		}); err != nil {
			return err
		}
	}
	return nil
}

func mentionedEntities(f cortex.Fact, dict *lexical.Dictionary) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		s = lexical.Canonicalize(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	add(f.Subject)
	add(f.Object)
	if dict != nil {
		for _, match := range dict.Scan(f.Fact) {
			for _, id := range match.EntityIDs {
				add(id)
			}
		}
	}
	return out
}

// MirrorContext projects a Context node and its CHILD_OF/TRIGGERED_BY/
// INVOLVES edges.
func (m *Mirror) MirrorContext(ctx context.Context, c cortex.Context) error {
	if !m.enabled() {
		return nil
	}
	if err := m.adapter.CreateNode(ctx, Node{ID: c.ContextID, Label: "Context",
		Properties: map[string]string{"purpose": c.Purpose}}); err != nil {
		return err
	}
	if c.ParentID != "" {
		if err := m.adapter.CreateEdge(ctx, Edge{
			ID: "childof:" + c.ContextID + ":" + c.ParentID,
			SourceID: c.ContextID, TargetID: c.ParentID, Type: "CHILD_OF",
		}); err != nil {
			return err
		}
	}
	if c.ConversationRef != nil && c.ConversationRef.ConversationID != "" {
		if err := m.adapter.CreateEdge(ctx, Edge{
			ID: "triggeredby:" + c.ContextID + ":" + c.ConversationRef.ConversationID,
			SourceID: c.ContextID, TargetID: c.ConversationRef.ConversationID, Type: "TRIGGERED_BY",
		}); err != nil {
			return err
		}
	}
	if c.UserID != "" {
		if err := m.adapter.CreateEdge(ctx, Edge{
			ID: "involves:" + c.ContextID + ":" + c.UserID,
			SourceID: c.ContextID, TargetID: c.UserID, Type: "INVOLVES",
		}); err != nil {
			return err
		}
	}
	return nil
}

// DeleteMemoryMirror, DeleteFactMirror, and DeleteContextMirror are the
// deterministic inverses forget() invokes (§4.7, §9): delete the node,
// which the adapter is expected to cascade to its incident edges.
func (m *Mirror) DeleteMemoryMirror(ctx context.Context, memoryID string) error {
	if !m.enabled() {
		return nil
	}
	return m.adapter.DeleteNode(ctx, memoryID)
}

func (m *Mirror) DeleteFactMirror(ctx context.Context, factID string) error {
	if !m.enabled() {
		return nil
	}
	return m.adapter.DeleteNode(ctx, factID)
}

func (m *Mirror) DeleteContextMirror(ctx context.Context, contextID string) error {
	if !m.enabled() {
		return nil
	}
	return m.adapter.DeleteNode(ctx, contextID)
}

// TraverseFrom exposes a bounded BFS from a mirrored node, for recall's
// graph source (§4.5). Returns nil without error when no adapter is
// configured.
func (m *Mirror) TraverseFrom(ctx context.Context, fromID string, maxHops int) ([]Node, error) {
	if !m.enabled() {
		return nil, nil
	}
	return m.adapter.Traverse(ctx, fromID, maxHops)
}

// Sync rebuilds the mirror from a canonical snapshot, newest-first,
// keeping at most limit conversations, memories, and facts each (0 means
// unbounded); contexts are always mirrored in full. It first clears the
// adapter's database, honoring the invariant that the graph is a reconstructable
// projection, never an independent source of truth (§4.8, §9).
func (m *Mirror) Sync(ctx context.Context, snap *storage.Snapshot, limit int, dict *lexical.Dictionary) error {
	if !m.enabled() {
		return nil
	}
	if err := m.adapter.ClearDatabase(ctx); err != nil {
		return fmt.Errorf("graph sync: clear: %w", err)
	}
	if err := m.MirrorSpace(ctx, snap.Space); err != nil {
		return err
	}

	for _, c := range bounded(snap.Conversations, limit) {
		if err := m.MirrorConversation(ctx, c); err != nil {
			return err
		}
	}
	for _, mem := range boundedMemories(snap.Memories, limit) {
		if err := m.MirrorMemory(ctx, mem); err != nil {
			return err
		}
	}
	for _, f := range boundedFacts(snap.Facts, limit) {
		if err := m.MirrorFact(ctx, snap.Space.MemorySpaceID, f, dict); err != nil {
			return err
		}
	}
	for _, c := range snap.Contexts {
		if err := m.MirrorContext(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot lists are newest-first, so bounding keeps their head.
func bounded(items []cortex.Conversation, limit int) []cortex.Conversation {
	if limit <= 0 || len(items) <= limit {
		return items
	}
	return items[:limit]
}

func boundedMemories(items []cortex.Memory, limit int) []cortex.Memory {
	if limit <= 0 || len(items) <= limit {
		return items
	}
	return items[:limit]
}

func boundedFacts(items []cortex.Fact, limit int) []cortex.Fact {
	if limit <= 0 || len(items) <= limit {
		return items
	}
	return items[:limit]
}
