package orchestrator

import (
	"context"

	"github.com/kittclouds/cortex/pkg/cortex"
)

// TargetKind enumerates what forget() resolves targetId against (§4.7).
type TargetKind string

const (
	TargetMemory       TargetKind = "memory"
	TargetFact         TargetKind = "fact"
	TargetConversation TargetKind = "conversation"
	TargetContext      TargetKind = "context"
	TargetUser         TargetKind = "user"
)

// ForgetOptions mirrors §4.7's forget() parameters.
type ForgetOptions struct {
	Target TargetKind

	DeleteFacts        bool
	DeleteConversation bool
	ArchiveOnly        bool
	CascadeGraph       bool
	CascadeUser        bool // only meaningful when Target == TargetUser

	// Now stamps archived_at when ArchiveOnly is set. Callers that don't
	// archive may leave it zero.
	Now int64
}

// ForgetSummary enumerates deleted counts per layer, always returned
// even on partial failure (§4.7, §7).
type ForgetSummary struct {
	DeletedConversations int
	DeletedMemories      int
	DeletedFacts         int
	DeletedContexts      int
	ArchivedOnly         bool
	Errors               []string
}

func (s *ForgetSummary) merge(o ForgetSummary) {
	s.DeletedConversations += o.DeletedConversations
	s.DeletedMemories += o.DeletedMemories
	s.DeletedFacts += o.DeletedFacts
	s.DeletedContexts += o.DeletedContexts
	s.ArchivedOnly = s.ArchivedOnly || o.ArchivedOnly
	s.Errors = append(s.Errors, o.Errors...)
}

// Forget deletes (or archives) a target and its dependents in the
// dependency order of §4.7: graph nodes/edges, then facts, then vector
// memories, then conversations, then context subtree, then the target.
func (o *Orchestrator) Forget(ctx context.Context, memorySpaceID, targetID string, opts ForgetOptions) (ForgetSummary, error) {
	now := opts.Now
	switch opts.Target {
	case TargetUser:
		return o.forgetUser(ctx, memorySpaceID, targetID, opts, now)
	case TargetConversation:
		return o.forgetConversation(ctx, memorySpaceID, targetID, opts, now)
	case TargetContext:
		return o.forgetContext(ctx, memorySpaceID, targetID, opts, now)
	case TargetMemory:
		return o.forgetMemory(ctx, memorySpaceID, targetID, opts, now)
	case TargetFact:
		return o.forgetFact(ctx, memorySpaceID, targetID, opts, now)
	default:
		return ForgetSummary{}, cortex.NewError(cortex.KindValidation, "forget: unknown target kind", nil)
	}
}

func (o *Orchestrator) forgetMemory(ctx context.Context, memorySpaceID, memoryID string, opts ForgetOptions, now int64) (ForgetSummary, error) {
	var summary ForgetSummary

	if opts.DeleteConversation {
		mem, err := o.store.GetMemory(ctx, memorySpaceID, memoryID)
		if err == nil && mem.ConversationRef != nil && mem.ConversationRef.ConversationID != "" {
			sub, _ := o.forgetConversation(ctx, memorySpaceID, mem.ConversationRef.ConversationID, stripConversationCascade(opts), now)
			summary.merge(sub)
			return summary, nil
		}
	}

	if opts.CascadeGraph && o.graph != nil {
		if err := o.graph.DeleteMemoryMirror(ctx, memoryID); err != nil {
			summary.Errors = append(summary.Errors, err.Error())
		}
	}
	if opts.ArchiveOnly {
		if err := o.store.ArchiveMemory(ctx, memorySpaceID, memoryID, now); err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			return summary, err
		}
		summary.DeletedMemories = 1
		summary.ArchivedOnly = true
		return summary, nil
	}
	if err := o.store.DeleteMemory(ctx, memorySpaceID, memoryID, opts.DeleteFacts); err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		return summary, err
	}
	summary.DeletedMemories = 1
	return summary, nil
}

func (o *Orchestrator) forgetFact(ctx context.Context, memorySpaceID, factID string, opts ForgetOptions, now int64) (ForgetSummary, error) {
	var summary ForgetSummary

	if opts.DeleteConversation {
		f, err := o.store.GetFact(ctx, memorySpaceID, factID)
		if err == nil && f.SourceRef != nil && f.SourceRef.ConversationID != "" {
			sub, _ := o.forgetConversation(ctx, memorySpaceID, f.SourceRef.ConversationID, stripConversationCascade(opts), now)
			summary.merge(sub)
			return summary, nil
		}
	}

	if opts.CascadeGraph && o.graph != nil {
		if err := o.graph.DeleteFactMirror(ctx, factID); err != nil {
			summary.Errors = append(summary.Errors, err.Error())
		}
	}
	if opts.ArchiveOnly {
		if err := o.store.ArchiveFact(ctx, memorySpaceID, factID, now); err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			return summary, err
		}
		summary.DeletedFacts = 1
		summary.ArchivedOnly = true
		return summary, nil
	}
	if err := o.store.DeleteFact(ctx, memorySpaceID, factID); err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		return summary, err
	}
	summary.DeletedFacts = 1
	return summary, nil
}

func (o *Orchestrator) forgetContext(ctx context.Context, memorySpaceID, contextID string, opts ForgetOptions, now int64) (ForgetSummary, error) {
	var summary ForgetSummary

	if opts.DeleteConversation {
		c, err := o.store.GetContext(ctx, memorySpaceID, contextID)
		if err == nil && c.ConversationRef != nil && c.ConversationRef.ConversationID != "" {
			sub, _ := o.forgetConversation(ctx, memorySpaceID, c.ConversationRef.ConversationID, stripConversationCascade(opts), now)
			summary.merge(sub)
			return summary, nil
		}
	}

	count, err := o.store.ContextSubtreeSize(ctx, memorySpaceID, contextID)
	if err != nil {
		count = 1
	}
	if opts.CascadeGraph && o.graph != nil {
		if err := o.graph.DeleteContextMirror(ctx, contextID); err != nil {
			summary.Errors = append(summary.Errors, err.Error())
		}
	}
	if opts.ArchiveOnly {
		archived, err := o.store.ArchiveContext(ctx, memorySpaceID, contextID, now)
		if err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			return summary, err
		}
		summary.DeletedContexts = archived
		summary.ArchivedOnly = true
		return summary, nil
	}
	if err := o.store.DeleteContext(ctx, memorySpaceID, contextID); err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		return summary, err
	}
	summary.DeletedContexts = count
	return summary, nil
}

func (o *Orchestrator) forgetConversation(ctx context.Context, memorySpaceID, conversationID string, opts ForgetOptions, now int64) (ForgetSummary, error) {
	var summary ForgetSummary
	childOpts := stripConversationCascade(opts)

	if opts.DeleteFacts {
		facts, err := o.store.ListFacts(ctx, memorySpaceID, 10000)
		if err == nil {
			for _, f := range facts {
				if f.SourceRef != nil && f.SourceRef.ConversationID == conversationID {
					sub, _ := o.forgetFact(ctx, memorySpaceID, f.FactID, childOpts, now)
					summary.merge(sub)
				}
			}
		}
	}
	memories, err := o.store.ListMemories(ctx, memorySpaceID, 10000)
	if err == nil {
		for _, m := range memories {
			if m.ConversationRef != nil && m.ConversationRef.ConversationID == conversationID {
				sub, _ := o.forgetMemory(ctx, memorySpaceID, m.MemoryID, childOpts, now)
				summary.merge(sub)
			}
		}
	}

	if opts.ArchiveOnly {
		if err := o.store.ArchiveConversation(ctx, conversationID, now); err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			return summary, err
		}
		summary.DeletedConversations = 1
		summary.ArchivedOnly = true
		return summary, nil
	}
	if err := o.store.DeleteConversation(ctx, conversationID); err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		return summary, err
	}
	summary.DeletedConversations = 1
	return summary, nil
}

// stripConversationCascade clears DeleteConversation before passing
// options into a forgetConversation-driven child call, so a conversation
// cascade never recurses back into itself through its own memories or
// facts (e.g. memory -> conversation -> memory -> conversation -> ...).
func stripConversationCascade(opts ForgetOptions) ForgetOptions {
	opts.DeleteConversation = false
	return opts
}

// forgetUser iterates every space the user owns and runs the cascade
// procedure within each, per §4.7.
func (o *Orchestrator) forgetUser(ctx context.Context, memorySpaceID, userID string, opts ForgetOptions, now int64) (ForgetSummary, error) {
	var summary ForgetSummary

	spaces, err := o.store.ListSpacesByOwner(ctx, userID)
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
	}
	if len(spaces) == 0 && memorySpaceID != "" {
		// No owner record (legacy space, or caller didn't set it on
		// remember): fall back to the single space the caller supplied.
		spaces = []cortex.MemorySpace{{MemorySpaceID: memorySpaceID}}
	}

	for _, sp := range spaces {
		convs, err := o.conversationsForUser(ctx, sp.MemorySpaceID, userID)
		if err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			continue
		}
		for _, convID := range convs {
			sub, _ := o.forgetConversation(ctx, sp.MemorySpaceID, convID, ForgetOptions{
				DeleteFacts: true, ArchiveOnly: opts.ArchiveOnly, CascadeGraph: opts.CascadeGraph,
			}, now)
			summary.merge(sub)
		}
	}

	if opts.CascadeUser {
		if err := o.store.DeleteUser(ctx, userID); err != nil {
			summary.Errors = append(summary.Errors, err.Error())
		}
	}
	return summary, nil
}

func (o *Orchestrator) conversationsForUser(ctx context.Context, memorySpaceID, userID string) ([]string, error) {
	memories, err := o.store.ListMemories(ctx, memorySpaceID, 10000)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, m := range memories {
		if m.UserID != userID || m.ConversationRef == nil {
			continue
		}
		if !seen[m.ConversationRef.ConversationID] {
			seen[m.ConversationRef.ConversationID] = true
			out = append(out, m.ConversationRef.ConversationID)
		}
	}
	return out, nil
}
