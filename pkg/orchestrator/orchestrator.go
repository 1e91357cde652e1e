// Package orchestrator drives the remember and forget state machines of
// §4.6/§4.7 (recall lives in pkg/recall): it fans out to the storage, belief-revision, and
// graph-mirror layers, emits progress events to an Observer, and
// enforces per-space back-pressure.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kittclouds/cortex/internal/storage"
	"github.com/kittclouds/cortex/pkg/belief"
	"github.com/kittclouds/cortex/pkg/cortex"
	"github.com/kittclouds/cortex/pkg/graphmirror"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// EmbeddingFunc turns text into a vector of the space's dimension. With a
// nil func, memories are still stored but without an embedding, so they
// are found by lexical rather than vector search.
type EmbeddingFunc func(ctx context.Context, text string) ([]float32, error)

// ExtractedFact is what an external extractor hands back for a turn,
// ahead of belief revision (§4.6 factExtract).
type ExtractedFact struct {
	FactType   cortex.FactType
	Subject    string
	Predicate  string
	Object     string
	Slots      map[string]string
	Confidence int
	Tags       []string
}

// ExtractorFunc is the opaque external fact extractor (§1: explicitly
// out of scope, called only through this signature).
type ExtractorFunc func(ctx context.Context, userMessage, agentMessage string) ([]ExtractedFact, error)

// RememberRequest is one remember() call (§4.6).
type RememberRequest struct {
	MemorySpaceID  string
	ConversationID string // empty creates a new conversation
	ContextID      string
	UserID         string
	AgentID        string
	UserMessage    string
	AgentMessage   string
	Timestamp      int64
	SpaceMeta      *cortex.MemorySpace // used only if the space doesn't exist yet

	// A2ATargetSpaceID, if set, marks the stored memories as agent-to-agent
	// traffic from MemorySpaceID to this space and mirrors a SENT_TO edge
	// between them (§4.8, §13 OQ2).
	A2ATargetSpaceID string
}

// RememberResult is returned once the state machine reaches complete or
// error.
type RememberResult struct {
	OrchestrationID string
	TotalLatencyMs  int64
	CreatedIDs      map[string]string
	Events          []LayerEvent
}

// Orchestrator composes storage, belief revision, and the graph mirror
// into the remember/forget surface.
type Orchestrator struct {
	store     *storage.Store
	belief    *belief.Engine
	graph     *graphmirror.Mirror
	embed     EmbeddingFunc
	extractor ExtractorFunc
	observer  Observer
	log       *zap.SugaredLogger
	cfg       cortex.Config

	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
	wait map[string]*int64
}

// New builds an Orchestrator. observer may be nil (defaults to
// NopObserver); embed may be nil to store memories without embeddings,
// and extractor may be nil to skip fact extraction.
func New(store *storage.Store, beliefEngine *belief.Engine, graph *graphmirror.Mirror, embed EmbeddingFunc, extractor ExtractorFunc, observer Observer, cfg cortex.Config, log *zap.SugaredLogger) *Orchestrator {
	if observer == nil {
		observer = NopObserver{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Orchestrator{
		store: store, belief: beliefEngine, graph: graph, embed: embed, extractor: extractor,
		observer: observer, log: log, cfg: cfg,
		sems: map[string]*semaphore.Weighted{}, wait: map[string]*int64{},
	}
}

func (o *Orchestrator) spaceSemaphore(spaceID string) (*semaphore.Weighted, *int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sem, ok := o.sems[spaceID]
	if !ok {
		weight := int64(o.cfg.OrchestratorInflight)
		if weight <= 0 {
			weight = 16
		}
		sem = semaphore.NewWeighted(weight)
		o.sems[spaceID] = sem
	}
	w, ok := o.wait[spaceID]
	if !ok {
		var zero int64
		w = &zero
		o.wait[spaceID] = w
	}
	return sem, w
}

// admit enforces §5's back-pressure: a bounded FIFO queue (default 256)
// ahead of a per-space inflight semaphore (default 16); overflow fails
// fast with Overloaded rather than waiting unbounded.
func (o *Orchestrator) admit(ctx context.Context, spaceID string) (func(), error) {
	sem, waiting := o.spaceSemaphore(spaceID)
	queueCap := int64(o.cfg.OrchestratorQueue)
	if queueCap <= 0 {
		queueCap = 256
	}
	if atomic.AddInt64(waiting, 1) > queueCap {
		atomic.AddInt64(waiting, -1)
		return nil, cortex.NewError(cortex.KindOverloaded, fmt.Sprintf("memory space %s: queue full", spaceID), nil)
	}
	err := sem.Acquire(ctx, 1)
	atomic.AddInt64(waiting, -1)
	if err != nil {
		return nil, cortex.NewError(cortex.KindOverloaded, "admission cancelled", err)
	}
	return func() { sem.Release(1) }, nil
}

// Remember runs the spaceCheck -> userCheck -> agentCheck ->
// conversationAppend -> vectorStore -> factExtract -> beliefRevision ->
// graphMirror? -> complete state machine of §4.6.
func (o *Orchestrator) Remember(ctx context.Context, req RememberRequest) (RememberResult, error) {
	release, err := o.admit(ctx, req.MemorySpaceID)
	if err != nil {
		return RememberResult{}, err
	}
	defer release()

	orchestrationID := uuid.NewString()
	o.observer.OnOrchestrationStart(orchestrationID)
	start := time.Now()

	result := RememberResult{OrchestrationID: orchestrationID, CreatedIDs: map[string]string{}}
	emit := func(e LayerEvent) {
		result.Events = append(result.Events, e)
		o.observer.OnLayerUpdate(orchestrationID, e)
	}

	if err := o.stepSpaceCheck(ctx, req, emit); err != nil {
		return o.fail(orchestrationID, result, start, err)
	}
	if req.UserID != "" {
		o.stepUserCheck(ctx, req, emit)
	}
	if req.AgentID != "" {
		o.stepAgentCheck(ctx, req, emit)
	}

	conv, err := o.stepConversationAppend(ctx, req, result.CreatedIDs, emit)
	if err != nil {
		return o.fail(orchestrationID, result, start, err)
	}

	memIDs, err := o.stepVectorStore(ctx, req, conv, result.CreatedIDs, emit)
	if err != nil {
		return o.fail(orchestrationID, result, start, err)
	}

	extracted := o.stepFactExtract(ctx, req, emit)
	storedFacts := o.stepBeliefRevision(ctx, req, extracted, conv.ConversationID, result.CreatedIDs, emit)

	if o.cfg.GraphMirror && o.graph != nil {
		o.stepGraphMirror(ctx, req, conv, memIDs, storedFacts, emit)
	}

	result.TotalLatencyMs = time.Since(start).Milliseconds()
	o.observer.OnOrchestrationComplete(orchestrationID, result.TotalLatencyMs, result.CreatedIDs)
	return result, nil
}

func (o *Orchestrator) fail(orchestrationID string, result RememberResult, start time.Time, err error) (RememberResult, error) {
	result.TotalLatencyMs = time.Since(start).Milliseconds()
	o.observer.OnLayerUpdate(orchestrationID, LayerEvent{Layer: "orchestration", Status: StatusError, Error: err.Error()})
	return result, err
}

func timed(f func() error) (int64, error) {
	start := time.Now()
	err := f()
	return time.Since(start).Milliseconds(), err
}

func (o *Orchestrator) stepSpaceCheck(ctx context.Context, req RememberRequest, emit func(LayerEvent)) error {
	space := cortex.MemorySpace{MemorySpaceID: req.MemorySpaceID, OwnerUserID: req.UserID, CreatedAt: req.Timestamp}
	if req.SpaceMeta != nil {
		space = *req.SpaceMeta
		space.MemorySpaceID = req.MemorySpaceID
	}
	var created bool
	ms, err := timed(func() error {
		var inner error
		_, created, inner = o.store.RegisterSpace(ctx, space)
		return inner
	})
	status := StatusComplete
	if !created {
		status = StatusSkipped
	}
	if err != nil {
		emit(LayerEvent{Layer: "memorySpace", Status: StatusError, LatencyMs: ms, Error: err.Error()})
		return err
	}
	emit(LayerEvent{Layer: "memorySpace", Status: status, LatencyMs: ms})
	return nil
}

func (o *Orchestrator) stepUserCheck(ctx context.Context, req RememberRequest, emit func(LayerEvent)) {
	ms, err := timed(func() error {
		return o.store.UpsertUser(ctx, cortex.User{UserID: req.UserID})
	})
	if err != nil {
		emit(LayerEvent{Layer: "user", Status: StatusError, LatencyMs: ms, Error: err.Error()})
		return
	}
	emit(LayerEvent{Layer: "user", Status: StatusComplete, LatencyMs: ms})
}

func (o *Orchestrator) stepAgentCheck(ctx context.Context, req RememberRequest, emit func(LayerEvent)) {
	ms, err := timed(func() error {
		return o.store.RegisterAgent(ctx, cortex.Agent{AgentID: req.AgentID})
	})
	if err != nil {
		emit(LayerEvent{Layer: "agent", Status: StatusError, LatencyMs: ms, Error: err.Error()})
		return
	}
	emit(LayerEvent{Layer: "agent", Status: StatusComplete, LatencyMs: ms})
}

func (o *Orchestrator) stepConversationAppend(ctx context.Context, req RememberRequest, createdIDs map[string]string, emit func(LayerEvent)) (cortex.Conversation, error) {
	var conv cortex.Conversation
	ms, err := timed(func() error {
		var inner error
		if req.ConversationID == "" {
			participants := []cortex.Participant{{UserID: req.UserID, Role: "user"}, {ParticipantID: req.AgentID, Role: "agent"}}
			conv, inner = o.store.CreateConversation(ctx, req.MemorySpaceID, cortex.ConvUserAgent, participants, req.Timestamp)
			if inner != nil {
				return inner
			}
		} else {
			conv, inner = o.store.GetConversation(ctx, req.ConversationID)
			if inner != nil {
				return inner
			}
		}
		if req.UserMessage != "" {
			if _, inner = o.store.AddMessage(ctx, conv.ConversationID, "user", req.UserMessage, req.Timestamp); inner != nil {
				return inner
			}
		}
		if req.AgentMessage != "" {
			if _, inner = o.store.AddMessage(ctx, conv.ConversationID, "agent", req.AgentMessage, req.Timestamp); inner != nil {
				return inner
			}
		}
		conv, inner = o.store.GetConversation(ctx, conv.ConversationID)
		return inner
	})
	if err != nil {
		emit(LayerEvent{Layer: "conversation", Status: StatusError, LatencyMs: ms, Error: err.Error()})
		return cortex.Conversation{}, err
	}
	createdIDs["conversationId"] = conv.ConversationID
	emit(LayerEvent{Layer: "conversation", Status: StatusComplete, LatencyMs: ms})
	return conv, nil
}

func (o *Orchestrator) stepVectorStore(ctx context.Context, req RememberRequest, conv cortex.Conversation, createdIDs map[string]string, emit func(LayerEvent)) ([]string, error) {
	var memIDs []string
	ms, err := timed(func() error {
		for role, content := range map[string]string{"user": req.UserMessage, "agent": req.AgentMessage} {
			if content == "" {
				continue
			}
			var embedding []float32
			if o.embed != nil {
				var embErr error
				embedding, embErr = o.embed(ctx, content)
				if embErr != nil {
					return embErr
				}
			}
			source := cortex.MemorySource{Type: role, UserID: req.UserID}
			if req.A2ATargetSpaceID != "" {
				source = cortex.MemorySource{
					Type: "a2a", UserID: req.UserID,
					FromMemorySpace: req.MemorySpaceID, ToMemorySpace: req.A2ATargetSpaceID,
				}
			}
			mem := cortex.Memory{
				MemorySpaceID:   req.MemorySpaceID,
				Content:         content,
				ContentType:     cortex.ContentRaw,
				Embedding:       embedding,
				UserID:          req.UserID,
				Source:          source,
				ConversationRef: &cortex.ConversationRef{ConversationID: conv.ConversationID},
				Importance:      5,
				CreatedAt:       req.Timestamp,
			}
			stored, storeErr := o.store.StoreMemory(ctx, mem)
			if storeErr != nil {
				return storeErr
			}
			memIDs = append(memIDs, stored.MemoryID)
		}
		return nil
	})
	if err != nil {
		emit(LayerEvent{Layer: "vector", Status: StatusError, LatencyMs: ms, Error: err.Error()})
		return nil, err
	}
	if len(memIDs) > 0 {
		createdIDs["memoryIds"] = joinIDs(memIDs)
	}
	emit(LayerEvent{Layer: "vector", Status: StatusComplete, LatencyMs: ms})
	return memIDs, nil
}

// stepFactExtract is a soft step (§4.6, §7): a failing extractor emits
// an error event but never fails the orchestration.
func (o *Orchestrator) stepFactExtract(ctx context.Context, req RememberRequest, emit func(LayerEvent)) []ExtractedFact {
	if o.extractor == nil {
		emit(LayerEvent{Layer: "facts", Status: StatusSkipped})
		return nil
	}
	var facts []ExtractedFact
	ms, err := timed(func() error {
		var inner error
		facts, inner = o.extractor(ctx, req.UserMessage, req.AgentMessage)
		return inner
	})
	if err != nil {
		emit(LayerEvent{Layer: "facts", Status: StatusError, LatencyMs: ms, Error: err.Error()})
		return nil
	}
	emit(LayerEvent{Layer: "facts", Status: StatusComplete, LatencyMs: ms})
	return facts
}

func (o *Orchestrator) stepBeliefRevision(ctx context.Context, req RememberRequest, facts []ExtractedFact, conversationID string, createdIDs map[string]string, emit func(LayerEvent)) []cortex.Fact {
	if o.belief == nil || len(facts) == 0 {
		return nil
	}
	var factIDs []string
	var stored []cortex.Fact
	for _, ef := range facts {
		candidate := cortex.Fact{
			MemorySpaceID: req.MemorySpaceID,
			Fact:          fmt.Sprintf("%s %s %s", ef.Subject, ef.Predicate, ef.Object),
			FactType:      ef.FactType,
			Subject:       ef.Subject,
			Predicate:     ef.Predicate,
			Object:        ef.Object,
			Slots:         ef.Slots,
			Confidence:    ef.Confidence,
			SourceType:    "extractor",
			SourceRef:     &cortex.FactSourceRef{ConversationID: conversationID},
			Tags:          ef.Tags,
			CreatedAt:     req.Timestamp,
		}
		var decision belief.Decision
		ms, err := timed(func() error {
			var inner error
			decision, inner = o.belief.Revise(ctx, candidate)
			return inner
		})
		if err != nil {
			emit(LayerEvent{Layer: "beliefRevision", Status: StatusError, LatencyMs: ms, Error: err.Error()})
			continue
		}
		factIDs = append(factIDs, decision.Fact.FactID)
		stored = append(stored, decision.Fact)
		emit(LayerEvent{
			Layer: "beliefRevision", Status: StatusComplete, LatencyMs: ms,
			RevisionAction: string(decision.Action), SupersededFacts: decision.SupersededFactID,
		})
	}
	if len(factIDs) > 0 {
		createdIDs["factIds"] = joinIDs(factIDs)
	}
	return stored
}

func (o *Orchestrator) stepGraphMirror(ctx context.Context, req RememberRequest, conv cortex.Conversation, memIDs []string, facts []cortex.Fact, emit func(LayerEvent)) {
	ms, err := timed(func() error {
		if mirrorErr := o.graph.MirrorConversation(ctx, conv); mirrorErr != nil {
			return mirrorErr
		}
		for _, id := range memIDs {
			mem, getErr := o.store.GetMemory(ctx, req.MemorySpaceID, id)
			if getErr != nil {
				continue
			}
			if mirrorErr := o.graph.MirrorMemory(ctx, mem); mirrorErr != nil {
				return mirrorErr
			}
		}
		for _, f := range facts {
			if mirrorErr := o.graph.MirrorFact(ctx, req.MemorySpaceID, f, nil); mirrorErr != nil {
				return mirrorErr
			}
		}
		return nil
	})
	if err != nil {
		emit(LayerEvent{Layer: "graph", Status: StatusError, LatencyMs: ms, Error: err.Error()})
		return
	}
	emit(LayerEvent{Layer: "graph", Status: StatusComplete, LatencyMs: ms})
}

func joinIDs(ids []string) string {
	out := ids[0]
	for _, id := range ids[1:] {
		out += "," + id
	}
	return out
}
