// Package recall implements the multi-strategy retrieval of §4.5:
// independent vector, facts, lexical, and graph sources run concurrently
// and are merged into one ranked, deduplicated result list.
package recall

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/kittclouds/cortex/internal/storage"
	"github.com/kittclouds/cortex/pkg/cortex"
	"github.com/kittclouds/cortex/pkg/graphmirror"
	"github.com/kittclouds/cortex/pkg/lexical"
	"github.com/kittclouds/cortex/pkg/pool"
	"golang.org/x/sync/errgroup"
)

// Source names, used both as request toggles and as result tags.
const (
	SourceVector  = "vector"
	SourceFacts   = "facts"
	SourceLexical = "lexical"
	SourceGraph   = "graph"
)

// Layer distinguishes which canonical table an Item came from.
type Layer string

const (
	LayerMemory Layer = "memory"
	LayerFact   Layer = "fact"
)

// Item is one merged, ranked recall result (§4.5 merge rules).
type Item struct {
	Layer          Layer
	ID             string
	Content        string
	Score          float64
	Importance     int
	CreatedAt      int64
	ConversationID string
	Sources        []string
}

// Request is the input to Recall (§6 memory.recall).
type Request struct {
	MemorySpaceID string
	Query         string
	Embedding     []float32
	Limit         int
	ContextID     string
	Sources       map[string]bool // nil means "all enabled sources"; a non-nil empty map enables none
}

// Result is Recall's output: the merged items plus any per-source
// failures, which never fail the call itself (§4.5, §7).
type Result struct {
	Items          []Item
	SourceFailures map[string]string
}

// Engine runs the four recall sources against the Storage Runtime and an
// optional graph mirror.
type Engine struct {
	store *storage.Store
	graph *graphmirror.Mirror
	dict  func(ctx context.Context, memorySpaceID string) (*lexical.Dictionary, error)
}

// New builds a recall Engine. dictBuilder supplies the lexical entity
// dictionary for a space on demand (built from distinct fact
// subjects/objects, per §13 OQ1); it may be nil to disable entity-aware
// graph hops.
func New(store *storage.Store, graph *graphmirror.Mirror, dictBuilder func(ctx context.Context, memorySpaceID string) (*lexical.Dictionary, error)) *Engine {
	return &Engine{store: store, graph: graph, dict: dictBuilder}
}

func wants(req Request, source string) bool {
	if req.Sources == nil {
		return true
	}
	return req.Sources[source]
}

// Recall runs the enabled sources concurrently (bounded by errgroup,
// cancellation-propagating) and merges their hits (§4.5, §9).
func (e *Engine) Recall(ctx context.Context, req Request) (Result, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	var mu sync.Mutex
	failures := map[string]string{}
	var vectorHits, factHits, lexicalHits, graphHits []Item

	g, gctx := errgroup.WithContext(ctx)

	if wants(req, SourceVector) && len(req.Embedding) > 0 {
		g.Go(func() error {
			hits, err := e.searchVector(gctx, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[SourceVector] = err.Error()
				return nil
			}
			vectorHits = hits
			return nil
		})
	}
	if wants(req, SourceFacts) {
		g.Go(func() error {
			hits, err := e.searchFacts(gctx, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[SourceFacts] = err.Error()
				return nil
			}
			factHits = hits
			return nil
		})
	}
	if wants(req, SourceLexical) {
		g.Go(func() error {
			hits, err := e.searchLexical(gctx, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[SourceLexical] = err.Error()
				return nil
			}
			lexicalHits = hits
			return nil
		})
	}
	if wants(req, SourceGraph) && e.graph != nil {
		g.Go(func() error {
			hits, err := e.searchGraph(gctx, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[SourceGraph] = err.Error()
				return nil
			}
			graphHits = hits
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	if req.ContextID != "" {
		allowed, err := e.reachableConversations(ctx, req)
		if err == nil {
			vectorHits = restrictToConversations(vectorHits, allowed)
			factHits = restrictToConversations(factHits, allowed)
			lexicalHits = restrictToConversations(lexicalHits, allowed)
		}
	}

	merged := merge(req.Limit, vectorHits, factHits, lexicalHits, graphHits)
	return Result{Items: merged, SourceFailures: failures}, nil
}

func (e *Engine) searchVector(ctx context.Context, req Request) ([]Item, error) {
	hits, err := e.store.SearchVectors(ctx, req.MemorySpaceID, req.Embedding, req.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(hits))
	for _, h := range hits {
		mem, err := e.store.GetMemory(ctx, req.MemorySpaceID, h.MemoryID)
		if err != nil {
			continue
		}
		out = append(out, Item{Layer: LayerMemory, ID: mem.MemoryID, Content: mem.Content,
			Score: h.Score, Importance: mem.Importance, CreatedAt: mem.CreatedAt,
			ConversationID: conversationOf(mem.ConversationRef), Sources: []string{SourceVector}})
	}
	return out, nil
}

func conversationOf(ref *cortex.ConversationRef) string {
	if ref == nil {
		return ""
	}
	return ref.ConversationID
}

// searchFacts implements §4.5's three Facts-source scoring tiers: 1.0 for
// an exact triple match against the raw query string, confidence/100 for
// a structural slot match (subject lookup), and 0.5 for a free-text
// match. A fact can earn more than one tier; merge()'s max-score-wins
// dedup resolves the overlap.
func (e *Engine) searchFacts(ctx context.Context, req Request) ([]Item, error) {
	var out []Item
	if req.Query == "" {
		return out, nil
	}

	slotMatch, err := e.store.QueryFacts(ctx, req.MemorySpaceID, storage.FactQuery{Subject: req.Query, Limit: req.Limit})
	if err == nil {
		for _, f := range slotMatch {
			out = append(out, factItem(f, slotOrExactScore(f, req.Query)))
		}
	}

	text, err := e.store.SearchFactsText(ctx, req.MemorySpaceID, req.Query, req.Limit)
	if err == nil {
		for _, f := range text {
			out = append(out, factItem(f, exactOrTextScore(f, req.Query)))
		}
	}
	return out, nil
}

// exactTripleMatch is §4.5's strongest Facts tier: the stored fact
// sentence equals the raw query string, case- and whitespace-insensitive.
func exactTripleMatch(f cortex.Fact, query string) bool {
	return strings.EqualFold(strings.TrimSpace(f.Fact), strings.TrimSpace(query))
}

// slotOrExactScore scores a structural subject-lookup hit at
// confidence/100 unless it also happens to be an exact triple match.
func slotOrExactScore(f cortex.Fact, query string) float64 {
	if exactTripleMatch(f, query) {
		return 1.0
	}
	return float64(f.Confidence) / 100
}

// exactOrTextScore scores a free-text substring hit at 0.5 unless it also
// happens to be an exact triple match.
func exactOrTextScore(f cortex.Fact, query string) float64 {
	if exactTripleMatch(f, query) {
		return 1.0
	}
	return 0.5
}

func factItem(f cortex.Fact, score float64) Item {
	convID := ""
	if f.SourceRef != nil {
		convID = f.SourceRef.ConversationID
	}
	return Item{Layer: LayerFact, ID: f.FactID, Content: f.Fact, Score: score,
		Importance: f.Confidence, CreatedAt: f.CreatedAt, ConversationID: convID, Sources: []string{SourceFacts}}
}

func (e *Engine) searchLexical(ctx context.Context, req Request) ([]Item, error) {
	if req.Query == "" {
		return nil, nil
	}
	memories, err := e.store.ListMemories(ctx, req.MemorySpaceID, 500)
	if err != nil {
		return nil, err
	}
	queryTokens := lexical.Tokens(req.Query)
	if len(queryTokens) == 0 {
		return nil, nil
	}
	querySet := make(map[string]bool, len(queryTokens))
	for _, t := range queryTokens {
		querySet[t] = true
	}

	var out []Item
	for _, m := range memories {
		docTokens := lexical.Tokens(m.Content)
		if len(docTokens) == 0 {
			continue
		}
		hits := 0
		for _, t := range docTokens {
			if querySet[t] {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := float64(hits) / float64(len(querySet))
		if score > 1.0 {
			score = 1.0
		}
		out = append(out, Item{Layer: LayerMemory, ID: m.MemoryID, Content: m.Content, Score: score,
			Importance: m.Importance, CreatedAt: m.CreatedAt,
			ConversationID: conversationOf(m.ConversationRef), Sources: []string{SourceLexical}})
	}
	return out, nil
}

func (e *Engine) searchGraph(ctx context.Context, req Request) ([]Item, error) {
	if e.dict == nil {
		return nil, nil
	}
	dict, err := e.dict(ctx, req.MemorySpaceID)
	if err != nil || dict == nil {
		return nil, err
	}
	matches := dict.Scan(req.Query)
	if len(matches) == 0 {
		return nil, nil
	}

	seen := pool.GetSeenMap()
	defer pool.PutSeenMap(seen)

	var out []Item
	for _, match := range matches {
		for _, entityID := range match.EntityIDs {
			nodeID := "entity:" + entityID
			nodes, err := e.graphAdapterTraverse(ctx, nodeID)
			if err != nil {
				continue
			}
			for hops, n := range nodes {
				if seen[n.ID] > 0 {
					continue
				}
				seen[n.ID]++
				out = append(out, Item{Layer: layerForLabel(n.Label), ID: n.ID, Content: n.Properties["name"],
					Score: 1.0 / float64(1+hops), Sources: []string{SourceGraph}})
			}
		}
	}
	return out, nil
}

func layerForLabel(label string) Layer {
	if label == "Fact" {
		return LayerFact
	}
	return LayerMemory
}

func (e *Engine) graphAdapterTraverse(ctx context.Context, nodeID string) ([]graphmirror.Node, error) {
	return e.graph.TraverseFrom(ctx, nodeID, 2)
}

func (e *Engine) reachableConversations(ctx context.Context, req Request) (map[string]bool, error) {
	chain, err := e.store.GetChain(ctx, req.MemorySpaceID, req.ContextID)
	if err != nil {
		return nil, err
	}
	allowed := map[string]bool{}
	for _, c := range chain {
		if c.ConversationRef != nil {
			allowed[c.ConversationRef.ConversationID] = true
		}
	}
	return allowed, nil
}

// restrictToConversations drops items whose source conversation falls
// outside the requested context's chain (§4.5 contextId scoping). Items
// with no known conversation (e.g. graph hits) are kept, since they
// carry no conversation to scope by.
func restrictToConversations(items []Item, allowed map[string]bool) []Item {
	if len(allowed) == 0 {
		return items
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.ConversationID == "" || allowed[it.ConversationID] {
			out = append(out, it)
		}
	}
	return out
}

// merge implements §4.5's merge rule: dedup by (layer,id), score is the
// max across sources, ties broken by importance desc then createdAt
// desc, truncated to limit.
func merge(limit int, sourceLists ...[]Item) []Item {
	scores := pool.GetScoreMap()
	defer pool.PutScoreMap(scores)
	sourceSeen := pool.GetSeenMap()
	defer pool.PutSeenMap(sourceSeen)

	byKey := map[string]*Item{}
	keys := pool.GetStringSlice()
	defer pool.PutStringSlice(keys)

	for _, list := range sourceLists {
		for _, it := range list {
			key := string(it.Layer) + ":" + it.ID
			existing, ok := byKey[key]
			if !ok {
				cp := it
				cp.Sources = nil
				scores[key] = it.Score
				byKey[key] = &cp
				keys = append(keys, key)
				existing = &cp
			} else if it.Score > scores[key] {
				scores[key] = it.Score
				existing.Score = it.Score
			}
			for _, src := range it.Sources {
				sourceKey := key + "|" + src
				if sourceSeen[sourceKey] == 0 {
					sourceSeen[sourceKey] = 1
					existing.Sources = append(existing.Sources, src)
				}
			}
		}
	}

	out := make([]Item, 0, len(keys))
	for _, key := range keys {
		out = append(out, *byKey[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].CreatedAt > out[j].CreatedAt
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
