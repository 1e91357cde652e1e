// Package belief implements the belief-revision algorithm of §4.4: given
// a candidate fact and the active facts already on record for the same
// slot signature, decide whether to add, merge, supersede, or drop it as
// a duplicate.
package belief

import (
	"context"
	"fmt"
	"sort"

	"github.com/kittclouds/cortex/internal/storage"
	"github.com/kittclouds/cortex/pkg/cortex"
)

// Action is the closed set of belief-revision outcomes (§4.4 step 3).
type Action string

const (
	ActionAdd       Action = "ADD"
	ActionUpdate    Action = "UPDATE"
	ActionSupersede Action = "SUPERSEDE"
	ActionNone      Action = "NONE"
)

// Resolution is what an external LLM-backed classifier (§4.4 step 5)
// must return. The engine validates it against the closed action set and
// the candidate match list before trusting it.
type Resolution struct {
	Action     Action
	Supersedes []string
}

// Resolver is the optional external classifier signature from §4.4 step
// 5: (candidate, matches) -> resolution.
type Resolver func(ctx context.Context, candidate cortex.Fact, matches []cortex.Fact) (Resolution, error)

// Decision is the outcome of Revise, including what got superseded so
// the orchestrator can populate its onLayerUpdate event (§4.6).
type Decision struct {
	Action           Action
	Fact             cortex.Fact
	SupersededFactID []string
}

// Engine runs belief revision against the Storage Runtime's fact tables.
type Engine struct {
	store        *storage.Store
	slotMatching bool
	resolver     Resolver
}

// New builds a belief revision Engine. resolver may be nil, in which
// case classification is always rule-based.
func New(store *storage.Store, slotMatching bool, resolver Resolver) *Engine {
	return &Engine{store: store, slotMatching: slotMatching, resolver: resolver}
}

// Revise runs the full §4.4 algorithm and commits the resulting fact (or
// drops it as a duplicate) against the Storage Runtime.
func (e *Engine) Revise(ctx context.Context, candidate cortex.Fact) (Decision, error) {
	var factType string
	if e.slotMatching {
		factType = string(candidate.FactType)
	}
	matches, err := e.store.MatchingActiveFacts(ctx, candidate.MemorySpaceID, candidate.Subject, candidate.Predicate, factType)
	if err != nil {
		return Decision{}, fmt.Errorf("belief revision: %w", err)
	}
	if e.slotMatching {
		matches = filterBySlotSignature(candidate, matches)
	}
	matches = rankMatches(candidate, matches)

	resolution, err := e.classify(ctx, candidate, matches)
	if err != nil {
		return Decision{}, err
	}

	switch resolution.Action {
	case ActionNone:
		candidate.Status = cortex.FactDuplicate
		stored, err := e.store.InsertFact(ctx, candidate)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Action: ActionNone, Fact: stored}, nil

	case ActionUpdate:
		// Merge: the candidate's confidence/source are folded in by
		// inserting it as the new active row for the slot (under its own
		// fact id) and marking every match superseded by it, the same
		// way SUPERSEDE does.
		candidate.Status = cortex.FactActive
		stored, err := e.store.InsertFact(ctx, candidate)
		if err != nil {
			return Decision{}, err
		}
		var superseded []string
		for _, m := range matches {
			if err := e.store.SupersedeFact(ctx, candidate.MemorySpaceID, m.FactID, stored.FactID); err != nil {
				return Decision{}, err
			}
			superseded = append(superseded, m.FactID)
		}
		return Decision{Action: ActionUpdate, Fact: stored, SupersededFactID: superseded}, nil

	case ActionSupersede:
		candidate.Status = cortex.FactActive
		stored, err := e.store.InsertFact(ctx, candidate)
		if err != nil {
			return Decision{}, err
		}
		targets := resolution.Supersedes
		if len(targets) == 0 {
			for _, m := range matches {
				targets = append(targets, m.FactID)
			}
		}
		for _, id := range targets {
			if err := e.store.SupersedeFact(ctx, candidate.MemorySpaceID, id, stored.FactID); err != nil {
				return Decision{}, err
			}
		}
		return Decision{Action: ActionSupersede, Fact: stored, SupersededFactID: targets}, nil

	default: // ActionAdd
		candidate.Status = cortex.FactActive
		stored, err := e.store.InsertFact(ctx, candidate)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Action: ActionAdd, Fact: stored}, nil
	}
}

// classify runs the external resolver when configured, validating its
// answer, and falls back to the rule-based classifier on any violation
// of the closed action set (§4.4 step 5, §9).
func (e *Engine) classify(ctx context.Context, candidate cortex.Fact, matches []cortex.Fact) (Resolution, error) {
	if e.resolver != nil {
		res, err := e.resolver(ctx, candidate, matches)
		if err == nil && validResolution(res, matches) {
			return res, nil
		}
	}
	return ruleBasedClassify(candidate, matches), nil
}

func validResolution(res Resolution, matches []cortex.Fact) bool {
	switch res.Action {
	case ActionAdd, ActionUpdate, ActionSupersede, ActionNone:
	default:
		return false
	}
	known := make(map[string]bool, len(matches))
	for _, m := range matches {
		known[m.FactID] = true
	}
	for _, id := range res.Supersedes {
		if !known[id] {
			return false
		}
	}
	return true
}

// ruleBasedClassify implements §4.4 step 3 deterministically: no match is
// ADD; identical object, confidence, and source type is NONE (duplicate);
// identical object with new confidence/source is UPDATE; differing object
// is SUPERSEDE.
func ruleBasedClassify(candidate cortex.Fact, matches []cortex.Fact) Resolution {
	if len(matches) == 0 {
		return Resolution{Action: ActionAdd}
	}
	best := matches[0]
	if best.Object == candidate.Object {
		if best.Confidence == candidate.Confidence && best.SourceType == candidate.SourceType {
			return Resolution{Action: ActionNone}
		}
		return Resolution{Action: ActionUpdate}
	}
	return Resolution{Action: ActionSupersede}
}

// rankMatches orders candidates per §4.4 step 4: exact triple first (here
// all matches already share subject+predicate, so this ranks by object
// equality), then highest confidence, then newest.
func rankMatches(candidate cortex.Fact, matches []cortex.Fact) []cortex.Fact {
	sort.SliceStable(matches, func(i, j int) bool {
		iExact := matches[i].Object == candidate.Object
		jExact := matches[j].Object == candidate.Object
		if iExact != jExact {
			return iExact
		}
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].CreatedAt > matches[j].CreatedAt
	})
	return matches
}

// filterBySlotSignature narrows subject+predicate+factType matches down
// to those also sharing the candidate's declared slot keys and values,
// so two facts of different shapes under the same triple never supersede
// each other (§4.4 step 1).
func filterBySlotSignature(candidate cortex.Fact, matches []cortex.Fact) []cortex.Fact {
	want := SlotSignature(candidate)
	out := matches[:0]
	for _, m := range matches {
		if SlotSignature(m) == want {
			out = append(out, m)
		}
	}
	return out
}

// SlotSignature normalizes a candidate fact's comparison key, combining
// the triple with any declared slot keys (§4.4 step 1).
func SlotSignature(f cortex.Fact) string {
	sig := f.Subject + "|" + f.Predicate + "|" + string(f.FactType)
	keys := make([]string, 0, len(f.Slots))
	for k := range f.Slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sig += "|" + k + "=" + f.Slots[k]
	}
	return sig
}
