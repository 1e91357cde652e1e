package orchestrator

// Status is the lifecycle state of one orchestration layer event (§4.6).
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
	StatusSkipped    Status = "skipped"
)

// LayerEvent is emitted on every state transition of a remember
// orchestration. Forget emits no layer events.
type LayerEvent struct {
	Layer            string
	Status           Status
	LatencyMs        int64
	Data             map[string]string
	Error            string
	RevisionAction   string
	SupersededFacts  []string
}

// Observer receives orchestration lifecycle callbacks. Implementations
// must be non-blocking; a slow observer stalls the orchestration that
// calls it (§5, §9).
type Observer interface {
	OnOrchestrationStart(orchestrationID string)
	OnLayerUpdate(orchestrationID string, event LayerEvent)
	OnOrchestrationComplete(orchestrationID string, totalLatencyMs int64, createdIDs map[string]string)
}

// NopObserver discards every callback, for callers that don't need
// progress events.
type NopObserver struct{}

func (NopObserver) OnOrchestrationStart(string)                                {}
func (NopObserver) OnLayerUpdate(string, LayerEvent)                           {}
func (NopObserver) OnOrchestrationComplete(string, int64, map[string]string)   {}
