// Package graphmirror defines the boundary the core knows about for the
// optional property-graph projection (§4.8): a small adapter interface
// plus the mirroring logic that keeps it in sync with the canonical
// layers. The graph engine itself is out of scope (§1); only the
// adapter contract and the write-through/rebuild logic live here.
package graphmirror

import "context"

// Node is a labeled vertex in the mirrored graph.
type Node struct {
	ID         string
	Label      string // e.g. "MemorySpace", "Conversation", "Memory", "Fact", "Context", "Entity", "User"
	Properties map[string]string
}

// Edge is a directed, typed relationship between two mirrored nodes.
type Edge struct {
	ID         string
	SourceID   string
	TargetID   string
	Type       string // e.g. CONTAINS, CHILD_OF, MENTIONS, SUPERSEDES, SENT_TO
	Properties map[string]string
}

// PathResult is one path returned by FindPath, as an ordered node id
// sequence with the edges connecting consecutive nodes.
type PathResult struct {
	NodeIDs []string
	EdgeIDs []string
}

// Adapter is the only boundary the core knows about for the graph mirror
// (§4.8). A concrete implementation (e.g. a Cypher-speaking client) is
// supplied by the caller; the core never imports a specific graph
// engine.
type Adapter interface {
	Connect(ctx context.Context) error

	CreateNode(ctx context.Context, n Node) error
	UpdateNode(ctx context.Context, n Node) error
	DeleteNode(ctx context.Context, id string) error

	CreateEdge(ctx context.Context, e Edge) error
	DeleteEdge(ctx context.Context, id string) error

	Query(ctx context.Context, cypher string, params map[string]interface{}) ([]map[string]interface{}, error)
	Traverse(ctx context.Context, fromID string, maxHops int) ([]Node, error)
	FindPath(ctx context.Context, fromID, toID string) (*PathResult, error)

	CountNodes(ctx context.Context) (int64, error)
	CountEdges(ctx context.Context) (int64, error)

	ClearDatabase(ctx context.Context) error
	BatchWrite(ctx context.Context, nodes []Node, edges []Edge) error
}
