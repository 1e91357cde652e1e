// Package cortex defines the public data model and error taxonomy of the
// memory orchestration engine: memory spaces, users, agents,
// conversations, memories, facts, and contexts, plus the orchestrated
// remember/recall/forget surface built on top of them.
package cortex

// SpaceType enumerates memory space isolation modes.
type SpaceType string

const (
	SpacePersonal SpaceType = "personal"
	SpaceTeam     SpaceType = "team"
	SpaceShared   SpaceType = "shared"
)

// MemorySpace is the isolation boundary: every other entity carries a
// MemorySpaceID and cross-space queries are disallowed.
type MemorySpace struct {
	MemorySpaceID string    `json:"memorySpaceId"`
	Name          string    `json:"name"`
	Type          SpaceType `json:"type"`
	Dimension     int       `json:"dimension,omitempty"`
	OwnerUserID   string    `json:"ownerUserId,omitempty"`
	CreatedAt     int64     `json:"createdAt"`
}

// User is a human identity, shared by reference across memory spaces.
type User struct {
	UserID      string            `json:"userId"`
	DisplayName string            `json:"displayName,omitempty"`
	Email       string            `json:"email,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Agent is an AI participant, referenced weakly by messages and memories.
type Agent struct {
	AgentID      string   `json:"agentId"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities,omitempty"`
	Provider     string   `json:"provider,omitempty"`
}

// ConversationType enumerates conversation kinds.
type ConversationType string

const (
	ConvUserAgent ConversationType = "user-agent"
	ConvA2A       ConversationType = "a2a"
	ConvSystem    ConversationType = "system"
)

// Participant binds a user or agent to a role within a conversation.
type Participant struct {
	UserID        string `json:"userId,omitempty"`
	ParticipantID string `json:"participantId,omitempty"`
	Role          string `json:"role,omitempty"`
}

// Message is one append-only turn inside a Conversation.
type Message struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Conversation is an ordered, append-only message sequence (Layer 1a).
type Conversation struct {
	ConversationID string           `json:"conversationId"`
	MemorySpaceID  string           `json:"memorySpaceId"`
	Type           ConversationType `json:"type"`
	Participants   []Participant    `json:"participants,omitempty"`
	Messages       []Message        `json:"messages"`
	MessageCount   int              `json:"messageCount"`
	CreatedAt      int64            `json:"createdAt"`
	UpdatedAt      int64            `json:"updatedAt"`
	ArchivedAt     *int64           `json:"archivedAt,omitempty"`
}

// ContentType enumerates how a Memory's content was produced.
type ContentType string

const (
	ContentRaw        ContentType = "raw"
	ContentSummarized ContentType = "summarized"
	ContentSynthetic  ContentType = "synthetic"
)

// MemorySource records who or what produced a Memory.
type MemorySource struct {
	Type            string `json:"type"`
	UserID          string `json:"userId,omitempty"`
	UserName        string `json:"userName,omitempty"`
	FromMemorySpace string `json:"fromMemorySpace,omitempty"`
	ToMemorySpace   string `json:"toMemorySpace,omitempty"`
}

// ConversationRef ties a Memory or Fact back to its originating turns.
type ConversationRef struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds,omitempty"`
}

// Memory is a searchable recollection (Layer 2).
type Memory struct {
	MemoryID        string           `json:"memoryId"`
	MemorySpaceID   string           `json:"memorySpaceId"`
	Content         string           `json:"content"`
	ContentType     ContentType      `json:"contentType"`
	Embedding       []float32        `json:"embedding,omitempty"`
	UserID          string           `json:"userId,omitempty"`
	Source          MemorySource     `json:"source"`
	ConversationRef *ConversationRef `json:"conversationRef,omitempty"`
	Tags            []string         `json:"tags,omitempty"`
	Importance      int              `json:"importance"`
	CreatedAt       int64            `json:"createdAt"`
	Version         int              `json:"version"`
	ArchivedAt      *int64           `json:"archivedAt,omitempty"`
}

// FactType enumerates the nature of a structured belief.
type FactType string

const (
	FactKnowledge   FactType = "knowledge"
	FactPreference  FactType = "preference"
	FactRelationship FactType = "relationship"
	FactEvent       FactType = "event"
	FactRule        FactType = "rule"
)

// FactStatus enumerates a fact's position in the belief-revision DAG.
type FactStatus string

const (
	FactActive     FactStatus = "active"
	FactSuperseded FactStatus = "superseded"
	FactDuplicate  FactStatus = "duplicate"
	FactRetracted  FactStatus = "retracted"
)

// FactSourceRef identifies where a fact was extracted from.
type FactSourceRef struct {
	ConversationID string `json:"conversationId,omitempty"`
	MemoryID       string `json:"memoryId,omitempty"`
}

// Fact is a structured belief (Layer 3).
type Fact struct {
	FactID        string            `json:"factId"`
	MemorySpaceID string            `json:"memorySpaceId"`
	Fact          string            `json:"fact"`
	FactType      FactType          `json:"factType"`
	Subject       string            `json:"subject,omitempty"`
	Predicate     string            `json:"predicate,omitempty"`
	Object        string            `json:"object,omitempty"`
	Slots         map[string]string `json:"slots,omitempty"`
	Confidence    int               `json:"confidence"`
	SourceType    string            `json:"sourceType,omitempty"`
	SourceRef     *FactSourceRef    `json:"sourceRef,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Status        FactStatus        `json:"status"`
	Supersedes    []string          `json:"supersedes,omitempty"`
	SupersededBy  string            `json:"supersededBy,omitempty"`
	CreatedAt     int64             `json:"createdAt"`
	ArchivedAt    *int64            `json:"archivedAt,omitempty"`
}

// Context is a workflow node forming a rooted tree per memory space
// (Layer 4).
type Context struct {
	ContextID       string            `json:"contextId"`
	MemorySpaceID   string            `json:"memorySpaceId"`
	Purpose         string            `json:"purpose"`
	ParentID        string            `json:"parentId,omitempty"`
	Depth           int               `json:"depth"`
	ChildIDs        []string          `json:"childIds,omitempty"`
	UserID          string            `json:"userId,omitempty"`
	ConversationRef *ConversationRef  `json:"conversationRef,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       int64             `json:"createdAt"`
	ArchivedAt      *int64            `json:"archivedAt,omitempty"`
}
