package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kittclouds/cortex/pkg/cortex"
)

// Snapshot is the serialized form of one memory space, produced by
// ExportSpace and consumed by ImportSpace (§12, generalized from the
// teacher's whole-database Export/Import).
type Snapshot struct {
	Space         cortex.MemorySpace    `json:"space"`
	Conversations []cortex.Conversation `json:"conversations"`
	Memories      []cortex.Memory       `json:"memories"`
	Facts         []cortex.Fact         `json:"facts"`
	Contexts      []cortex.Context      `json:"contexts"`
}

// ExportSpace serializes one memory space to JSON, independent of
// SQLite's own on-disk format, so it can be moved between deployments or
// archived for compliance. The snapshot holds every conversation (with
// its messages) and context of the space, the current non-archived
// version of each memory, and the active facts. Archived memory
// versions, non-active facts, and embeddings are not included.
func (s *Store) ExportSpace(ctx context.Context, memorySpaceID string) (*Snapshot, error) {
	space, err := s.GetSpace(ctx, memorySpaceID)
	if err != nil {
		return nil, err
	}

	convIDs, err := s.listConversationIDs(ctx, memorySpaceID)
	if err != nil {
		return nil, err
	}
	convs := make([]cortex.Conversation, 0, len(convIDs))
	for _, id := range convIDs {
		c, err := s.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}

	memories, err := s.ListMemories(ctx, memorySpaceID, 1<<30)
	if err != nil {
		return nil, err
	}
	facts, err := s.ListFacts(ctx, memorySpaceID, 1<<30)
	if err != nil {
		return nil, err
	}
	contexts, err := s.ListContexts(ctx, memorySpaceID)
	if err != nil {
		return nil, err
	}

	return &Snapshot{Space: space, Conversations: convs, Memories: memories, Facts: facts, Contexts: contexts}, nil
}

func (s *Store) listConversationIDs(ctx context.Context, memorySpaceID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT conversation_id FROM conversations WHERE memory_space_id = ? ORDER BY created_at DESC`, memorySpaceID)
	if err != nil {
		return nil, translate("list conversation ids", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, translate("list conversation ids", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarshalSnapshot is a thin wrapper kept symmetrical with
// UnmarshalSnapshot for callers that want a single JSON blob.
func MarshalSnapshot(snap *Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

// UnmarshalSnapshot parses a previously exported snapshot.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// ImportSpace restores a previously exported snapshot into a (typically
// empty) store, recreating the space, its conversations and messages,
// and the memories, facts, and context tree the snapshot carries. The
// archived_at stamps of conversations and contexts are not restored.
func (s *Store) ImportSpace(ctx context.Context, snap *Snapshot) error {
	if _, _, err := s.RegisterSpace(ctx, snap.Space); err != nil {
		return err
	}

	for _, c := range snap.Conversations {
		participants, err := json.Marshal(c.Participants)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO conversations (conversation_id, memory_space_id, type, participants, message_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ConversationID, c.MemorySpaceID, string(c.Type), string(participants), c.MessageCount, c.CreatedAt, c.UpdatedAt); err != nil {
			return translate("import conversation", err)
		}
		for i, m := range c.Messages {
			if _, err := s.db.ExecContext(ctx, `
				INSERT OR REPLACE INTO messages (id, conversation_id, position, role, content, timestamp)
				VALUES (?, ?, ?, ?, ?, ?)`, m.ID, c.ConversationID, i, m.Role, m.Content, m.Timestamp); err != nil {
				return translate("import message", err)
			}
		}
	}

	for _, m := range snap.Memories {
		if err := s.writeMemoryRow(ctx, m); err != nil {
			return err
		}
		if len(m.Embedding) > 0 {
			if err := s.upsertVector(ctx, m); err != nil {
				return err
			}
		}
	}

	for _, f := range snap.Facts {
		if err := s.execInsertFact(ctx, s.db, f); err != nil {
			return err
		}
	}

	for _, c := range snap.Contexts {
		meta, _ := json.Marshal(c.Metadata)
		children, _ := json.Marshal(c.ChildIDs)
		var convID interface{}
		if c.ConversationRef != nil {
			convID = c.ConversationRef.ConversationID
		}
		if _, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO contexts (context_id, memory_space_id, purpose, parent_id, depth, child_ids,
				user_id, conversation_id, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ContextID, c.MemorySpaceID, c.Purpose, nullIfEmpty(c.ParentID), c.Depth, string(children),
			c.UserID, convID, string(meta), c.CreatedAt); err != nil {
			return translate("import context", err)
		}
	}

	return nil
}
