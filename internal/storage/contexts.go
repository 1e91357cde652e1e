package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"

	"github.com/google/uuid"
	"github.com/kittclouds/cortex/pkg/cortex"
)

// DefaultMaxContextDepth is contexts.maxDepth's default (§6).
const DefaultMaxContextDepth = 16

// CreateContext inserts a context node, deriving depth from the parent
// (0 at root) and enforcing the max-depth limit (§3, §6).
func (s *Store) CreateContext(ctx context.Context, c cortex.Context, now int64, maxDepth int) (cortex.Context, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxContextDepth
	}
	c.ContextID = uuid.NewString()
	c.CreatedAt = now
	c.Depth = 0

	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return cortex.Context{}, translate("create context", err)
	}
	defer tx.Rollback()

	if c.ParentID != "" {
		var parentDepth int
		if err := tx.QueryRowContext(ctx, `SELECT depth FROM contexts WHERE memory_space_id = ? AND context_id = ?`,
			c.MemorySpaceID, c.ParentID).Scan(&parentDepth); err != nil {
			return cortex.Context{}, translate("create context: parent", err)
		}
		if parentDepth+1 > maxDepth {
			return cortex.Context{}, cortex.NewError(cortex.KindDependencyCycle, "context depth exceeds max", nil)
		}
		c.Depth = parentDepth + 1
	}

	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return cortex.Context{}, err
	}
	var convID sql.NullString
	if c.ConversationRef != nil {
		convID = sql.NullString{String: c.ConversationRef.ConversationID, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO contexts (context_id, memory_space_id, purpose, parent_id, depth, child_ids,
			user_id, conversation_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, '[]', ?, ?, ?, ?)`,
		c.ContextID, c.MemorySpaceID, c.Purpose, nullIfEmpty(c.ParentID), c.Depth,
		c.UserID, convID, string(meta), c.CreatedAt)
	if err != nil {
		return cortex.Context{}, translate("create context", err)
	}

	if c.ParentID != "" {
		if err := appendChildTx(ctx, tx, c.MemorySpaceID, c.ParentID, c.ContextID); err != nil {
			return cortex.Context{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return cortex.Context{}, translate("create context", err)
	}
	return c, nil
}

func appendChildTx(ctx context.Context, tx *sql.Tx, memorySpaceID, parentID, childID string) error {
	var raw sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT child_ids FROM contexts WHERE memory_space_id = ? AND context_id = ?`,
		memorySpaceID, parentID).Scan(&raw); err != nil {
		return translate("append child", err)
	}
	var children []string
	if raw.Valid {
		_ = json.Unmarshal([]byte(raw.String), &children)
	}
	children = append(children, childID)
	encoded, _ := json.Marshal(children)
	if _, err := tx.ExecContext(ctx, `UPDATE contexts SET child_ids = ? WHERE memory_space_id = ? AND context_id = ?`,
		string(encoded), memorySpaceID, parentID); err != nil {
		return translate("append child", err)
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// GetContext returns a single context node.
func (s *Store) GetContext(ctx context.Context, memorySpaceID, contextID string) (cortex.Context, error) {
	var c cortex.Context
	var parentID, convID, meta, childIDs sql.NullString
	var archivedAt sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT context_id, memory_space_id, purpose, parent_id, depth, child_ids, user_id, conversation_id, metadata, created_at, archived_at
		FROM contexts WHERE memory_space_id = ? AND context_id = ?`, memorySpaceID, contextID,
	).Scan(&c.ContextID, &c.MemorySpaceID, &c.Purpose, &parentID, &c.Depth, &childIDs, &c.UserID, &convID, &meta, &c.CreatedAt, &archivedAt)
	if err != nil {
		return cortex.Context{}, translate("get context", err)
	}
	c.ParentID = parentID.String
	if convID.Valid && convID.String != "" {
		c.ConversationRef = &cortex.ConversationRef{ConversationID: convID.String}
	}
	if meta.Valid {
		_ = json.Unmarshal([]byte(meta.String), &c.Metadata)
	}
	if childIDs.Valid {
		_ = json.Unmarshal([]byte(childIDs.String), &c.ChildIDs)
	}
	if archivedAt.Valid {
		c.ArchivedAt = &archivedAt.Int64
	}
	return c, nil
}

// ListContexts returns every context in a space.
func (s *Store) ListContexts(ctx context.Context, memorySpaceID string) ([]cortex.Context, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT context_id FROM contexts WHERE memory_space_id = ? ORDER BY created_at`, memorySpaceID)
	if err != nil {
		return nil, translate("list contexts", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, translate("list contexts", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	out := make([]cortex.Context, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetContext(ctx, memorySpaceID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// GetChain returns the root-to-node path for a context (§6 getChain).
func (s *Store) GetChain(ctx context.Context, memorySpaceID, contextID string) ([]cortex.Context, error) {
	var chain []cortex.Context
	cur := contextID
	for cur != "" {
		c, err := s.GetContext(ctx, memorySpaceID, cur)
		if err != nil {
			return nil, err
		}
		chain = append(chain, c)
		cur = c.ParentID
	}
	sort.SliceStable(chain, func(i, j int) bool { return chain[i].Depth < chain[j].Depth })
	return chain, nil
}

// DeleteContext removes a context and, recursively, its descendants,
// children-first by depth descending (§4.7).
func (s *Store) DeleteContext(ctx context.Context, memorySpaceID, contextID string) error {
	all, err := s.ListContexts(ctx, memorySpaceID)
	if err != nil {
		return err
	}
	toDelete := collectSubtree(all, contextID)
	sort.Slice(toDelete, func(i, j int) bool { return toDelete[i].Depth > toDelete[j].Depth })

	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return translate("delete context", err)
	}
	defer tx.Rollback()

	for _, c := range toDelete {
		if _, err := tx.ExecContext(ctx, `DELETE FROM contexts WHERE memory_space_id = ? AND context_id = ?`,
			memorySpaceID, c.ContextID); err != nil {
			return translate("delete context", err)
		}
	}
	return translate("delete context", tx.Commit())
}

// ArchiveContext marks a context subtree's rows with archived_at=now
// instead of physically deleting them, for forget(archiveOnly=true)
// (§4.7). It returns the number of contexts archived.
func (s *Store) ArchiveContext(ctx context.Context, memorySpaceID, contextID string, now int64) (int, error) {
	all, err := s.ListContexts(ctx, memorySpaceID)
	if err != nil {
		return 0, err
	}
	toArchive := collectSubtree(all, contextID)

	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return 0, translate("archive context", err)
	}
	defer tx.Rollback()

	for _, c := range toArchive {
		if _, err := tx.ExecContext(ctx, `UPDATE contexts SET archived_at = ? WHERE memory_space_id = ? AND context_id = ?`,
			now, memorySpaceID, c.ContextID); err != nil {
			return 0, translate("archive context", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, translate("archive context", err)
	}
	return len(toArchive), nil
}

// ContextSubtreeSize reports how many context nodes DeleteContext or
// ArchiveContext would affect for the given root, without mutating
// anything.
func (s *Store) ContextSubtreeSize(ctx context.Context, memorySpaceID, contextID string) (int, error) {
	all, err := s.ListContexts(ctx, memorySpaceID)
	if err != nil {
		return 0, err
	}
	return len(collectSubtree(all, contextID)), nil
}

func collectSubtree(all []cortex.Context, rootID string) []cortex.Context {
	byParent := make(map[string][]cortex.Context)
	byID := make(map[string]cortex.Context)
	for _, c := range all {
		byParent[c.ParentID] = append(byParent[c.ParentID], c)
		byID[c.ContextID] = c
	}

	var out []cortex.Context
	var walk func(id string)
	walk = func(id string) {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
		for _, child := range byParent[id] {
			walk(child.ContextID)
		}
	}
	walk(rootID)
	return out
}
