package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/kittclouds/cortex/pkg/cortex"
)

// DefaultVersionCap is the per-memory version retention default named in
// §6 (versions.perMemory).
const DefaultVersionCap = 10

// StoreMemory inserts a new Layer 2 record at version 1. If an embedding
// is present, the space's dimension is fixed (or validated) and the
// vector is mirrored into the per-dimension vec0 table.
func (s *Store) StoreMemory(ctx context.Context, m cortex.Memory) (cortex.Memory, error) {
	if len(m.Embedding) > 0 {
		if err := s.SetSpaceDimension(ctx, m.MemorySpaceID, len(m.Embedding)); err != nil {
			return cortex.Memory{}, err
		}
	}

	m.MemoryID = uuid.NewString()
	m.Version = 1

	if err := s.writeMemoryRow(ctx, m); err != nil {
		return cortex.Memory{}, err
	}
	if len(m.Embedding) > 0 {
		if err := s.upsertVector(ctx, m); err != nil {
			return cortex.Memory{}, err
		}
	}
	return m, nil
}

func (s *Store) writeMemoryRow(ctx context.Context, m cortex.Memory) error {
	source, err := json.Marshal(m.Source)
	if err != nil {
		return err
	}
	var convID sql.NullString
	var msgIDs []byte
	if m.ConversationRef != nil {
		convID = sql.NullString{String: m.ConversationRef.ConversationID, Valid: true}
		msgIDs, _ = json.Marshal(m.ConversationRef.MessageIDs)
	}
	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return err
	}
	var embedding []byte
	if len(m.Embedding) > 0 {
		embedding, err = serializeEmbedding(m.Embedding)
		if err != nil {
			return err
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (memory_id, version, memory_space_id, content, content_type, embedding,
			embedding_dim, user_id, source, conversation_id, message_ids, tags, importance, created_at,
			archived_at, is_current)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		m.MemoryID, m.Version, m.MemorySpaceID, m.Content, string(m.ContentType), embedding,
		len(m.Embedding), m.UserID, string(source), convID, string(msgIDs), string(tags),
		m.Importance, m.CreatedAt, m.ArchivedAt)
	if err != nil {
		return translate("store memory", err)
	}
	return nil
}

func (s *Store) upsertVector(ctx context.Context, m cortex.Memory) error {
	table, err := s.ensureVecTable(ctx, len(m.Embedding))
	if err != nil {
		return err
	}
	blob, err := serializeEmbedding(m.Embedding)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO `+table+` (memory_id, memory_space_id, embedding) VALUES (?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET embedding = excluded.embedding`,
		m.MemoryID, m.MemorySpaceID, blob)
	if err != nil {
		return translate("index embedding", err)
	}
	return nil
}

// ListMemories returns the current version of every memory in a space,
// newest first.
func (s *Store) ListMemories(ctx context.Context, memorySpaceID string, limit int) ([]cortex.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_id, version, memory_space_id, content, content_type, embedding_dim, user_id,
			source, conversation_id, message_ids, tags, importance, created_at, archived_at
		FROM memories WHERE memory_space_id = ? AND is_current = 1 AND archived_at IS NULL
		ORDER BY created_at DESC LIMIT ?`, memorySpaceID, limit)
	if err != nil {
		return nil, translate("list memories", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func scanMemories(rows *sql.Rows) ([]cortex.Memory, error) {
	var out []cortex.Memory
	for rows.Next() {
		var m cortex.Memory
		var typ string
		var dim int
		var userID, source, convID, msgIDs, tags sql.NullString
		var archivedAt sql.NullInt64
		if err := rows.Scan(&m.MemoryID, &m.Version, &m.MemorySpaceID, &m.Content, &typ, &dim,
			&userID, &source, &convID, &msgIDs, &tags, &m.Importance, &m.CreatedAt, &archivedAt); err != nil {
			return nil, translate("scan memory", err)
		}
		m.ContentType = cortex.ContentType(typ)
		m.UserID = userID.String
		if source.Valid {
			_ = json.Unmarshal([]byte(source.String), &m.Source)
		}
		if convID.Valid && convID.String != "" {
			ref := &cortex.ConversationRef{ConversationID: convID.String}
			if msgIDs.Valid {
				_ = json.Unmarshal([]byte(msgIDs.String), &ref.MessageIDs)
			}
			m.ConversationRef = ref
		}
		if tags.Valid {
			_ = json.Unmarshal([]byte(tags.String), &m.Tags)
		}
		if archivedAt.Valid {
			v := archivedAt.Int64
			m.ArchivedAt = &v
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMemory returns the current version of a memory.
func (s *Store) GetMemory(ctx context.Context, memorySpaceID, memoryID string) (cortex.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_id, version, memory_space_id, content, content_type, embedding_dim, user_id,
			source, conversation_id, message_ids, tags, importance, created_at, archived_at
		FROM memories WHERE memory_space_id = ? AND memory_id = ? AND is_current = 1 AND archived_at IS NULL`, memorySpaceID, memoryID)
	if err != nil {
		return cortex.Memory{}, translate("get memory", err)
	}
	defer rows.Close()
	items, err := scanMemories(rows)
	if err != nil {
		return cortex.Memory{}, err
	}
	if len(items) == 0 {
		return cortex.Memory{}, cortex.NewError(cortex.KindNotFound, "get memory", nil)
	}
	return items[0], nil
}

// UpdateMemory creates a new version and archives the previous current
// row, enforcing the per-space version cap (§4.3, §3 invariant).
func (s *Store) UpdateMemory(ctx context.Context, memorySpaceID, memoryID string, patch cortex.Memory, now int64, versionCap int) (cortex.Memory, error) {
	if versionCap <= 0 {
		versionCap = DefaultVersionCap
	}

	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return cortex.Memory{}, translate("update memory", err)
	}
	defer tx.Rollback()

	var currentVersion int
	err = tx.QueryRowContext(ctx, `
		SELECT version FROM memories WHERE memory_space_id = ? AND memory_id = ? AND is_current = 1`,
		memorySpaceID, memoryID).Scan(&currentVersion)
	if err != nil {
		return cortex.Memory{}, translate("update memory", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE memories SET is_current = 0, archived_at = ?
		WHERE memory_space_id = ? AND memory_id = ? AND is_current = 1`, now, memorySpaceID, memoryID); err != nil {
		return cortex.Memory{}, translate("update memory", err)
	}

	patch.MemoryID = memoryID
	patch.MemorySpaceID = memorySpaceID
	patch.Version = currentVersion + 1
	patch.CreatedAt = now
	if err := s.writeMemoryRowTx(ctx, tx, patch); err != nil {
		return cortex.Memory{}, err
	}

	var archivedCount int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memories WHERE memory_space_id = ? AND memory_id = ? AND is_current = 0`,
		memorySpaceID, memoryID).Scan(&archivedCount); err != nil {
		return cortex.Memory{}, translate("update memory", err)
	}
	if archivedCount > versionCap {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM memories WHERE memory_space_id = ? AND memory_id = ? AND is_current = 0
			AND version = (SELECT MIN(version) FROM memories WHERE memory_space_id = ? AND memory_id = ? AND is_current = 0)`,
			memorySpaceID, memoryID, memorySpaceID, memoryID); err != nil {
			return cortex.Memory{}, translate("update memory", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return cortex.Memory{}, translate("update memory", err)
	}
	if len(patch.Embedding) > 0 {
		if err := s.upsertVector(ctx, patch); err != nil {
			return cortex.Memory{}, err
		}
	}
	return patch, nil
}

func (s *Store) writeMemoryRowTx(ctx context.Context, tx *sql.Tx, m cortex.Memory) error {
	source, err := json.Marshal(m.Source)
	if err != nil {
		return err
	}
	var convID sql.NullString
	var msgIDs []byte
	if m.ConversationRef != nil {
		convID = sql.NullString{String: m.ConversationRef.ConversationID, Valid: true}
		msgIDs, _ = json.Marshal(m.ConversationRef.MessageIDs)
	}
	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return err
	}
	var embedding []byte
	if len(m.Embedding) > 0 {
		embedding, err = serializeEmbedding(m.Embedding)
		if err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (memory_id, version, memory_space_id, content, content_type, embedding,
			embedding_dim, user_id, source, conversation_id, message_ids, tags, importance, created_at,
			archived_at, is_current)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		m.MemoryID, m.Version, m.MemorySpaceID, m.Content, string(m.ContentType), embedding,
		len(m.Embedding), m.UserID, string(source), convID, string(msgIDs), string(tags),
		m.Importance, m.CreatedAt, m.ArchivedAt)
	if err != nil {
		return translate("write memory version", err)
	}
	return nil
}

// DeleteMemory removes a memory's current and archived versions, and
// optionally cascades to facts sourced from it (§4.3).
func (s *Store) DeleteMemory(ctx context.Context, memorySpaceID, memoryID string, cascade bool) error {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return translate("delete memory", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE memory_space_id = ? AND memory_id = ?`, memorySpaceID, memoryID); err != nil {
		return translate("delete memory", err)
	}
	if cascade {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM facts WHERE memory_space_id = ? AND source_ref LIKE ?`,
			memorySpaceID, "%\""+memoryID+"\"%"); err != nil {
			return translate("delete memory cascade facts", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return translate("delete memory", err)
	}

	for dim := range s.vecDims {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM `+vecTableName(dim)+` WHERE memory_id = ?`, memoryID)
	}
	return nil
}

// ArchiveMemory marks the current version of a memory archived in place,
// without deleting it, for forget(archiveOnly=true) (§4.7). Archived
// memories no longer surface from ListMemories/GetMemory or vector
// search but remain on disk.
func (s *Store) ArchiveMemory(ctx context.Context, memorySpaceID, memoryID string, now int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET archived_at = ?
		WHERE memory_space_id = ? AND memory_id = ? AND is_current = 1`, now, memorySpaceID, memoryID)
	if err != nil {
		return translate("archive memory", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translate("archive memory", err)
	}
	if n == 0 {
		return cortex.NewError(cortex.KindNotFound, "memory not found", nil)
	}
	return nil
}

// VectorHit is one result from a k-NN search against the vec0 index.
type VectorHit struct {
	MemoryID string
	Score    float64 // cosine similarity, in [0,1], higher is better
}

// SearchVectors runs a k-nearest-neighbour query against the vec0 table
// matching the query embedding's dimension, scoped to a single memory
// space (§4.5 Vector source).
func (s *Store) SearchVectors(ctx context.Context, memorySpaceID string, query []float32, limit int) ([]VectorHit, error) {
	dim := len(query)
	s.vecMu.Lock()
	known := s.vecDims[dim]
	s.vecMu.Unlock()
	if !known {
		return nil, nil
	}
	table := vecTableName(dim)

	blob, err := serializeEmbedding(query)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_id, distance FROM `+table+`
		WHERE embedding MATCH ? AND k = ? AND memory_space_id = ?
		AND memory_id NOT IN (
			SELECT memory_id FROM memories
			WHERE memory_space_id = ? AND is_current = 1 AND archived_at IS NOT NULL
		)
		ORDER BY distance`, blob, limit, memorySpaceID, memorySpaceID)
	if err != nil {
		return nil, translate("search vectors", err)
	}
	defer rows.Close()

	var out []VectorHit
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, translate("search vectors", err)
		}
		// cosine distance in vec0 is 1 - cosine_similarity; negative
		// similarities are clamped to 0 so scores stay in [0,1].
		score := 1 - distance
		if score < 0 {
			score = 0
		}
		out = append(out, VectorHit{MemoryID: id, Score: score})
	}
	return out, rows.Err()
}
