package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/kittclouds/cortex/pkg/cortex"
)

// CreateConversation allocates a new, empty conversation (§4.2).
func (s *Store) CreateConversation(ctx context.Context, memorySpaceID string, typ cortex.ConversationType, participants []cortex.Participant, now int64) (cortex.Conversation, error) {
	if _, err := s.GetSpace(ctx, memorySpaceID); err != nil {
		return cortex.Conversation{}, err
	}

	p, err := json.Marshal(participants)
	if err != nil {
		return cortex.Conversation{}, err
	}

	c := cortex.Conversation{
		ConversationID: uuid.NewString(),
		MemorySpaceID:  memorySpaceID,
		Type:           typ,
		Participants:   participants,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (conversation_id, memory_space_id, type, participants, message_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		c.ConversationID, c.MemorySpaceID, string(c.Type), string(p), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return cortex.Conversation{}, translate("create conversation", err)
	}
	return c, nil
}

// AddMessage atomically assigns a message id, appends it, and bumps the
// conversation's message count and updatedAt (§4.2). Message ordering is
// enforced by the UNIQUE(conversation_id, position) constraint.
func (s *Store) AddMessage(ctx context.Context, conversationID, role, content string, timestamp int64) (cortex.Message, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return cortex.Message{}, translate("add message", err)
	}
	defer tx.Rollback()

	var position, messageCount int
	err = tx.QueryRowContext(ctx, `SELECT message_count FROM conversations WHERE conversation_id = ?`, conversationID).Scan(&messageCount)
	if err != nil {
		return cortex.Message{}, translate("add message", err)
	}
	position = messageCount

	msg := cortex.Message{ID: uuid.NewString(), Role: role, Content: content, Timestamp: timestamp}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, position, role, content, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, conversationID, position, msg.Role, msg.Content, msg.Timestamp)
	if err != nil {
		return cortex.Message{}, translate("add message", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET message_count = message_count + 1, updated_at = ? WHERE conversation_id = ?`,
		timestamp, conversationID)
	if err != nil {
		return cortex.Message{}, translate("add message", err)
	}

	if err := tx.Commit(); err != nil {
		return cortex.Message{}, translate("add message", err)
	}
	return msg, nil
}

// GetConversation returns a conversation with its messages in position
// order.
func (s *Store) GetConversation(ctx context.Context, id string) (cortex.Conversation, error) {
	var c cortex.Conversation
	var typ string
	var participants sql.NullString
	var archivedAt sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, memory_space_id, type, participants, message_count, created_at, updated_at, archived_at
		FROM conversations WHERE conversation_id = ?`, id,
	).Scan(&c.ConversationID, &c.MemorySpaceID, &typ, &participants, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt, &archivedAt)
	if err != nil {
		return cortex.Conversation{}, translate("get conversation", err)
	}
	c.Type = cortex.ConversationType(typ)
	if participants.Valid && participants.String != "" {
		_ = json.Unmarshal([]byte(participants.String), &c.Participants)
	}
	if archivedAt.Valid {
		c.ArchivedAt = &archivedAt.Int64
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, timestamp FROM messages WHERE conversation_id = ? ORDER BY position ASC`, id)
	if err != nil {
		return cortex.Conversation{}, translate("get conversation messages", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m cortex.Message
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return cortex.Conversation{}, translate("get conversation messages", err)
		}
		c.Messages = append(c.Messages, m)
	}
	return c, rows.Err()
}

// DeleteConversation removes a conversation and its messages. References
// from memories/facts are cleared, not cascaded, per §4.2.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return translate("delete conversation", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE memories SET conversation_id = NULL WHERE conversation_id = ?`, id); err != nil {
		return translate("delete conversation", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE facts SET source_ref = json_set(source_ref, '$.conversationId', '')
		WHERE source_ref IS NOT NULL AND json_extract(source_ref, '$.conversationId') = ?`, id); err != nil {
		return translate("delete conversation", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return translate("delete conversation", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_id = ?`, id); err != nil {
		return translate("delete conversation", err)
	}
	return translate("delete conversation", tx.Commit())
}

// ArchiveConversation marks a conversation archived without deleting it
// or its messages, for forget(archiveOnly=true) (§4.7).
func (s *Store) ArchiveConversation(ctx context.Context, id string, now int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET archived_at = ? WHERE conversation_id = ?`, now, id)
	if err != nil {
		return translate("archive conversation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translate("archive conversation", err)
	}
	if n == 0 {
		return cortex.NewError(cortex.KindNotFound, "conversation not found", nil)
	}
	return nil
}
