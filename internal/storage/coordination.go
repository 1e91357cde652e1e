package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kittclouds/cortex/pkg/cortex"
)

// RegisterSpace idempotently creates a memory space. Re-registering an
// existing space is a no-op that returns the existing record, matching
// the Orchestrator's spaceCheck state (§4.6).
func (s *Store) RegisterSpace(ctx context.Context, sp cortex.MemorySpace) (cortex.MemorySpace, bool, error) {
	existing, err := s.GetSpace(ctx, sp.MemorySpaceID)
	if err == nil {
		return existing, false, nil
	}
	if !isNotFound(err) {
		return cortex.MemorySpace{}, false, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_spaces (memory_space_id, name, type, dimension, owner_user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sp.MemorySpaceID, sp.Name, string(sp.Type), sp.Dimension, nullIfEmpty(sp.OwnerUserID), sp.CreatedAt)
	if err != nil {
		return cortex.MemorySpace{}, false, translate("register space", err)
	}
	return sp, true, nil
}

// GetSpace returns a memory space by id.
func (s *Store) GetSpace(ctx context.Context, id string) (cortex.MemorySpace, error) {
	var sp cortex.MemorySpace
	var typ string
	var owner sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT memory_space_id, name, type, dimension, owner_user_id, created_at FROM memory_spaces WHERE memory_space_id = ?`, id,
	).Scan(&sp.MemorySpaceID, &sp.Name, &typ, &sp.Dimension, &owner, &sp.CreatedAt)
	if err != nil {
		return cortex.MemorySpace{}, translate("get space", err)
	}
	sp.Type = cortex.SpaceType(typ)
	sp.OwnerUserID = owner.String
	return sp, nil
}

// ListSpacesByOwner returns every memory space owned by a user, used by
// the Orchestrator's User.delete(cascade=true) to iterate owned spaces
// (§4.7).
func (s *Store) ListSpacesByOwner(ctx context.Context, ownerUserID string) ([]cortex.MemorySpace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_space_id, name, type, dimension, owner_user_id, created_at
		FROM memory_spaces WHERE owner_user_id = ?`, ownerUserID)
	if err != nil {
		return nil, translate("list spaces by owner", err)
	}
	defer rows.Close()

	var out []cortex.MemorySpace
	for rows.Next() {
		var sp cortex.MemorySpace
		var typ string
		var owner sql.NullString
		if err := rows.Scan(&sp.MemorySpaceID, &sp.Name, &typ, &sp.Dimension, &owner, &sp.CreatedAt); err != nil {
			return nil, translate("list spaces by owner", err)
		}
		sp.Type = cortex.SpaceType(typ)
		sp.OwnerUserID = owner.String
		out = append(out, sp)
	}
	return out, rows.Err()
}

// SetSpaceDimension fixes the embedding dimension for a space on its
// first vector insert (§3 Memory invariant: "dimension declared at space
// creation"). Fails with EmbeddingShape if the dimension is already set
// to a different value.
func (s *Store) SetSpaceDimension(ctx context.Context, memorySpaceID string, dim int) error {
	sp, err := s.GetSpace(ctx, memorySpaceID)
	if err != nil {
		return err
	}
	if sp.Dimension != 0 && sp.Dimension != dim {
		return cortex.NewError(cortex.KindEmbeddingShape, "space dimension already fixed", nil)
	}
	if sp.Dimension == dim {
		return nil
	}
	_, err = s.db.ExecContext(ctx, `UPDATE memory_spaces SET dimension = ? WHERE memory_space_id = ?`, dim, memorySpaceID)
	if err != nil {
		return translate("set space dimension", err)
	}
	return nil
}

// UpsertUser idempotently creates or updates a user record.
func (s *Store) UpsertUser(ctx context.Context, u cortex.User) error {
	meta, err := json.Marshal(u.Metadata)
	if err != nil {
		return fmt.Errorf("marshal user metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, display_name, email, metadata) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET display_name = excluded.display_name,
			email = excluded.email, metadata = excluded.metadata`,
		u.UserID, u.DisplayName, u.Email, string(meta))
	if err != nil {
		return translate("upsert user", err)
	}
	return nil
}

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (cortex.User, error) {
	var u cortex.User
	var meta sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT user_id, display_name, email, metadata FROM users WHERE user_id = ?`, id).
		Scan(&u.UserID, &u.DisplayName, &u.Email, &meta)
	if err != nil {
		return cortex.User{}, translate("get user", err)
	}
	if meta.Valid && meta.String != "" {
		_ = json.Unmarshal([]byte(meta.String), &u.Metadata)
	}
	return u, nil
}

// DeleteUser removes a user record. Cascading deletion of the spaces a
// user owns is the Orchestrator's responsibility (§4.7); the Storage
// Runtime only deletes the row itself.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, id)
	if err != nil {
		return translate("delete user", err)
	}
	return nil
}

// RegisterAgent idempotently creates or updates an agent record.
func (s *Store) RegisterAgent(ctx context.Context, a cortex.Agent) error {
	caps, err := json.Marshal(a.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal agent capabilities: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (agent_id, name, capabilities, provider) VALUES (?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET name = excluded.name,
			capabilities = excluded.capabilities, provider = excluded.provider`,
		a.AgentID, a.Name, string(caps), a.Provider)
	if err != nil {
		return translate("register agent", err)
	}
	return nil
}

// ListAgents returns all registered agents.
func (s *Store) ListAgents(ctx context.Context) ([]cortex.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT agent_id, name, capabilities, provider FROM agents`)
	if err != nil {
		return nil, translate("list agents", err)
	}
	defer rows.Close()

	var out []cortex.Agent
	for rows.Next() {
		var a cortex.Agent
		var caps sql.NullString
		if err := rows.Scan(&a.AgentID, &a.Name, &caps, &a.Provider); err != nil {
			return nil, translate("list agents", err)
		}
		if caps.Valid && caps.String != "" {
			_ = json.Unmarshal([]byte(caps.String), &a.Capabilities)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UnregisterAgent removes an agent record.
func (s *Store) UnregisterAgent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE agent_id = ?`, id)
	if err != nil {
		return translate("unregister agent", err)
	}
	return nil
}

func isNotFound(err error) bool {
	return err != nil && errorIsKind(err, cortex.KindNotFound)
}

func errorIsKind(err error, kind cortex.Kind) bool {
	ce, ok := err.(*cortex.Error)
	return ok && ce.Kind == kind
}
