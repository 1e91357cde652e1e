package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/kittclouds/cortex/pkg/cortex"
)

// InsertFact writes a new fact row as-is; belief revision (status
// transitions, supersedes bookkeeping) happens in the caller (pkg/belief)
// before this is invoked, per §4.4.
func (s *Store) InsertFact(ctx context.Context, f cortex.Fact) (cortex.Fact, error) {
	if f.FactID == "" {
		f.FactID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = cortex.FactActive
	}
	if err := s.execInsertFact(ctx, s.db, f); err != nil {
		return cortex.Fact{}, err
	}
	return f, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) execInsertFact(ctx context.Context, e execer, f cortex.Fact) error {
	slots, err := json.Marshal(f.Slots)
	if err != nil {
		return err
	}
	sourceRef, err := json.Marshal(f.SourceRef)
	if err != nil {
		return err
	}
	tags, err := json.Marshal(f.Tags)
	if err != nil {
		return err
	}
	supersedes, err := json.Marshal(f.Supersedes)
	if err != nil {
		return err
	}
	_, err = e.ExecContext(ctx, `
		INSERT INTO facts (fact_id, memory_space_id, fact, fact_type, subject, predicate, object,
			slots, confidence, source_type, source_ref, tags, status, supersedes, superseded_by, created_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.FactID, f.MemorySpaceID, f.Fact, string(f.FactType), f.Subject, f.Predicate, f.Object,
		string(slots), f.Confidence, f.SourceType, string(sourceRef), string(tags),
		string(f.Status), string(supersedes), f.SupersededBy, f.CreatedAt, f.ArchivedAt)
	if err != nil {
		return translate("insert fact", err)
	}
	return nil
}

// MatchingActiveFacts returns active facts in a space sharing the given
// subject/predicate — the slot signature's triple component used by
// belief revision step 2 (§4.4). When factType is non-empty the result
// is further restricted to that fact type, narrowing the signature for
// callers with slot-matching enabled.
func (s *Store) MatchingActiveFacts(ctx context.Context, memorySpaceID, subject, predicate, factType string) ([]cortex.Fact, error) {
	query := `
		SELECT fact_id, memory_space_id, fact, fact_type, subject, predicate, object, slots,
			confidence, source_type, source_ref, tags, status, supersedes, superseded_by, created_at, archived_at
		FROM facts WHERE memory_space_id = ? AND subject = ? AND predicate = ? AND status = 'active'`
	args := []interface{}{memorySpaceID, subject, predicate}
	if factType != "" {
		query += " AND fact_type = ?"
		args = append(args, factType)
	}
	query += " ORDER BY confidence DESC, created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate("match active facts", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// GetFact returns a single fact by id.
func (s *Store) GetFact(ctx context.Context, memorySpaceID, factID string) (cortex.Fact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fact_id, memory_space_id, fact, fact_type, subject, predicate, object, slots,
			confidence, source_type, source_ref, tags, status, supersedes, superseded_by, created_at, archived_at
		FROM facts WHERE memory_space_id = ? AND fact_id = ?`, memorySpaceID, factID)
	if err != nil {
		return cortex.Fact{}, translate("get fact", err)
	}
	defer rows.Close()
	facts, err := scanFacts(rows)
	if err != nil {
		return cortex.Fact{}, err
	}
	if len(facts) == 0 {
		return cortex.Fact{}, cortex.NewError(cortex.KindNotFound, "fact not found", nil)
	}
	return facts[0], nil
}

// ArchiveFact marks a fact retracted and archived rather than physically
// deleting it, for forget(archiveOnly=true) (§4.7).
func (s *Store) ArchiveFact(ctx context.Context, memorySpaceID, factID string, now int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE facts SET status = 'retracted', archived_at = ?
		WHERE memory_space_id = ? AND fact_id = ?`, now, memorySpaceID, factID)
	if err != nil {
		return translate("archive fact", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translate("archive fact", err)
	}
	if n == 0 {
		return cortex.NewError(cortex.KindNotFound, "fact not found", nil)
	}
	return nil
}

func scanFacts(rows *sql.Rows) ([]cortex.Fact, error) {
	var out []cortex.Fact
	for rows.Next() {
		var f cortex.Fact
		var factType, status string
		var slots, sourceRef, tags, supersedes, supersededBy sql.NullString
		var archivedAt sql.NullInt64
		if err := rows.Scan(&f.FactID, &f.MemorySpaceID, &f.Fact, &factType, &f.Subject, &f.Predicate,
			&f.Object, &slots, &f.Confidence, &f.SourceType, &sourceRef, &tags, &status, &supersedes,
			&supersededBy, &f.CreatedAt, &archivedAt); err != nil {
			return nil, translate("scan fact", err)
		}
		f.FactType = cortex.FactType(factType)
		f.Status = cortex.FactStatus(status)
		f.SupersededBy = supersededBy.String
		if slots.Valid {
			_ = json.Unmarshal([]byte(slots.String), &f.Slots)
		}
		if sourceRef.Valid && sourceRef.String != "" && sourceRef.String != "null" {
			f.SourceRef = &cortex.FactSourceRef{}
			_ = json.Unmarshal([]byte(sourceRef.String), f.SourceRef)
		}
		if tags.Valid {
			_ = json.Unmarshal([]byte(tags.String), &f.Tags)
		}
		if supersedes.Valid {
			_ = json.Unmarshal([]byte(supersedes.String), &f.Supersedes)
		}
		if archivedAt.Valid {
			f.ArchivedAt = &archivedAt.Int64
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SupersedeFact marks oldID superseded by newID and appends oldID to
// newID's supersedes list, within one transaction (§4.4 step 3).
func (s *Store) SupersedeFact(ctx context.Context, memorySpaceID, oldID, newID string) error {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return translate("supersede fact", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE facts SET status = 'superseded', superseded_by = ?
		WHERE memory_space_id = ? AND fact_id = ?`, newID, memorySpaceID, oldID); err != nil {
		return translate("supersede fact", err)
	}

	var supersedes []string
	var raw sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT supersedes FROM facts WHERE memory_space_id = ? AND fact_id = ?`,
		memorySpaceID, newID).Scan(&raw); err != nil {
		return translate("supersede fact", err)
	}
	if raw.Valid {
		_ = json.Unmarshal([]byte(raw.String), &supersedes)
	}
	supersedes = append(supersedes, oldID)
	encoded, _ := json.Marshal(supersedes)
	if _, err := tx.ExecContext(ctx, `UPDATE facts SET supersedes = ? WHERE memory_space_id = ? AND fact_id = ?`,
		string(encoded), memorySpaceID, newID); err != nil {
		return translate("supersede fact", err)
	}
	return translate("supersede fact", tx.Commit())
}

// ListFacts returns active facts in a space, newest first.
func (s *Store) ListFacts(ctx context.Context, memorySpaceID string, limit int) ([]cortex.Fact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fact_id, memory_space_id, fact, fact_type, subject, predicate, object, slots,
			confidence, source_type, source_ref, tags, status, supersedes, superseded_by, created_at, archived_at
		FROM facts WHERE memory_space_id = ? AND status = 'active'
		ORDER BY created_at DESC LIMIT ?`, memorySpaceID, limit)
	if err != nil {
		return nil, translate("list facts", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// FactQuery is the filter set accepted by facts.query (§6).
type FactQuery struct {
	Subject   string
	Predicate string
	Object    string
	Tags      []string
	Status    cortex.FactStatus
	Limit     int
}

// QueryFacts runs a filtered fact lookup, defaulting to active status
// when Status is unset (§4.4 read path).
func (s *Store) QueryFacts(ctx context.Context, memorySpaceID string, q FactQuery) ([]cortex.Fact, error) {
	status := q.Status
	if status == "" {
		status = cortex.FactActive
	}
	clauses := []string{"memory_space_id = ?", "status = ?"}
	args := []interface{}{memorySpaceID, string(status)}

	if q.Subject != "" {
		clauses = append(clauses, "subject = ?")
		args = append(args, q.Subject)
	}
	if q.Predicate != "" {
		clauses = append(clauses, "predicate = ?")
		args = append(args, q.Predicate)
	}
	if q.Object != "" {
		clauses = append(clauses, "object = ?")
		args = append(args, q.Object)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query := "SELECT fact_id, memory_space_id, fact, fact_type, subject, predicate, object, slots, " +
		"confidence, source_type, source_ref, tags, status, supersedes, superseded_by, created_at, archived_at " +
		"FROM facts WHERE " + strings.Join(clauses, " AND ") + " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate("query facts", err)
	}
	defer rows.Close()
	facts, err := scanFacts(rows)
	if err != nil {
		return nil, err
	}
	if len(q.Tags) == 0 {
		return facts, nil
	}
	filtered := facts[:0]
	for _, f := range facts {
		if hasAnyTag(f.Tags, q.Tags) {
			filtered = append(filtered, f)
		}
	}
	return filtered, nil
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// SearchFactsText runs a substring search over the fact string, used by
// the Facts recall source's text-match scoring tier (§4.5).
func (s *Store) SearchFactsText(ctx context.Context, memorySpaceID, text string, limit int) ([]cortex.Fact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fact_id, memory_space_id, fact, fact_type, subject, predicate, object, slots,
			confidence, source_type, source_ref, tags, status, supersedes, superseded_by, created_at, archived_at
		FROM facts WHERE memory_space_id = ? AND status = 'active' AND fact LIKE ?
		ORDER BY created_at DESC LIMIT ?`, memorySpaceID, "%"+text+"%", limit)
	if err != nil {
		return nil, translate("search facts", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// DeleteFact removes a fact, rewriting any active fact's supersedes list
// that pointed at it (§4.4 cascading rule).
func (s *Store) DeleteFact(ctx context.Context, memorySpaceID, factID string) error {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return translate("delete fact", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE facts SET supersedes = (
			SELECT json_group_array(value) FROM json_each(supersedes) WHERE value != ?
		) WHERE memory_space_id = ? AND supersedes IS NOT NULL
			AND EXISTS (SELECT 1 FROM json_each(supersedes) WHERE value = ?)`, factID, memorySpaceID, factID); err != nil {
		return translate("delete fact", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM facts WHERE memory_space_id = ? AND fact_id = ?`, memorySpaceID, factID); err != nil {
		return translate("delete fact", err)
	}
	return translate("delete fact", tx.Commit())
}

// DistinctEntityTerms returns the distinct subject and object strings
// seen in active facts for a space, used to seed the lexical entity
// dictionary (§13 OQ1).
func (s *Store) DistinctEntityTerms(ctx context.Context, memorySpaceID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT subject FROM facts WHERE memory_space_id = ? AND status = 'active' AND subject != ''
		UNION
		SELECT DISTINCT object FROM facts WHERE memory_space_id = ? AND status = 'active' AND object != ''`,
		memorySpaceID, memorySpaceID)
	if err != nil {
		return nil, translate("distinct entity terms", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, translate("distinct entity terms", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
