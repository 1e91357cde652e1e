// Package storage implements the Storage Runtime contract of §4.1 on a
// single embedded SQLite database: serialisable transactions, unique and
// composite indexes, and a vector index (via the sqlite-vec vec0
// extension) for k-nearest-neighbour search. It is the sole backing for
// Layers 1a, 1b/2 (memories), 3 (facts), and 4 (coordination).
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	sqlitevec "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
	"go.uber.org/zap"
)

// Store is the SQLite-backed Storage Runtime. A single *sql.DB is shared
// across layers; the mutex only guards the set of lazily-created vec0
// tables, since database/sql already serializes access to the
// connection pool and SQLite's own locking handles the rest.
type Store struct {
	db  *sql.DB
	log *zap.SugaredLogger

	vecMu   sync.Mutex
	vecDims map[int]bool
}

// Open creates (or attaches to) a SQLite database at dsn. Use ":memory:"
// for an ephemeral store, suitable for tests and the self-recall
// scenario of §8.
func Open(dsn string, log *zap.SugaredLogger) (*Store, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open storage runtime: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: one writer; serialises our own Begin(Serializable) semantics.

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, log: log, vecDims: make(map[int]bool)}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// beginSerializable starts a transaction at the isolation level the
// Storage Runtime contract requires for multi-statement writes.
func (s *Store) beginSerializable(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

// ensureVecTable lazily creates the vec0 virtual table backing the
// per-dimension vector index required by §4.1(b). One table per distinct
// embedding dimension is created on first use, since vec0 tables are
// fixed-width.
func (s *Store) ensureVecTable(ctx context.Context, dim int) (string, error) {
	name := vecTableName(dim)

	s.vecMu.Lock()
	defer s.vecMu.Unlock()
	if s.vecDims[dim] {
		return name, nil
	}

	stmt := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(
			memory_id TEXT PRIMARY KEY,
			memory_space_id TEXT PARTITION KEY,
			embedding float[%d] distance_metric=cosine
		)`, name, dim)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return "", fmt.Errorf("create vec table for dim %d: %w", dim, err)
	}
	s.vecDims[dim] = true
	return name, nil
}

func vecTableName(dim int) string {
	return fmt.Sprintf("vec_memories_%d", dim)
}

// serializeEmbedding packs a float32 vector for vec0 storage/query.
func serializeEmbedding(v []float32) ([]byte, error) {
	return sqlitevec.SerializeFloat32(v)
}
