package storage

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/kittclouds/cortex/pkg/cortex"
)

// translate maps a raw database/sql or SQLite driver error onto the
// engine's closed error taxonomy (§7). sql.ErrNoRows becomes NotFound;
// unique-constraint violations become Conflict; anything else is a
// TransientStorageError, which callers may retry.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return cortex.NewError(cortex.KindNotFound, op, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "SQLITE_CONSTRAINT") {
		return cortex.NewError(cortex.KindConflict, op, err)
	}
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") {
		return cortex.NewError(cortex.KindTransientStorage, op, err)
	}
	return cortex.NewError(cortex.KindTransientStorage, op, err)
}
