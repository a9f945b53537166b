package sqlite

import (
	"context"
	"database/sql"
)

const chunksSchema = `
CREATE TABLE IF NOT EXISTS chunks (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    embedding BLOB NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);
`

// ensureSchema creates the chunks table if it does not exist.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, chunksSchema)
	return err
}
