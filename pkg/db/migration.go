package db

import "context"

// createTables creates the content and history tables if they don't exist
func (s *PostgresContentStore) createTables(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS page_contents (
		page_id VARCHAR(128) PRIMARY KEY,
		blocks JSONB NOT NULL DEFAULT '[]'::jsonb,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS page_content_history (
		id VARCHAR(36) PRIMARY KEY,
		page_id VARCHAR(128) NOT NULL,
		blocks JSONB NOT NULL,
		version INTEGER NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		archived_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_page_content_history_page ON page_content_history(page_id, archived_at DESC);
	`

	_, err := s.db.ExecContext(ctx, query)
	return err
}
