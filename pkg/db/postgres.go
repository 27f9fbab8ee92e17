package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/BytesCraftIO/snapdocs-sub001/pkg/apperr"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/blocks"
)

// PostgresContentStore implements IContentStore using PostgreSQL
type PostgresContentStore struct {
	db           *sql.DB
	historyLimit int
	logger       *slog.Logger
}

// NewPostgresContentStore opens the database, checks the connection and runs
// the migration.
func NewPostgresContentStore(ctx context.Context, connStr string, historyLimit int, logger *slog.Logger) (*PostgresContentStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	store := &PostgresContentStore{db: db, historyLimit: historyLimit, logger: logger}

	if err := store.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info("postgres content store ready", "history_limit", historyLimit)
	return store, nil
}

// Close closes the database connection
func (s *PostgresContentStore) Close() error {
	return s.db.Close()
}

func (s *PostgresContentStore) Load(ctx context.Context, pageID string) (*PageContent, error) {
	query := `
		SELECT page_id, blocks, version, created_at, updated_at
		FROM page_contents
		WHERE page_id = $1
	`

	content, err := scanContent(s.db.QueryRowContext(ctx, query, pageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPageNotFound
		}
		return nil, fmt.Errorf("failed to load page content: %w", classify(err))
	}
	return content, nil
}

func (s *PostgresContentStore) Save(ctx context.Context, pageID string, list []blocks.Block) (*PageContent, error) {
	data, err := marshalBlocks(list)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO page_contents (page_id, blocks, version, created_at, updated_at)
		VALUES ($1, $2, 1, $3, $3)
		ON CONFLICT (page_id) DO UPDATE
		SET blocks = EXCLUDED.blocks,
			version = page_contents.version + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING page_id, blocks, version, created_at, updated_at
	`

	content, err := scanContent(s.db.QueryRowContext(ctx, query, pageID, data, now))
	if err != nil {
		return nil, fmt.Errorf("failed to save page content: %w", classify(err))
	}

	s.logger.Debug("page content saved", "page_id", pageID, "version", content.Version, "blocks", len(list))
	return content, nil
}

func (s *PostgresContentStore) SaveToHistory(ctx context.Context, content *PageContent) error {
	data, err := marshalBlocks(content.Blocks)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO page_content_history (id, page_id, blocks, version, created_at, updated_at, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = tx.ExecContext(ctx, insert,
		uuid.New().String(),
		content.PageID,
		data,
		content.Version,
		content.CreatedAt,
		content.UpdatedAt,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to archive page content: %w", classify(err))
	}

	// Keep only the newest entries per page
	trim := `
		DELETE FROM page_content_history
		WHERE page_id = $1 AND id NOT IN (
			SELECT id FROM page_content_history
			WHERE page_id = $1
			ORDER BY archived_at DESC, version DESC
			LIMIT $2
		)
	`
	result, err := tx.ExecContext(ctx, trim, content.PageID, s.historyLimit)
	if err != nil {
		return fmt.Errorf("failed to trim page history: %w", classify(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history: %w", err)
	}

	if evicted, err := result.RowsAffected(); err == nil && evicted > 0 {
		s.logger.Debug("page history trimmed", "page_id", content.PageID, "evicted", evicted)
	}
	return nil
}

func (s *PostgresContentStore) History(ctx context.Context, pageID string) ([]HistoryEntry, error) {
	query := `
		SELECT id, page_id, blocks, version, created_at, updated_at, archived_at
		FROM page_content_history
		WHERE page_id = $1
		ORDER BY archived_at DESC, version DESC
	`

	rows, err := s.db.QueryContext(ctx, query, pageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list page history: %w", classify(err))
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var entry HistoryEntry
		var data []byte
		err := rows.Scan(
			&entry.ID,
			&entry.PageID,
			&data,
			&entry.Version,
			&entry.CreatedAt,
			&entry.UpdatedAt,
			&entry.ArchivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if entry.Blocks, err = unmarshalBlocks(data); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return entries, nil
}

func (s *PostgresContentStore) Delete(ctx context.Context, pageID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM page_content_history WHERE page_id = $1`, pageID); err != nil {
		return false, fmt.Errorf("failed to delete page history: %w", classify(err))
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM page_contents WHERE page_id = $1`, pageID)
	if err != nil {
		return false, fmt.Errorf("failed to delete page content: %w", classify(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit delete: %w", err)
	}
	return rowsAffected > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContent(row rowScanner) (*PageContent, error) {
	content := &PageContent{}
	var data []byte
	err := row.Scan(
		&content.PageID,
		&data,
		&content.Version,
		&content.CreatedAt,
		&content.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if content.Blocks, err = unmarshalBlocks(data); err != nil {
		return nil, err
	}
	return content, nil
}

func marshalBlocks(list []blocks.Block) ([]byte, error) {
	if list == nil {
		list = []blocks.Block{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("failed to encode blocks: %w", err)
	}
	return data, nil
}

func unmarshalBlocks(data []byte) ([]blocks.Block, error) {
	list := []blocks.Block{}
	if len(data) == 0 {
		return list, nil
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to decode blocks: %w", err)
	}
	return list, nil
}

// classify maps postgres integrity and data errors onto the app sentinels.
func classify(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code.Class() {
	case "23": // integrity_constraint_violation
		return fmt.Errorf("%w: %s", apperr.ErrConflict, pqErr.Message)
	case "22": // data_exception
		return apperr.NewValidationError(pqErr)
	}
	return err
}

// Compile-time check to ensure PostgresContentStore implements IContentStore
var _ IContentStore = (*PostgresContentStore)(nil)
