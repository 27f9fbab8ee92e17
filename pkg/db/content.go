package db

import (
	"context"
	"time"

	"github.com/BytesCraftIO/snapdocs-sub001/pkg/apperr"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/blocks"
)

// DefaultHistoryLimit is the number of archived versions kept per page
const DefaultHistoryLimit = 50

// ErrPageNotFound is returned when a page has no stored content
var ErrPageNotFound error = &apperr.NotFoundError{Message: "page content not found"}

// PageContent is the current block content of a page
type PageContent struct {
	PageID    string         `json:"pageId"`
	Blocks    []blocks.Block `json:"blocks"`
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// HistoryEntry is an archived version of a page's content
type HistoryEntry struct {
	ID string `json:"id"`
	PageContent
	ArchivedAt time.Time `json:"archivedAt"`
}

// IContentStore persists page content and a bounded history of prior versions
type IContentStore interface {
	// Load returns ErrPageNotFound when the page has never been saved.
	Load(ctx context.Context, pageID string) (*PageContent, error)
	// Save upserts the blocks, increments the version and sets UpdatedAt.
	Save(ctx context.Context, pageID string, list []blocks.Block) (*PageContent, error)
	// SaveToHistory archives a version, evicting the oldest entries beyond the limit.
	SaveToHistory(ctx context.Context, content *PageContent) error
	// History lists archived versions newest first.
	History(ctx context.Context, pageID string) ([]HistoryEntry, error)
	// Delete removes the page content and its history. It reports whether the page existed.
	Delete(ctx context.Context, pageID string) (bool, error)
	Close() error
}
