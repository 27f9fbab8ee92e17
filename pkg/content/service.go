// Package content is the authoritative merge-and-save path for page content.
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/BytesCraftIO/snapdocs-sub001/pkg/apperr"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/blocks"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/db"
)

// SaveRequest is a client submission of a page's blocks.
type SaveRequest struct {
	Blocks []blocks.Block `json:"blocks"`
	// BaseVersion is the version the client started editing from, if known.
	BaseVersion *int `json:"baseVersion,omitempty"`
	// DeletedBlockIDs lists blocks the client removed. The merge itself never
	// deletes.
	DeletedBlockIDs []string `json:"deletedBlockIds,omitempty"`
}

func (r SaveRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.BaseVersion, validation.By(positiveVersion)),
		validation.Field(&r.DeletedBlockIDs, validation.Each(validation.Required, validation.Length(1, blocks.MaxBlockIDLength))),
	)
	if err != nil {
		return apperr.NewValidationError(err)
	}
	return blocks.ValidateTree(r.Blocks)
}

// positiveVersion rejects zero, which validation.Min treats as empty.
func positiveVersion(value interface{}) error {
	if v, _ := value.(*int); v != nil && *v < 1 {
		return errors.New("must be at least 1")
	}
	return nil
}

// SaveResult is the stored version together with the merge outcome.
type SaveResult struct {
	Content *db.PageContent    `json:"content"`
	Merge   blocks.MergeResult `json:"merge"`
	Deleted int                `json:"deleted"`
}

// Service merges client submissions into stored page content. Merge-commit
// sequences for the same page are serialized within the process.
type Service struct {
	store  db.IContentStore
	merger *blocks.Merger
	locks  *pageLocks
	logger *slog.Logger
}

// NewService creates a content service. A nil merger uses the wall clock.
func NewService(store db.IContentStore, merger *blocks.Merger, logger *slog.Logger) *Service {
	if merger == nil {
		merger = &blocks.Merger{}
	}
	return &Service{
		store:  store,
		merger: merger,
		locks:  newPageLocks(),
		logger: logger,
	}
}

// Load returns the current content of a page.
func (s *Service) Load(ctx context.Context, pageID string) (*db.PageContent, error) {
	return s.store.Load(ctx, pageID)
}

// AcceptServer discards the caller's submission and returns the server
// version untouched.
func (s *Service) AcceptServer(ctx context.Context, pageID string) (*db.PageContent, error) {
	content, err := s.store.Load(ctx, pageID)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("client accepted server version", "page_id", pageID, "version", content.Version)
	return content, nil
}

// Save merges the submission into the current server version and stores the
// result as a new version. A load failure other than not-found aborts the
// save: merging against an empty set would silently drop server blocks.
func (s *Service) Save(ctx context.Context, pageID string, req SaveRequest, userID string) (*SaveResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(pageID)
	defer unlock()

	current, err := s.loadCurrent(ctx, pageID)
	if err != nil {
		return nil, err
	}

	var serverBlocks []blocks.Block
	if current != nil {
		serverBlocks = current.Blocks
	}

	var result blocks.MergeResult
	if base, ok := s.baseBlocks(ctx, pageID, current, req.BaseVersion); ok {
		result = s.merger.MergeWithBase(base, serverBlocks, req.Blocks, userID)
	} else {
		result = s.merger.Merge(serverBlocks, req.Blocks, userID)
	}

	merged := result.MergedBlocks
	deleted := 0
	if len(req.DeletedBlockIDs) > 0 {
		ids := make(map[string]struct{}, len(req.DeletedBlockIDs))
		for _, id := range req.DeletedBlockIDs {
			ids[id] = struct{}{}
		}
		merged, deleted = blocks.Remove(merged, ids)
		result.MergedBlocks = merged
	}

	if err := s.archive(ctx, current); err != nil {
		return nil, err
	}

	saved, err := s.store.Save(ctx, pageID, merged)
	if err != nil {
		return nil, fmt.Errorf("save page content: %w", err)
	}

	s.logger.Info("page content merged",
		"page_id", pageID,
		"user_id", userID,
		"version", saved.Version,
		"conflicts", len(result.Conflicts),
		"deleted", deleted,
	)

	return &SaveResult{Content: saved, Merge: result, Deleted: deleted}, nil
}

// ForceSave bypasses the merge: the current version is archived and then
// overwritten with the submission verbatim.
func (s *Service) ForceSave(ctx context.Context, pageID string, list []blocks.Block, userID string) (*db.PageContent, error) {
	if err := blocks.ValidateTree(list); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(pageID)
	defer unlock()

	current, err := s.loadCurrent(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if err := s.archive(ctx, current); err != nil {
		return nil, err
	}

	saved, err := s.store.Save(ctx, pageID, list)
	if err != nil {
		return nil, fmt.Errorf("force save page content: %w", err)
	}

	s.logger.Warn("page content force-saved", "page_id", pageID, "user_id", userID, "version", saved.Version)
	return saved, nil
}

// History lists archived versions of a page, newest first.
func (s *Service) History(ctx context.Context, pageID string) ([]db.HistoryEntry, error) {
	entries, err := s.store.History(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("list page history: %w", err)
	}
	return entries, nil
}

// Restore saves an archived version as the newest version. The version being
// replaced is archived first.
func (s *Service) Restore(ctx context.Context, pageID string, version int, userID string) (*db.PageContent, error) {
	unlock := s.locks.lock(pageID)
	defer unlock()

	entry, err := s.findVersion(ctx, pageID, version)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, &apperr.NotFoundError{Message: fmt.Sprintf("version %d of page %s not found in history", version, pageID)}
	}

	current, err := s.loadCurrent(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if err := s.archive(ctx, current); err != nil {
		return nil, err
	}

	saved, err := s.store.Save(ctx, pageID, entry.Blocks)
	if err != nil {
		return nil, fmt.Errorf("restore page content: %w", err)
	}

	s.logger.Info("page content restored", "page_id", pageID, "user_id", userID, "from_version", version, "version", saved.Version)
	return saved, nil
}

// Delete removes a page's content and history and reports whether it existed.
func (s *Service) Delete(ctx context.Context, pageID string) (bool, error) {
	unlock := s.locks.lock(pageID)
	defer unlock()

	existed, err := s.store.Delete(ctx, pageID)
	if err != nil {
		return false, fmt.Errorf("delete page content: %w", err)
	}
	return existed, nil
}

// BlockText returns the stored plain text of a block. A page or block that
// was never saved has empty text. Rich content has no plain text form for
// text operations and is rejected.
func (s *Service) BlockText(ctx context.Context, pageID, blockID string) (string, error) {
	current, err := s.loadCurrent(ctx, pageID)
	if err != nil || current == nil {
		return "", err
	}

	var (
		found bool
		block blocks.Block
	)
	blocks.Walk(current.Blocks, func(b blocks.Block) {
		if !found && b.ID == blockID {
			found, block = true, b
		}
	})
	if !found {
		return "", nil
	}
	if block.Content.IsRich() {
		return "", apperr.NewValidationError(fmt.Errorf("block %s has rich content", blockID))
	}
	return block.Content.PlainText(), nil
}

// loadCurrent returns nil without error for a page that was never saved.
func (s *Service) loadCurrent(ctx context.Context, pageID string) (*db.PageContent, error) {
	current, err := s.store.Load(ctx, pageID)
	if errors.Is(err, db.ErrPageNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load page content: %w", err)
	}
	return current, nil
}

func (s *Service) archive(ctx context.Context, current *db.PageContent) error {
	if current == nil {
		return nil
	}
	if err := s.store.SaveToHistory(ctx, current); err != nil {
		return fmt.Errorf("archive page content: %w", err)
	}
	return nil
}

// baseBlocks resolves the version a client started from. It reports false
// when the base is unknown, which makes the caller fall back to a two-way
// merge.
func (s *Service) baseBlocks(ctx context.Context, pageID string, current *db.PageContent, version *int) ([]blocks.Block, bool) {
	if version == nil || current == nil {
		return nil, false
	}
	if *version == current.Version {
		return current.Blocks, true
	}

	entry, err := s.findVersion(ctx, pageID, *version)
	if err != nil {
		s.logger.Warn("base version lookup failed, using two-way merge", "page_id", pageID, "base_version", *version, "error", err)
		return nil, false
	}
	if entry == nil {
		s.logger.Debug("base version not in history", "page_id", pageID, "base_version", *version)
		return nil, false
	}
	return entry.Blocks, true
}

func (s *Service) findVersion(ctx context.Context, pageID string, version int) (*db.HistoryEntry, error) {
	entries, err := s.store.History(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("list page history: %w", err)
	}
	for i := range entries {
		if entries[i].Version == version {
			return &entries[i], nil
		}
	}
	return nil, nil
}
