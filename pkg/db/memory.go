package db

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BytesCraftIO/snapdocs-sub001/pkg/blocks"
)

// MemoryContentStore implements IContentStore in process memory. It backs
// single-instance development setups and tests.
type MemoryContentStore struct {
	mu           sync.RWMutex
	pages        map[string]*PageContent
	history      map[string][]HistoryEntry // oldest first
	historyLimit int
	now          func() time.Time
}

// NewMemoryContentStore creates an empty store.
func NewMemoryContentStore(historyLimit int) *MemoryContentStore {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &MemoryContentStore{
		pages:        make(map[string]*PageContent),
		history:      make(map[string][]HistoryEntry),
		historyLimit: historyLimit,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryContentStore) Load(ctx context.Context, pageID string) (*PageContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.pages[pageID]
	if !ok {
		return nil, ErrPageNotFound
	}
	return copyContent(content), nil
}

func (s *MemoryContentStore) Save(ctx context.Context, pageID string, list []blocks.Block) (*PageContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	content, ok := s.pages[pageID]
	if !ok {
		content = &PageContent{PageID: pageID, CreatedAt: now}
		s.pages[pageID] = content
	}
	content.Blocks = blocks.CloneAll(list)
	if content.Blocks == nil {
		content.Blocks = []blocks.Block{}
	}
	content.Version++
	content.UpdatedAt = now

	return copyContent(content), nil
}

func (s *MemoryContentStore) SaveToHistory(ctx context.Context, content *PageContent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.history[content.PageID], HistoryEntry{
		ID:          uuid.New().String(),
		PageContent: *copyContent(content),
		ArchivedAt:  s.now(),
	})
	if over := len(entries) - s.historyLimit; over > 0 {
		entries = append([]HistoryEntry(nil), entries[over:]...)
	}
	s.history[content.PageID] = entries
	return nil
}

func (s *MemoryContentStore) History(ctx context.Context, pageID string) ([]HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.history[pageID]
	entries := make([]HistoryEntry, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		entry := stored[i]
		entry.PageContent = *copyContent(&stored[i].PageContent)
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *MemoryContentStore) Delete(ctx context.Context, pageID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.pages[pageID]
	delete(s.pages, pageID)
	delete(s.history, pageID)
	return ok, nil
}

func (s *MemoryContentStore) Close() error { return nil }

func copyContent(c *PageContent) *PageContent {
	out := *c
	out.Blocks = blocks.CloneAll(c.Blocks)
	return &out
}

var _ IContentStore = (*MemoryContentStore)(nil)
