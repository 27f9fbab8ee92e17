package db

import (
	"context"
	"errors"
	"testing"

	"github.com/BytesCraftIO/snapdocs-sub001/pkg/apperr"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/blocks"
)

func page(texts ...string) []blocks.Block {
	list := make([]blocks.Block, len(texts))
	for i, text := range texts {
		list[i] = blocks.NewBlock(text, blocks.TypeParagraph, blocks.Text(text), i)
	}
	return list
}

func TestMemoryStoreLoadMissing(t *testing.T) {
	store := NewMemoryContentStore(0)

	_, err := store.Load(context.Background(), "missing")
	if !errors.Is(err, ErrPageNotFound) || !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreSaveIncrementsVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryContentStore(0)

	first, err := store.Save(ctx, "p1", page("a"))
	if err != nil {
		t.Fatal(err)
	}
	if first.Version != 1 {
		t.Errorf("first version = %d, want 1", first.Version)
	}

	second, err := store.Save(ctx, "p1", page("a", "b"))
	if err != nil {
		t.Fatal(err)
	}
	if second.Version != 2 {
		t.Errorf("second version = %d, want 2", second.Version)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Error("createdAt changed on update")
	}
	if second.UpdatedAt.Before(first.UpdatedAt) {
		t.Error("updatedAt went backwards")
	}

	loaded, err := store.Load(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Version != 2 || len(loaded.Blocks) != 2 {
		t.Errorf("unexpected loaded content %+v", loaded)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryContentStore(0)

	input := page("a")
	if _, err := store.Save(ctx, "p1", input); err != nil {
		t.Fatal(err)
	}
	input[0].Content = blocks.Text("mutated")

	loaded, _ := store.Load(ctx, "p1")
	loaded.Blocks[0].Order = 99

	again, _ := store.Load(ctx, "p1")
	if again.Blocks[0].Content.PlainText() != "a" || again.Blocks[0].Order != 0 {
		t.Errorf("store shares memory with callers: %+v", again.Blocks[0])
	}
}

func TestMemoryStoreHistoryRing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryContentStore(3)

	for v := 1; v <= 5; v++ {
		if err := store.SaveToHistory(ctx, &PageContent{PageID: "p1", Version: v, Blocks: page("x")}); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := store.History(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("history length = %d, want 3", len(entries))
	}
	for i, want := range []int{5, 4, 3} {
		if entries[i].Version != want {
			t.Errorf("entry %d version = %d, want %d", i, entries[i].Version, want)
		}
		if entries[i].ID == "" || entries[i].ArchivedAt.IsZero() {
			t.Errorf("entry %d missing id or archivedAt", i)
		}
	}
}

func TestMemoryStoreDefaultHistoryLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryContentStore(0)

	for v := 1; v <= DefaultHistoryLimit+10; v++ {
		store.SaveToHistory(ctx, &PageContent{PageID: "p1", Version: v})
	}
	entries, _ := store.History(ctx, "p1")
	if len(entries) != DefaultHistoryLimit {
		t.Errorf("history length = %d, want %d", len(entries), DefaultHistoryLimit)
	}
	if entries[len(entries)-1].Version != 11 {
		t.Errorf("oldest kept version = %d, want 11", entries[len(entries)-1].Version)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryContentStore(0)

	content, _ := store.Save(ctx, "p1", page("a"))
	store.SaveToHistory(ctx, content)

	existed, err := store.Delete(ctx, "p1")
	if err != nil || !existed {
		t.Fatalf("Delete = %v, %v; want true, nil", existed, err)
	}
	if _, err := store.Load(ctx, "p1"); !errors.Is(err, ErrPageNotFound) {
		t.Errorf("content still present after delete: %v", err)
	}
	if entries, _ := store.History(ctx, "p1"); len(entries) != 0 {
		t.Errorf("history not deleted: %d entries", len(entries))
	}

	existed, _ = store.Delete(ctx, "p1")
	if existed {
		t.Error("second delete reported an existing page")
	}
}

func TestMemoryStoreRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemoryContentStore(0)
	if _, err := store.Save(ctx, "p1", page("a")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context error, got %v", err)
	}
}
