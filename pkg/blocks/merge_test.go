package blocks

import (
	"testing"
	"time"

	"github.com/BytesCraftIO/snapdocs-sub001/pkg/ot"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testMerger() *Merger {
	return NewMerger(func() time.Time { return fixedNow })
}

func para(id, text string, order int) Block {
	return NewBlock(id, TypeParagraph, Text(text), order)
}

func findBlock(list []Block, id string) (Block, bool) {
	var found Block
	ok := false
	Walk(list, func(b Block) {
		if b.ID == id && !ok {
			found, ok = b, true
		}
	})
	return found, ok
}

func TestMergeIdentical(t *testing.T) {
	server := []Block{para("a", "one", 0), para("b", "two", 1)}
	server[1].Children = []Block{para("c", "three", 0)}
	client := CloneAll(server)

	res := testMerger().Merge(server, client, "u1")

	if res.HasConflicts || len(res.Conflicts) != 0 {
		t.Fatalf("identical merge reported conflicts: %+v", res.Conflicts)
	}
	if len(res.MergedBlocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(res.MergedBlocks))
	}
	Walk(server, func(want Block) {
		got, ok := findBlock(res.MergedBlocks, want.ID)
		if !ok {
			t.Errorf("block %s missing", want.ID)
			return
		}
		if !got.Content.Equal(want.Content) {
			t.Errorf("block %s content changed", want.ID)
		}
		if got.Properties.HasConflict || got.Properties.AddedByOtherUser {
			t.Errorf("block %s unexpectedly annotated: %+v", want.ID, got.Properties.SyncMarkers)
		}
	})
}

func TestMergeKeepsNewClientBlocks(t *testing.T) {
	server := []Block{para("a", "one", 0)}
	client := []Block{para("a", "one", 0), para("new", "fresh", 1)}

	res := testMerger().Merge(server, client, "u1")

	got, ok := findBlock(res.MergedBlocks, "new")
	if !ok {
		t.Fatal("client-only block dropped")
	}
	if got.Properties.AddedByOtherUser || got.Properties.HasConflict {
		t.Errorf("client-only block should not be annotated: %+v", got.Properties.SyncMarkers)
	}
	if res.HasConflicts {
		t.Error("unexpected conflict")
	}
}

func TestMergeFlagsServerAdditions(t *testing.T) {
	server := []Block{para("a", "one", 0), para("other", "from u2", 1)}
	client := []Block{para("a", "one", 0)}

	res := testMerger().Merge(server, client, "u1")

	got, ok := findBlock(res.MergedBlocks, "other")
	if !ok {
		t.Fatal("server-only block dropped")
	}
	if !got.Properties.AddedByOtherUser {
		t.Error("server-only block not flagged addedByOtherUser")
	}
	if got.Properties.AddedAt == nil || !got.Properties.AddedAt.Equal(fixedNow) {
		t.Errorf("addedAt = %v, want %v", got.Properties.AddedAt, fixedNow)
	}
}

func TestMergeConflictClientWins(t *testing.T) {
	server := []Block{para("a", "Z", 0)}
	client := []Block{para("a", "Y", 0)}

	res := testMerger().Merge(server, client, "u1")

	if !res.HasConflicts || len(res.Conflicts) != 1 {
		t.Fatalf("expected one conflict, got %+v", res.Conflicts)
	}
	c := res.Conflicts[0]
	if c.BlockID != "a" || c.OriginalContent.PlainText() != "Z" || c.IncomingContent.PlainText() != "Y" {
		t.Errorf("unexpected conflict record %+v", c)
	}
	got, err := ot.ApplyAll("Z", c.Operations)
	if err != nil || got != "Y" {
		t.Errorf("conflict operations produce %q (%v), want Y", got, err)
	}

	b := res.MergedBlocks[0]
	if b.Content.PlainText() != "Y" {
		t.Errorf("merged content = %q, want Y", b.Content.PlainText())
	}
	if !b.Properties.HasConflict || b.Properties.ConflictedBy != "u1" {
		t.Errorf("conflict markers missing: %+v", b.Properties.SyncMarkers)
	}
	if b.Properties.ConflictedAt == nil || !b.Properties.ConflictedAt.Equal(fixedNow) {
		t.Errorf("conflictedAt = %v", b.Properties.ConflictedAt)
	}
}

func TestMergeRichConflictHasNoOperations(t *testing.T) {
	server := []Block{NewBlock("a", TypeParagraph, Rich(Span{Text: "x", Annotations: &Annotations{Bold: true}}), 0)}
	client := []Block{NewBlock("a", TypeParagraph, Rich(Span{Text: "x"}), 0)}

	res := testMerger().Merge(server, client, "u1")
	if len(res.Conflicts) != 1 {
		t.Fatalf("expected conflict on formatting change, got %d", len(res.Conflicts))
	}
	if res.Conflicts[0].Operations != nil {
		t.Error("rich content conflicts should not carry text operations")
	}
}

func TestMergeWithBase(t *testing.T) {
	base := []Block{para("a", "Hello", 0), para("b", "keep", 1)}

	t.Run("client edit on unchanged server", func(t *testing.T) {
		server := CloneAll(base)
		client := []Block{para("a", "Hello world", 0), para("b", "keep", 1)}

		res := testMerger().MergeWithBase(base, server, client, "u1")
		if res.HasConflicts {
			t.Fatalf("unexpected conflicts %+v", res.Conflicts)
		}
		got, _ := findBlock(res.MergedBlocks, "a")
		if got.Content.PlainText() != "Hello world" || got.Properties.HasConflict {
			t.Errorf("unexpected block %+v", got)
		}
	})

	t.Run("server edit on unchanged client", func(t *testing.T) {
		server := []Block{para("a", "Hello", 0), para("b", "kept by u2", 1)}
		client := CloneAll(base)

		res := testMerger().MergeWithBase(base, server, client, "u1")
		if res.HasConflicts {
			t.Fatalf("unexpected conflicts %+v", res.Conflicts)
		}
		got, _ := findBlock(res.MergedBlocks, "b")
		if got.Content.PlainText() != "kept by u2" {
			t.Errorf("server edit lost: %q", got.Content.PlainText())
		}
	})

	t.Run("both changed", func(t *testing.T) {
		server := []Block{para("a", "Hello there", 0), para("b", "keep", 1)}
		client := []Block{para("a", "Hello world", 0), para("b", "keep", 1)}

		res := testMerger().MergeWithBase(base, server, client, "u1")
		if len(res.Conflicts) != 1 || res.Conflicts[0].BlockID != "a" {
			t.Fatalf("expected conflict on a, got %+v", res.Conflicts)
		}
	})

	t.Run("server block known to client is not flagged", func(t *testing.T) {
		server := CloneAll(base)
		client := []Block{para("a", "Hello", 0)}

		res := testMerger().MergeWithBase(base, server, client, "u1")
		got, ok := findBlock(res.MergedBlocks, "b")
		if !ok {
			t.Fatal("merge removed a server block")
		}
		if got.Properties.AddedByOtherUser {
			t.Error("block present in base flagged as added by another user")
		}
	})
}

func TestMergeReindexes(t *testing.T) {
	server := []Block{para("s", "server", 5)}
	client := []Block{para("b", "b", 10), para("a", "a", 2), para("c", "c", 10)}

	res := testMerger().Merge(server, client, "u1")

	wantIDs := []string{"a", "s", "b", "c"}
	if len(res.MergedBlocks) != len(wantIDs) {
		t.Fatalf("got %d blocks, want %d", len(res.MergedBlocks), len(wantIDs))
	}
	for i, want := range wantIDs {
		got := res.MergedBlocks[i]
		if got.ID != want || got.Order != i {
			t.Errorf("position %d = %s/order %d, want %s/order %d", i, got.ID, got.Order, want, i)
		}
	}
}

func TestMergeChildren(t *testing.T) {
	server := []Block{NewBlock("p", TypeToggle, Text("parent"), 0)}
	server[0].Children = []Block{para("c1", "server text", 0), para("c2", "added by u2", 1)}

	client := []Block{NewBlock("p", TypeToggle, Text("parent"), 0)}
	client[0].Children = []Block{para("c1", "client text", 0), para("c3", "new child", 1)}

	res := testMerger().Merge(server, client, "u1")

	if len(res.Conflicts) != 1 || res.Conflicts[0].BlockID != "c1" {
		t.Fatalf("expected conflict on c1, got %+v", res.Conflicts)
	}
	children := res.MergedBlocks[0].Children
	if len(children) != 3 {
		t.Fatalf("expected 3 children, got %+v", children)
	}
	added, _ := findBlock(children, "c2")
	if !added.Properties.AddedByOtherUser {
		t.Error("server child addition not flagged")
	}
	for i, c := range children {
		if c.Order != i {
			t.Errorf("child %s has order %d, want %d", c.ID, c.Order, i)
		}
	}
}

func TestMergeMovedBlockNotDuplicated(t *testing.T) {
	server := []Block{NewBlock("p", TypeToggle, Text("parent"), 0), para("x", "moving", 1)}
	client := []Block{NewBlock("p", TypeToggle, Text("parent"), 0)}
	client[0].Children = []Block{para("x", "moving", 0)}

	res := testMerger().Merge(server, client, "u1")

	count := 0
	Walk(res.MergedBlocks, func(b Block) {
		if b.ID == "x" {
			count++
		}
	})
	if count != 1 {
		t.Errorf("block x appears %d times", count)
	}
	if len(res.MergedBlocks) != 1 {
		t.Errorf("moved block resurrected at top level: %+v", res.MergedBlocks)
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	server := []Block{para("a", "Z", 3), para("b", "server only", 7)}
	client := []Block{para("a", "Y", 9)}

	testMerger().Merge(server, client, "u1")

	if server[0].Order != 3 || server[1].Order != 7 || client[0].Order != 9 {
		t.Error("merge re-indexed its inputs")
	}
	if server[1].Properties.AddedByOtherUser || client[0].Properties.HasConflict {
		t.Error("merge annotated its inputs")
	}
}

func TestMergeEmpty(t *testing.T) {
	res := Merge(nil, nil, "u1")
	if res.HasConflicts || res.MergedBlocks != nil || res.Conflicts == nil {
		t.Errorf("unexpected result for empty merge: %+v", res)
	}
}
