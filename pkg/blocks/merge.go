package blocks

import (
	"sort"
	"time"

	"github.com/BytesCraftIO/snapdocs-sub001/pkg/ot"
)

// Conflict records a block whose content diverged between server and client.
// Operations is the text diff from the server content to the client content
// when both are plain strings.
type Conflict struct {
	BlockID         string         `json:"blockId"`
	OriginalContent Content        `json:"originalContent"`
	IncomingContent Content        `json:"incomingContent"`
	Operations      []ot.Operation `json:"operations,omitempty"`
}

// MergeResult is the outcome of merging a client block set into the server's
type MergeResult struct {
	MergedBlocks []Block    `json:"mergedBlocks"`
	HasConflicts bool       `json:"hasConflicts"`
	Conflicts    []Conflict `json:"conflicts"`
}

// Merger merges block trees. The zero value uses time.Now.
type Merger struct {
	now func() time.Time
}

// NewMerger returns a Merger that stamps annotations using now.
func NewMerger(now func() time.Time) *Merger {
	return &Merger{now: now}
}

var defaultMerger = &Merger{}

// Merge merges client blocks into server blocks. See Merger.Merge.
func Merge(server, client []Block, userID string) MergeResult {
	return defaultMerger.Merge(server, client, userID)
}

// MergeWithBase is the three-way variant of Merge. See Merger.MergeWithBase.
func MergeWithBase(base, server, client []Block, userID string) MergeResult {
	return defaultMerger.MergeWithBase(base, server, client, userID)
}

// Merge reconciles a client submission with the server's current blocks.
//
// Blocks are matched by id only. Client blocks unknown to the server are kept.
// Blocks whose content differs keep the client's content and are flagged with
// hasConflict, and a Conflict is recorded. Server blocks absent from the
// client are appended and flagged addedByOtherUser. Children of matched blocks
// are merged the same way. Every sibling list is sorted by order and
// re-indexed from 0. The merge never removes blocks and never mutates its
// inputs.
func (m *Merger) Merge(server, client []Block, userID string) MergeResult {
	return m.merge(nil, server, client, userID)
}

// MergeWithBase merges knowing the version the client started from. A content
// difference is only a conflict when the server changed the block since base;
// otherwise the side that changed wins without annotation. Server blocks the
// client already saw in base are kept without the addedByOtherUser flag.
func (m *Merger) MergeWithBase(base, server, client []Block, userID string) MergeResult {
	baseIndex := make(map[string]Block)
	Walk(base, func(b Block) { baseIndex[b.ID] = b })
	return m.merge(baseIndex, server, client, userID)
}

func (m *Merger) merge(base map[string]Block, server, client []Block, userID string) MergeResult {
	now := time.Now
	if m.now != nil {
		now = m.now
	}

	mc := &mergeContext{
		base:      base,
		server:    make(map[string]Block),
		clientIDs: IDs(client),
		userID:    userID,
		at:        now().UTC(),
		conflicts: []Conflict{},
	}
	Walk(server, func(b Block) { mc.server[b.ID] = b })

	merged := mc.level(server, client)
	return MergeResult{
		MergedBlocks: merged,
		HasConflicts: len(mc.conflicts) > 0,
		Conflicts:    mc.conflicts,
	}
}

type mergeContext struct {
	base      map[string]Block // nil for a two-way merge
	server    map[string]Block // every server block by id, any depth
	clientIDs map[string]struct{}
	userID    string
	at        time.Time
	conflicts []Conflict
}

// level merges one sibling list. serverSiblings are the server's children of
// the same parent, used to find concurrent additions at this level.
func (mc *mergeContext) level(serverSiblings, client []Block) []Block {
	merged := make([]Block, 0, len(client)+len(serverSiblings))
	seen := make(map[string]struct{}, len(client))

	for _, cb := range client {
		if _, dup := seen[cb.ID]; dup {
			continue
		}
		seen[cb.ID] = struct{}{}

		out := cb.Clone()
		sb, onServer := mc.server[cb.ID]
		if !onServer {
			out.Children = mc.level(nil, cb.Children)
			merged = append(merged, out)
			continue
		}

		if !cb.Content.Equal(sb.Content) {
			mc.resolveContent(&out, sb, cb)
		}
		out.Children = mc.level(sb.Children, cb.Children)
		merged = append(merged, out)
	}

	for _, sb := range serverSiblings {
		if _, inClient := mc.clientIDs[sb.ID]; inClient {
			continue
		}
		out, _ := Remove([]Block{sb}, mc.clientIDs)
		if len(out) == 0 {
			continue
		}
		added := out[0]
		if _, known := mc.base[sb.ID]; !known {
			added.Properties.AddedByOtherUser = true
			added.Properties.AddedAt = timePtr(mc.at)
		}
		merged = append(merged, added)
	}

	reindex(merged)
	if len(merged) == 0 {
		return nil
	}
	return merged
}

// resolveContent decides the content of a block both sides hold with
// different content. out starts as a copy of the client block.
func (mc *mergeContext) resolveContent(out *Block, sb, cb Block) {
	if mc.base != nil {
		if bb, ok := mc.base[cb.ID]; ok {
			switch {
			case bb.Content.Equal(sb.Content):
				// only the client changed it
				return
			case bb.Content.Equal(cb.Content):
				// only the server changed it
				out.Content = sb.Clone().Content
				return
			}
		}
	}

	out.Properties.HasConflict = true
	out.Properties.ConflictedAt = timePtr(mc.at)
	out.Properties.ConflictedBy = mc.userID

	conflict := Conflict{
		BlockID:         cb.ID,
		OriginalContent: sb.Clone().Content,
		IncomingContent: cb.Clone().Content,
	}
	if !sb.Content.IsRich() && !cb.Content.IsRich() {
		conflict.Operations = ot.DiffText(sb.Content.PlainText(), cb.Content.PlainText(), mc.userID)
	}
	mc.conflicts = append(mc.conflicts, conflict)
}

// reindex stable-sorts siblings by order and renumbers them densely from 0.
func reindex(list []Block) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Order < list[j].Order
	})
	for i := range list {
		list[i].Order = i
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
