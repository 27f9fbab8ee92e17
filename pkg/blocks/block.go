// Package blocks models page content as a tree of typed blocks and merges
// concurrent versions of that tree.
package blocks

import (
	"encoding/json"
	"time"
)

// BlockType tags a block from a fixed vocabulary
type BlockType string

const (
	TypeParagraph    BlockType = "paragraph"
	TypeHeading1     BlockType = "heading_1"
	TypeHeading2     BlockType = "heading_2"
	TypeHeading3     BlockType = "heading_3"
	TypeBulletedList BlockType = "bulleted_list"
	TypeNumberedList BlockType = "numbered_list"
	TypeTodo         BlockType = "todo"
	TypeToggle       BlockType = "toggle"
	TypeCode         BlockType = "code"
	TypeQuote        BlockType = "quote"
	TypeDivider      BlockType = "divider"
	TypeCallout      BlockType = "callout"
	TypeImage        BlockType = "image"
	TypeVideo        BlockType = "video"
	TypeFile         BlockType = "file"
	TypeEmbed        BlockType = "embed"
	TypeTable        BlockType = "table"
	TypeDatabase     BlockType = "database"
	TypeColumn       BlockType = "column"
	TypeColumnList   BlockType = "column_list"
)

// AllTypes lists the block vocabulary.
var AllTypes = []BlockType{
	TypeParagraph, TypeHeading1, TypeHeading2, TypeHeading3,
	TypeBulletedList, TypeNumberedList, TypeTodo, TypeToggle,
	TypeCode, TypeQuote, TypeDivider, TypeCallout,
	TypeImage, TypeVideo, TypeFile, TypeEmbed,
	TypeTable, TypeDatabase, TypeColumn, TypeColumnList,
}

// Block is one node of a page's content tree. ID is unique within a page and
// is the only key blocks are matched by.
type Block struct {
	ID         string     `json:"id"`
	Type       BlockType  `json:"type"`
	Content    Content    `json:"content"`
	Properties Properties `json:"properties"`
	Children   []Block    `json:"children,omitempty"`
	Order      int        `json:"order"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// NewBlock creates a block with the attributes variant of its type.
func NewBlock(id string, t BlockType, content Content, order int) Block {
	return Block{
		ID:         id,
		Type:       t,
		Content:    content,
		Properties: Properties{Attrs: NewAttributes(t)},
		Order:      order,
	}
}

func (b *Block) UnmarshalJSON(data []byte) error {
	type alias Block
	aux := struct {
		*alias
		Properties json.RawMessage `json:"properties"`
	}{alias: (*alias)(b)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	props, err := decodeProperties(b.Type, aux.Properties)
	if err != nil {
		return err
	}
	b.Properties = props
	return nil
}

// Clone returns a deep copy of the block and its subtree.
func (b Block) Clone() Block {
	out := b
	out.Content = Content{text: b.Content.text, spans: cloneSpans(b.Content.spans), rich: b.Content.rich}
	out.Children = CloneAll(b.Children)
	return out
}

// CloneAll deep-copies a block list.
func CloneAll(list []Block) []Block {
	if list == nil {
		return nil
	}
	out := make([]Block, len(list))
	for i, b := range list {
		out[i] = b.Clone()
	}
	return out
}

// Walk visits every block of the forest depth-first in order.
func Walk(list []Block, fn func(b Block)) {
	for _, b := range list {
		fn(b)
		Walk(b.Children, fn)
	}
}

// IDs collects the ids of every block in the forest.
func IDs(list []Block) map[string]struct{} {
	ids := make(map[string]struct{})
	Walk(list, func(b Block) { ids[b.ID] = struct{}{} })
	return ids
}

// Remove returns a copy of the forest without the blocks in ids (and their
// subtrees) along with the number of blocks removed. Sibling lists that lost
// a block are re-indexed.
func Remove(list []Block, ids map[string]struct{}) ([]Block, int) {
	if len(ids) == 0 {
		return CloneAll(list), 0
	}
	removed := 0
	out := make([]Block, 0, len(list))
	for _, b := range list {
		if _, drop := ids[b.ID]; drop {
			removed++
			continue
		}
		c := b.Clone()
		var n int
		c.Children, n = Remove(b.Children, ids)
		if len(c.Children) == 0 {
			c.Children = nil
		}
		removed += n
		out = append(out, c)
	}
	if len(out) < len(list) {
		reindex(out)
	}
	return out, removed
}
