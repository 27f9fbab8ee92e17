package blocks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Attributes is the type-specific part of a block's properties. Each block
// type maps to exactly one variant, see NewAttributes.
type Attributes interface {
	attributes()
}

// TextAttrs configure text blocks (paragraph, headings, plain lists, quote)
type TextAttrs struct {
	Color           string `json:"color,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
}

type TodoAttrs struct {
	TextAttrs
	Checked bool `json:"checked"`
}

type ToggleAttrs struct {
	TextAttrs
	Collapsed bool `json:"collapsed"`
}

type CodeAttrs struct {
	Language  string `json:"language,omitempty"`
	WrapLines bool   `json:"wrapLines,omitempty"`
}

type CalloutAttrs struct {
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`
}

// MediaAttrs configure image, video, file and embed blocks
type MediaAttrs struct {
	URL     string `json:"url,omitempty"`
	Caption string `json:"caption,omitempty"`
	Width   int    `json:"width,omitempty"`
}

type TableAttrs struct {
	Columns         int  `json:"columns,omitempty"`
	HasColumnHeader bool `json:"hasColumnHeader,omitempty"`
	HasRowHeader    bool `json:"hasRowHeader,omitempty"`
}

type DatabaseAttrs struct {
	DatabaseID string `json:"databaseId,omitempty"`
	ViewID     string `json:"viewId,omitempty"`
}

type ColumnAttrs struct {
	Ratio float64 `json:"ratio,omitempty"`
}

// NoAttrs is used by blocks without configuration (divider, column list)
type NoAttrs struct{}

func (TextAttrs) attributes()     {}
func (TodoAttrs) attributes()     {}
func (ToggleAttrs) attributes()   {}
func (CodeAttrs) attributes()     {}
func (CalloutAttrs) attributes()  {}
func (MediaAttrs) attributes()    {}
func (TableAttrs) attributes()    {}
func (DatabaseAttrs) attributes() {}
func (ColumnAttrs) attributes()   {}
func (NoAttrs) attributes()       {}

// NewAttributes returns the zero attributes variant for a block type.
func NewAttributes(t BlockType) Attributes {
	switch t {
	case TypeParagraph, TypeHeading1, TypeHeading2, TypeHeading3,
		TypeBulletedList, TypeNumberedList, TypeQuote:
		return TextAttrs{}
	case TypeTodo:
		return TodoAttrs{}
	case TypeToggle:
		return ToggleAttrs{}
	case TypeCode:
		return CodeAttrs{}
	case TypeCallout:
		return CalloutAttrs{}
	case TypeImage, TypeVideo, TypeFile, TypeEmbed:
		return MediaAttrs{}
	case TypeTable:
		return TableAttrs{}
	case TypeDatabase:
		return DatabaseAttrs{}
	case TypeColumn:
		return ColumnAttrs{}
	default:
		return NoAttrs{}
	}
}

// SyncMarkers annotate blocks touched by a merge
type SyncMarkers struct {
	HasConflict      bool       `json:"hasConflict,omitempty"`
	ConflictedAt     *time.Time `json:"conflictedAt,omitempty"`
	ConflictedBy     string     `json:"conflictedBy,omitempty"`
	AddedByOtherUser bool       `json:"addedByOtherUser,omitempty"`
	AddedAt          *time.Time `json:"addedAt,omitempty"`
}

// Properties is the configuration bag of a block. On the wire it is a single
// flat JSON object holding both the attributes and the sync markers.
type Properties struct {
	Attrs Attributes
	SyncMarkers
}

func (p Properties) MarshalJSON() ([]byte, error) {
	bag := make(map[string]json.RawMessage)
	if p.Attrs != nil {
		if err := mergeInto(bag, p.Attrs); err != nil {
			return nil, err
		}
	}
	if err := mergeInto(bag, p.SyncMarkers); err != nil {
		return nil, err
	}
	return json.Marshal(bag)
}

func mergeInto(bag map[string]json.RawMessage, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	for k, val := range fields {
		bag[k] = val
	}
	return nil
}

// decodeProperties reads a flat properties object into the variant for t.
// Keys that belong to no variant of t are dropped.
func decodeProperties(t BlockType, raw json.RawMessage) (Properties, error) {
	props := Properties{Attrs: NewAttributes(t)}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return props, nil
	}

	if err := json.Unmarshal(raw, &props.SyncMarkers); err != nil {
		return props, fmt.Errorf("properties: %w", err)
	}

	var err error
	switch props.Attrs.(type) {
	case TextAttrs:
		props.Attrs, err = decodeAttrs[TextAttrs](raw)
	case TodoAttrs:
		props.Attrs, err = decodeAttrs[TodoAttrs](raw)
	case ToggleAttrs:
		props.Attrs, err = decodeAttrs[ToggleAttrs](raw)
	case CodeAttrs:
		props.Attrs, err = decodeAttrs[CodeAttrs](raw)
	case CalloutAttrs:
		props.Attrs, err = decodeAttrs[CalloutAttrs](raw)
	case MediaAttrs:
		props.Attrs, err = decodeAttrs[MediaAttrs](raw)
	case TableAttrs:
		props.Attrs, err = decodeAttrs[TableAttrs](raw)
	case DatabaseAttrs:
		props.Attrs, err = decodeAttrs[DatabaseAttrs](raw)
	case ColumnAttrs:
		props.Attrs, err = decodeAttrs[ColumnAttrs](raw)
	}
	if err != nil {
		return props, fmt.Errorf("properties of %s block: %w", t, err)
	}
	return props, nil
}

func decodeAttrs[T Attributes](raw json.RawMessage) (Attributes, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
