package blocks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Annotations are the formatting flags of a rich-text span
type Annotations struct {
	Bold          bool   `json:"bold,omitempty"`
	Italic        bool   `json:"italic,omitempty"`
	Underline     bool   `json:"underline,omitempty"`
	Strikethrough bool   `json:"strikethrough,omitempty"`
	Code          bool   `json:"code,omitempty"`
	Color         string `json:"color,omitempty"`
}

// Span is a run of text sharing the same formatting
type Span struct {
	Text        string       `json:"text"`
	Annotations *Annotations `json:"annotations,omitempty"`
	Href        string       `json:"href,omitempty"`
}

// Content is a block's text: either a plain string or a sequence of spans.
// It serializes as a JSON string or a JSON array respectively.
type Content struct {
	text  string
	spans []Span
	rich  bool
}

// Text builds plain string content.
func Text(s string) Content {
	return Content{text: s}
}

// Rich builds span content.
func Rich(spans ...Span) Content {
	return Content{spans: cloneSpans(spans), rich: true}
}

// IsRich reports whether the content is a span sequence.
func (c Content) IsRich() bool { return c.rich }

// Spans returns a copy of the spans of rich content.
func (c Content) Spans() []Span { return cloneSpans(c.spans) }

// PlainText returns the text with formatting stripped.
func (c Content) PlainText() string {
	if !c.rich {
		return c.text
	}
	var sb strings.Builder
	for _, s := range c.spans {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// Equal reports whether both contents serialize to identical bytes.
func (c Content) Equal(other Content) bool {
	a, errA := json.Marshal(c)
	b, errB := json.Marshal(other)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.rich {
		if c.spans == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.spans)
	}
	return json.Marshal(c.text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = Content{}
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = Content{text: s}
		return nil
	case '[':
		var spans []Span
		if err := json.Unmarshal(trimmed, &spans); err != nil {
			return err
		}
		*c = Content{spans: spans, rich: true}
		return nil
	default:
		return fmt.Errorf("content must be a string or an array of spans")
	}
}

func cloneSpans(spans []Span) []Span {
	if spans == nil {
		return nil
	}
	out := make([]Span, len(spans))
	for i, s := range spans {
		out[i] = s
		if s.Annotations != nil {
			a := *s.Annotations
			out[i].Annotations = &a
		}
	}
	return out
}
