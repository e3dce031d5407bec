package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"segment-research/internal/models"
)

// StageInput carries the caller-supplied text for a stage. Fields a stage
// does not use are ignored.
type StageInput struct {
	Industry    string       `json:"industry,omitempty"`
	Segments    string       `json:"segments,omitempty"`
	Enhanced    string       `json:"enhanced,omitempty"`
	SegmentInfo *SegmentInfo `json:"segmentInfo,omitempty"`
}

type SegmentInfoKind int

const (
	RawTextKind SegmentInfoKind = iota + 1
	NamedSegmentKind
)

// SegmentInfo is the research subject of the deep segment stage: either free
// text or a named segment.
type SegmentInfo struct {
	Kind    SegmentInfoKind `json:"-"`
	Name    string          `json:"name,omitempty"`
	Content string          `json:"content"`
}

func RawText(text string) SegmentInfo {
	return SegmentInfo{Kind: RawTextKind, Content: text}
}

func NamedSegment(name, content string) SegmentInfo {
	return SegmentInfo{Kind: NamedSegmentKind, Name: name, Content: content}
}

// FromSegment wraps a Sales Navigator segment for the deep segment stage.
func FromSegment(s models.Segment) SegmentInfo {
	return NamedSegment(s.Name, s.Content)
}

// DisplayName is the segment name without any leading keycap numbering.
func (i SegmentInfo) DisplayName() string {
	return strings.TrimSpace(StripNumberEmoji(strings.TrimSpace(i.Name)))
}

func (i SegmentInfo) validate() error {
	if i.Kind != RawTextKind && i.Kind != NamedSegmentKind {
		return fmt.Errorf("%w: unknown segment info kind", ErrInvalidInput)
	}
	if strings.TrimSpace(i.Content) == "" {
		return fmt.Errorf("%w: segment info has no content", ErrInvalidInput)
	}
	return nil
}

// digit, then a variation selector and/or the combining keycap, then spaces.
var numberEmojiPattern = regexp.MustCompile(`^(?:\d(?:\x{FE0F}\x{20E3}?|\x{20E3})\s*)+`)

// StripNumberEmoji removes leading keycap number tokens such as "1️⃣ ".
// Applying it twice gives the same result as applying it once.
func StripNumberEmoji(s string) string {
	return numberEmojiPattern.ReplaceAllString(s, "")
}

// ResolveSegmentInfo converts a loosely-shaped JSON payload into a
// SegmentInfo. A string is raw text. An object with a non-empty "content"
// string uses it; any other object is described by its own JSON encoding.
// Everything else is invalid input.
func ResolveSegmentInfo(raw json.RawMessage) (SegmentInfo, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return SegmentInfo{}, fmt.Errorf("%w: segment information is required", ErrInvalidInput)
	}

	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return SegmentInfo{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		if strings.TrimSpace(text) == "" {
			return SegmentInfo{}, fmt.Errorf("%w: segment information is empty", ErrInvalidInput)
		}
		return RawText(text), nil

	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return SegmentInfo{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		name := stringField(fields, "name")
		if content := stringField(fields, "content"); strings.TrimSpace(content) != "" {
			return NamedSegment(name, content), nil
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, trimmed); err != nil {
			return SegmentInfo{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return NamedSegment(name, compact.String()), nil
	}

	return SegmentInfo{}, fmt.Errorf("%w: segment information must be a string or an object", ErrInvalidInput)
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
