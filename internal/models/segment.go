// internal/models/segment.go
package models

// Segment is one targeting segment returned by the Sales Navigator stage.
// Order within a slice is the relevance order chosen by the provider.
type Segment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// IsComplete reports whether both fields are non-empty.
func (s Segment) IsComplete() bool {
	return s.Name != "" && s.Content != ""
}

// FindSegment returns the index of the segment matching sel by name and
// content, or -1.
func FindSegment(segments []Segment, sel Segment) int {
	for i, s := range segments {
		if s.Name == sel.Name && s.Content == sel.Content {
			return i
		}
	}
	return -1
}

// CloneSegments returns an independent copy of segments; nil stays nil.
func CloneSegments(segments []Segment) []Segment {
	if segments == nil {
		return nil
	}
	out := make([]Segment, len(segments))
	copy(out, segments)
	return out
}
