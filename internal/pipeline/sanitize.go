package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"segment-research/internal/common/validation"
	"segment-research/internal/models"
)

const fence = "```"

// Sanitize removes a markdown code fence wrapping the whole response. Only
// the opening fence line and the closing fence line are removed; everything
// between them is returned as-is. Text without a leading fence is returned
// unchanged.
func Sanitize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, fence) {
		return raw
	}

	nl := strings.IndexByte(trimmed, '\n')
	if nl < 0 {
		return raw
	}
	tag := strings.TrimSpace(trimmed[len(fence):nl])
	if strings.ContainsAny(tag, "` \t") {
		return raw
	}

	body := trimmed[nl+1:]
	if !strings.HasSuffix(body, fence) {
		// Output cut off before the closing fence.
		return body
	}
	body = strings.TrimSuffix(body, fence)
	body = strings.TrimSuffix(body, "\n")
	if strings.HasSuffix(trimmed[:nl], "\r") {
		body = strings.TrimSuffix(body, "\r")
	}
	return body
}

// ParseFailure is returned when a response was expected to be a segment list
// and was not. Raw holds the text exactly as it was passed in.
type ParseFailure struct {
	Raw string
	Err error
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("failed to parse structured response: %v", e.Err)
}

func (e *ParseFailure) Unwrap() error { return e.Err }

// ParseStructured decodes cleaned as a JSON array of segments.
func ParseStructured(cleaned string) ([]models.Segment, error) {
	doc := []byte(strings.TrimSpace(cleaned))

	res, err := validation.Default().ValidateBytes(validation.SchemaSegmentList, doc)
	if err != nil {
		return nil, &ParseFailure{Raw: cleaned, Err: err}
	}
	if !res.Valid {
		return nil, &ParseFailure{Raw: cleaned, Err: fmt.Errorf("schema: %s", res.Summary())}
	}

	var segments []models.Segment
	if err := json.Unmarshal(doc, &segments); err != nil {
		return nil, &ParseFailure{Raw: cleaned, Err: err}
	}
	if segments == nil {
		segments = []models.Segment{}
	}
	return segments, nil
}
