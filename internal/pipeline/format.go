package pipeline

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"segment-research/internal/models"
)

// Section headings and the width of the dashed rule drawn under each.
var sectionHeaders = []struct {
	heading string
	rule    int
}{
	{"Why This Segment?", 18},
	{"Key Challenges:", 15},
	{"🎯 Sales Navigator Filters:", 25},
	{"Best Intent Data Signals", 24},
}

var sectionReplacer = func() *strings.Replacer {
	pairs := make([]string, 0, len(sectionHeaders)*2)
	for _, h := range sectionHeaders {
		pairs = append(pairs, h.heading, "\n"+h.heading+"\n"+strings.Repeat("-", h.rule)+"\n")
	}
	return strings.NewReplacer(pairs...)
}()

// FormatSegments renders Sales Navigator segments as plain text: a numbered
// upper-case header with an "=" underline, underlined section headings and a
// row of asterisks between segments. Segments missing a name or content are
// skipped but keep their number.
func FormatSegments(segments []models.Segment) string {
	var sb strings.Builder
	for i, seg := range segments {
		if !seg.IsComplete() {
			continue
		}
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(". ")
		sb.WriteString(strings.ToUpper(seg.Name))
		sb.WriteString("\n")
		sb.WriteString(strings.Repeat("=", utf8.RuneCountInString(seg.Name)+4))
		sb.WriteString("\n\n")

		sb.WriteString(sectionReplacer.Replace(strings.TrimSpace(seg.Content)))
		sb.WriteString("\n\n")

		if i < len(segments)-1 {
			sb.WriteString("\n")
			sb.WriteString(strings.Repeat("*", 50))
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}
