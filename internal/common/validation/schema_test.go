package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_SegmentList(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		valid bool
	}{
		{"valid list", `[{"name":"Tech Startups","content":"Why This Segment?"}]`, true},
		{"empty list", `[]`, true},
		{"missing content", `[{"name":"Tech Startups"}]`, false},
		{"content not a string", `[{"name":"a","content":42}]`, false},
		{"object instead of array", `{"name":"a","content":"b"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Default().ValidateBytes(SchemaSegmentList, []byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid, res.Summary())
		})
	}
}

func TestValidateBytes_NotJSON(t *testing.T) {
	res, err := Default().ValidateBytes(SchemaGenerateSegments, []byte(`{"industry":`))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.True(t, res.HasErrors("(root)"))
	assert.Equal(t, "INVALID_JSON", res.Errors[0].Code)
}

func TestValidateBytes_RequiredField(t *testing.T) {
	res, err := Default().ValidateBytes(SchemaEnhanceSegments, []byte(`{"industry":"law firms"}`))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Summary(), "segments")
}

func TestValidateBytes_DeepSegmentAcceptsStringOrObject(t *testing.T) {
	for _, doc := range []string{
		`{"segmentInfo":"1️⃣ Tech Startups"}`,
		`{"segmentInfo":{"name":"Tech Startups","content":"..."}}`,
	} {
		res, err := Default().ValidateBytes(SchemaDeepSegment, []byte(doc))
		require.NoError(t, err)
		assert.True(t, res.Valid, doc)
	}

	res, err := Default().ValidateBytes(SchemaDeepSegment, []byte(`{"segmentInfo":7}`))
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestValidator_UnknownSchema(t *testing.T) {
	_, err := NewValidator().ValidateBytes("nope", []byte(`{}`))
	require.Error(t, err)
}

func TestValidator_RegisterRejectsBadSchema(t *testing.T) {
	err := NewValidator().Register("broken", `{"type": 12}`)
	require.Error(t, err)
}
