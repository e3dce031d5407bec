package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Schema names registered by default.
const (
	SchemaSegmentList      = "segment-list"
	SchemaGenerateSegments = "generate-segments"
	SchemaEnhanceSegments  = "enhance-segments"
	SchemaSalesNav         = "sales-nav"
	SchemaDeepSegment      = "deep-segment"
	SchemaAdvance          = "advance"
)

var builtinSchemas = map[string]string{
	SchemaSegmentList: `{
		"type": "array",
		"items": {
			"type": "object",
			"required": ["name", "content"],
			"properties": {
				"name":    {"type": "string"},
				"content": {"type": "string"}
			}
		}
	}`,
	SchemaGenerateSegments: `{
		"type": "object",
		"required": ["industry"],
		"properties": {
			"industry": {"type": "string", "minLength": 1}
		}
	}`,
	SchemaEnhanceSegments: `{
		"type": "object",
		"required": ["industry", "segments"],
		"properties": {
			"industry": {"type": "string"},
			"segments": {"type": "string", "minLength": 1}
		}
	}`,
	SchemaSalesNav: `{
		"type": "object",
		"required": ["segmentInfo"],
		"properties": {
			"segmentInfo": {"type": "string", "minLength": 1}
		}
	}`,
	SchemaDeepSegment: `{
		"type": "object",
		"required": ["segmentInfo"],
		"properties": {
			"segmentInfo": {"type": ["string", "object"]}
		}
	}`,
	SchemaAdvance: `{
		"type": "object",
		"required": ["stage"],
		"properties": {
			"stage":         {"type": "string", "enum": ["segments", "enhanced", "sales_nav", "deep_segment"]},
			"industry":      {"type": "string"},
			"segments":      {"type": "string"},
			"enhanced":      {"type": "string"},
			"segmentInfo":   {"type": ["string", "object"]},
			"segmentIndex":  {"type": "integer", "minimum": 0}
		}
	}`,
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Validator holds compiled JSON schemas by name.
type Validator struct {
	mu      sync.RWMutex
	schemas map[string]*gojsonschema.Schema
}

var (
	defaultOnce      sync.Once
	defaultValidator *Validator
)

// Default returns a process-wide validator with the built-in schemas.
func Default() *Validator {
	defaultOnce.Do(func() {
		v := NewValidator()
		for name, src := range builtinSchemas {
			if err := v.Register(name, src); err != nil {
				panic(fmt.Sprintf("validation: built-in schema %s: %v", name, err))
			}
		}
		defaultValidator = v
	})
	return defaultValidator
}

func NewValidator() *Validator {
	return &Validator{schemas: make(map[string]*gojsonschema.Schema)}
}

// Register compiles schemaJSON and stores it under name.
func (v *Validator) Register(name, schemaJSON string) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return fmt.Errorf("compile schema %s: %w", name, err)
	}
	v.mu.Lock()
	v.schemas[name] = schema
	v.mu.Unlock()
	return nil
}

// ValidateBytes checks a JSON document against a registered schema. A
// document that is not JSON at all is reported as a single root error.
func (v *Validator) ValidateBytes(name string, doc []byte) (*ValidationResult, error) {
	v.mu.RLock()
	schema, ok := v.schemas[name]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "(root)",
				Message: err.Error(),
				Code:    "INVALID_JSON",
			}},
		}, nil
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, re := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   re.Field(),
			Message: re.Description(),
			Code:    strings.ToUpper(re.Type()),
		})
	}
	return out, nil
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// Summary joins all messages into one line.
func (vr *ValidationResult) Summary() string {
	return strings.Join(vr.GetErrorMessages(), "; ")
}
