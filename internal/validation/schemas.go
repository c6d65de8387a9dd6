package validation

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Request payload schemas, compiled once at startup. Keeping them as
// source constants avoids shipping a schema directory alongside the
// binary.
const bookSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["title", "author"],
	"properties": {
		"title": {"type": "string", "minLength": 1, "maxLength": 500},
		"author": {"type": "string", "minLength": 1, "maxLength": 200},
		"year": {"type": "integer", "minimum": 0, "maximum": 3000},
		"isbn": {"type": "string", "maxLength": 20},
		"language": {"type": "string", "maxLength": 50},
		"genre": {"type": "string", "maxLength": 100},
		"publisher": {"type": "string", "maxLength": 200},
		"description": {"type": "string", "maxLength": 5000},
		"available_copies": {"type": "integer", "minimum": 0},
		"total_copies": {"type": "integer", "minimum": 0},
		"content": {"type": "string"},
		"content_format": {"type": "string", "maxLength": 50}
	},
	"additionalProperties": false
}`

const bookUpdateSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"minProperties": 1,
	"properties": {
		"title": {"type": "string", "minLength": 1, "maxLength": 500},
		"author": {"type": "string", "minLength": 1, "maxLength": 200},
		"year": {"type": "integer", "minimum": 0, "maximum": 3000},
		"isbn": {"type": "string", "maxLength": 20},
		"language": {"type": "string", "maxLength": 50},
		"genre": {"type": "string", "maxLength": 100},
		"publisher": {"type": "string", "maxLength": 200},
		"description": {"type": "string", "maxLength": 5000},
		"available_copies": {"type": "integer", "minimum": 0},
		"total_copies": {"type": "integer", "minimum": 0}
	},
	"additionalProperties": false
}`

const reviewSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["rating"],
	"properties": {
		"rating": {"type": "integer", "minimum": 1, "maximum": 5},
		"text": {"type": "string", "maxLength": 10000}
	},
	"additionalProperties": false
}`

const reviewUpdateSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"minProperties": 1,
	"properties": {
		"rating": {"type": "integer", "minimum": 1, "maximum": 5},
		"text": {"type": "string", "maxLength": 10000}
	},
	"additionalProperties": false
}`

const interactionSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["book_id", "type"],
	"properties": {
		"book_id": {"type": "string", "format": "uuid"},
		"type": {"type": "string", "enum": ["view", "loan", "return", "review"]},
		"details": {"type": "object"}
	},
	"additionalProperties": false
}`

const preferencesSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"preferred_genres": {"type": "array", "items": {"type": "string", "maxLength": 100}},
		"preferred_authors": {"type": "array", "items": {"type": "string", "maxLength": 200}},
		"reading_frequency": {"type": "string", "maxLength": 100}
	},
	"additionalProperties": false
}`

// SchemaValidator handles JSON schema validation for API requests
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewSchemaValidator compiles the built-in schemas.
func NewSchemaValidator() (*SchemaValidator, error) {
	sources := map[string]string{
		"book":          bookSchema,
		"book-update":   bookUpdateSchema,
		"review":        reviewSchema,
		"review-update": reviewUpdateSchema,
		"interaction":   interactionSchema,
		"preferences":   preferencesSchema,
	}

	sv := &SchemaValidator{
		schemas: make(map[string]*gojsonschema.Schema, len(sources)),
	}

	for name, source := range sources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		sv.schemas[name] = schema
	}

	return sv, nil
}

// validate performs the actual validation against a named schema
func (sv *SchemaValidator) validate(schemaName string, data interface{}) *ValidationResult {
	schema, exists := sv.schemas[schemaName]
	if !exists {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "schema",
				Message: fmt.Sprintf("Schema '%s' not found", schemaName),
				Code:    "SCHEMA_NOT_FOUND",
			}},
		}
	}

	var documentLoader gojsonschema.JSONLoader
	switch v := data.(type) {
	case string:
		documentLoader = gojsonschema.NewStringLoader(v)
	case []byte:
		documentLoader = gojsonschema.NewBytesLoader(v)
	default:
		jsonBytes, err := json.Marshal(data)
		if err != nil {
			return &ValidationResult{
				Valid: false,
				Errors: []ValidationError{{
					Field:   "data",
					Message: fmt.Sprintf("Failed to marshal data to JSON: %v", err),
					Code:    "JSON_MARSHAL_ERROR",
				}},
			}
		}
		documentLoader = gojsonschema.NewBytesLoader(jsonBytes)
	}

	result, err := schema.Validate(documentLoader)
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "validation",
				Message: fmt.Sprintf("Validation error: %v", err),
				Code:    "VALIDATION_ERROR",
			}},
		}
	}

	validationResult := &ValidationResult{
		Valid:  result.Valid(),
		Errors: make([]ValidationError, 0),
	}

	if !result.Valid() {
		for _, err := range result.Errors() {
			validationResult.Errors = append(validationResult.Errors, ValidationError{
				Field:   err.Field(),
				Message: err.Description(),
				Code:    "VALIDATION_ERROR",
				Value:   err.Value(),
				Context: err.Context().String(),
			})
		}
	}

	return validationResult
}

// ValidationResult represents the result of a validation operation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Value   interface{} `json:"value,omitempty"`
	Context string      `json:"context,omitempty"`
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", ve.Field, ve.Message)
}

// ToAPIError converts validation errors to API error format
func (vr *ValidationResult) ToAPIError() map[string]interface{} {
	if vr.Valid {
		return nil
	}

	errorDetails := make(map[string]interface{})
	errorDetails["validationErrors"] = vr.Errors

	fieldErrors := make(map[string][]string)
	for _, err := range vr.Errors {
		if err.Field != "" {
			fieldErrors[err.Field] = append(fieldErrors[err.Field], err.Message)
		}
	}

	if len(fieldErrors) > 0 {
		errorDetails["fieldErrors"] = fieldErrors
	}

	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    "VALIDATION_ERROR",
			"message": "Request validation failed",
			"details": errorDetails,
		},
	}
}

// ValidateJSONString validates a JSON string against a schema
func (sv *SchemaValidator) ValidateJSONString(schemaName, jsonString string) *ValidationResult {
	return sv.validate(schemaName, jsonString)
}

// ValidateStruct validates a Go struct against a schema
func (sv *SchemaValidator) ValidateStruct(schemaName string, data interface{}) *ValidationResult {
	return sv.validate(schemaName, data)
}

// SchemaExists checks if a schema with the given name is loaded
func (sv *SchemaValidator) SchemaExists(name string) bool {
	_, exists := sv.schemas[name]
	return exists
}
