package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) *SchemaValidator {
	t.Helper()
	sv, err := NewSchemaValidator()
	require.NoError(t, err)
	return sv
}

func TestSchemaRegistry(t *testing.T) {
	sv := newValidator(t)

	for _, name := range []string{"book", "book-update", "review", "review-update", "interaction", "preferences"} {
		assert.True(t, sv.SchemaExists(name), "schema %s should be registered", name)
	}
	assert.False(t, sv.SchemaExists("unknown"))

	result := sv.ValidateJSONString("unknown", `{}`)
	assert.False(t, result.Valid)
	assert.Equal(t, "SCHEMA_NOT_FOUND", result.Errors[0].Code)
}

func TestBookSchema(t *testing.T) {
	sv := newValidator(t)

	t.Run("minimal valid payload", func(t *testing.T) {
		result := sv.ValidateJSONString("book", `{"title": "Dune", "author": "Frank Herbert"}`)
		assert.True(t, result.Valid)
	})

	t.Run("missing author", func(t *testing.T) {
		result := sv.ValidateJSONString("book", `{"title": "Dune"}`)
		assert.False(t, result.Valid)
	})

	t.Run("inline content on create is accepted", func(t *testing.T) {
		result := sv.ValidateJSONString("book",
			`{"title": "Dune", "author": "Frank Herbert", "content": "Arrakis...", "content_format": "text"}`)
		assert.True(t, result.Valid)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		result := sv.ValidateJSONString("book",
			`{"title": "Dune", "author": "Frank Herbert", "price": 10}`)
		assert.False(t, result.Valid)
	})

	t.Run("update allows partial payloads but not empty titles", func(t *testing.T) {
		assert.True(t, sv.ValidateJSONString("book-update", `{"genre": "Sci-Fi"}`).Valid)
		assert.False(t, sv.ValidateJSONString("book-update", `{}`).Valid)
		assert.False(t, sv.ValidateJSONString("book-update", `{"title": ""}`).Valid)
		assert.False(t, sv.ValidateJSONString("book-update", `{"content": "inline"}`).Valid)
	})

	t.Run("struct payloads validate through the same schema", func(t *testing.T) {
		result := sv.ValidateStruct("book", map[string]interface{}{
			"title":  "Dune",
			"author": "Frank Herbert",
			"year":   1965,
		})
		assert.True(t, result.Valid)

		result = sv.ValidateStruct("book", map[string]interface{}{"title": "Dune"})
		require.False(t, result.Valid)
		assert.NotNil(t, result.ToAPIError())
	})
}

func TestReviewSchemas(t *testing.T) {
	sv := newValidator(t)

	t.Run("rating bounds", func(t *testing.T) {
		assert.True(t, sv.ValidateJSONString("review", `{"rating": 5}`).Valid)
		assert.False(t, sv.ValidateJSONString("review", `{"rating": 0}`).Valid)
		assert.False(t, sv.ValidateJSONString("review", `{"rating": 6}`).Valid)
	})

	t.Run("create requires a rating", func(t *testing.T) {
		assert.False(t, sv.ValidateJSONString("review", `{"text": "great"}`).Valid)
	})

	t.Run("update allows partial payloads but not empty ones", func(t *testing.T) {
		assert.True(t, sv.ValidateJSONString("review-update", `{"text": "revised"}`).Valid)
		assert.True(t, sv.ValidateJSONString("review-update", `{"rating": 3}`).Valid)
		assert.False(t, sv.ValidateJSONString("review-update", `{}`).Valid)
	})
}

func TestInteractionSchema(t *testing.T) {
	sv := newValidator(t)

	t.Run("known types", func(t *testing.T) {
		for _, typ := range []string{"view", "loan", "return", "review"} {
			result := sv.ValidateJSONString("interaction",
				`{"book_id": "a2f1f3e0-98aa-4f2b-9d2c-0f4f25a3b111", "type": "`+typ+`"}`)
			assert.True(t, result.Valid, "type %s should validate", typ)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		result := sv.ValidateJSONString("interaction",
			`{"book_id": "a2f1f3e0-98aa-4f2b-9d2c-0f4f25a3b111", "type": "purchase"}`)
		assert.False(t, result.Valid)
	})

	t.Run("book id is required", func(t *testing.T) {
		assert.False(t, sv.ValidateJSONString("interaction", `{"type": "view"}`).Valid)
	})
}

func TestPreferencesSchema(t *testing.T) {
	sv := newValidator(t)

	result := sv.ValidateJSONString("preferences",
		`{"preferred_genres": ["Fantasy"], "preferred_authors": ["Le Guin"], "reading_frequency": "weekly"}`)
	assert.True(t, result.Valid)

	result = sv.ValidateJSONString("preferences", `{"preferred_genres": "Fantasy"}`)
	assert.False(t, result.Valid)
}
