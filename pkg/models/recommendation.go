package models

import (
	"time"

	"github.com/google/uuid"
)

// GenrePreferences maps genre labels to accumulated affinity scores. It is
// derived on demand from loan history and positive reviews and is never
// persisted.
type GenrePreferences map[string]float64

type SimilarUser struct {
	UserID     uuid.UUID `json:"user_id"`
	Similarity float64   `json:"similarity"`
}

type ScoredBook struct {
	Book       Book    `json:"book"`
	Similarity float64 `json:"similarity"`
}

type RecommendationResponse struct {
	UserID      uuid.UUID `json:"user_id"`
	Books       []Book    `json:"books"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Interaction types accepted by the activity log.
const (
	InteractionView   = "view"
	InteractionLoan   = "loan"
	InteractionReturn = "return"
	InteractionReview = "review"
)

type InteractionRequest struct {
	BookID  uuid.UUID              `json:"book_id" binding:"required"`
	Type    string                 `json:"type" binding:"required,oneof=view loan return review"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ActivityRecord is the fire-and-forget interaction event written to the
// activity log and published on the event bus.
type ActivityRecord struct {
	Type      string                 `json:"type"`
	UserID    uuid.UUID              `json:"user_id"`
	BookID    uuid.UUID              `json:"book_id"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
