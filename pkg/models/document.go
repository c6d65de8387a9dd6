package models

import (
	"time"

	"github.com/google/uuid"
)

// Review lives in the document store. ID is the hex form of the Mongo
// object id; it is opaque to everything except review updates and deletes.
type Review struct {
	ID        string    `json:"id"`
	BookID    uuid.UUID `json:"book_id"`
	UserID    uuid.UUID `json:"user_id"`
	Rating    int       `json:"rating"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ReviewCreateRequest struct {
	Rating int    `json:"rating" binding:"required,min=1,max=5"`
	Text   string `json:"text,omitempty"`
}

type ReviewUpdateRequest struct {
	Rating *int    `json:"rating,omitempty" binding:"omitempty,min=1,max=5"`
	Text   *string `json:"text,omitempty"`
}

// LoanHistoryRecord mirrors a loan into the document store. It is
// append-only from the lending engine's perspective and read-only for the
// recommendation engine.
type LoanHistoryRecord struct {
	ID         string     `json:"id"`
	LoanID     uuid.UUID  `json:"loan_id"`
	UserID     uuid.UUID  `json:"user_id"`
	BookID     uuid.UUID  `json:"book_id"`
	LoanDate   time.Time  `json:"loan_date"`
	DueDate    time.Time  `json:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
	IsReturned bool       `json:"is_returned"`
}

type BookText struct {
	BookID    uuid.UUID `json:"book_id"`
	Content   string    `json:"content"`
	Format    string    `json:"format"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BookContentRequest struct {
	Content string `json:"content" binding:"required"`
	Format  string `json:"format,omitempty"`
}

type UserPreferences struct {
	UserID           uuid.UUID `json:"user_id"`
	PreferredGenres  []string  `json:"preferred_genres"`
	PreferredAuthors []string  `json:"preferred_authors"`
	ReadingFrequency string    `json:"reading_frequency"`
	UpdatedAt        time.Time `json:"updated_at,omitempty"`
}

type PreferencesUpdateRequest struct {
	PreferredGenres  []string `json:"preferred_genres,omitempty"`
	PreferredAuthors []string `json:"preferred_authors,omitempty"`
	ReadingFrequency string   `json:"reading_frequency,omitempty"`
}
