package models

import (
	"time"

	"github.com/google/uuid"
)

// Book is a catalog entry backed by the relational store. Optional text
// fields use the empty string for "not set"; Year uses 0.
type Book struct {
	ID              uuid.UUID `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	Author          string    `json:"author" db:"author"`
	Year            int       `json:"year,omitempty" db:"year"`
	ISBN            string    `json:"isbn,omitempty" db:"isbn"`
	Language        string    `json:"language,omitempty" db:"language"`
	Genre           string    `json:"genre,omitempty" db:"genre"`
	Publisher       string    `json:"publisher,omitempty" db:"publisher"`
	Description     string    `json:"description,omitempty" db:"description"`
	AvailableCopies int       `json:"available_copies" db:"available_copies"`
	TotalCopies     int       `json:"total_copies" db:"total_copies"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

func (b *Book) IsAvailable() bool {
	return b.AvailableCopies > 0
}

type BookCreateRequest struct {
	Title           string `json:"title" binding:"required,min=1,max=255"`
	Author          string `json:"author" binding:"required,min=1,max=128"`
	Year            int    `json:"year,omitempty"`
	ISBN            string `json:"isbn,omitempty"`
	Language        string `json:"language,omitempty"`
	Genre           string `json:"genre,omitempty"`
	Publisher       string `json:"publisher,omitempty"`
	Description     string `json:"description,omitempty"`
	AvailableCopies int    `json:"available_copies,omitempty"`
	TotalCopies     int    `json:"total_copies,omitempty"`
	Content         string `json:"content,omitempty"`
	ContentFormat   string `json:"content_format,omitempty"`
}

// BookUpdateRequest carries partial updates; nil means "leave unchanged".
type BookUpdateRequest struct {
	Title           *string `json:"title,omitempty"`
	Author          *string `json:"author,omitempty"`
	Year            *int    `json:"year,omitempty"`
	ISBN            *string `json:"isbn,omitempty"`
	Language        *string `json:"language,omitempty"`
	Genre           *string `json:"genre,omitempty"`
	Publisher       *string `json:"publisher,omitempty"`
	Description     *string `json:"description,omitempty"`
	AvailableCopies *int    `json:"available_copies,omitempty"`
	TotalCopies     *int    `json:"total_copies,omitempty"`
}

// BookFilter narrows catalog listings. Title and Author match substrings
// case-insensitively; Genre and Language match exactly.
type BookFilter struct {
	Title         string
	Author        string
	Genre         string
	Language      string
	YearFrom      int
	YearTo        int
	AvailableOnly bool
}

type BookListResponse struct {
	Books      []Book `json:"books"`
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	TotalPages int    `json:"total_pages"`
	TotalItems int    `json:"total_items"`
}
