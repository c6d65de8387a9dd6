package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FirstName    string    `json:"first_name,omitempty" db:"first_name"`
	LastName     string    `json:"last_name,omitempty" db:"last_name"`
	IsAdmin      bool      `json:"is_admin" db:"is_admin"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type RegisterRequest struct {
	Username  string `json:"username" binding:"required,min=3,max=64"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type LoginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

type ProfileUpdateRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
}

// UserProfile is the aggregate view served on the profile endpoint: the
// account row joined with live counters from both stores.
type UserProfile struct {
	User           User `json:"user"`
	ActiveLoans    int  `json:"active_loans"`
	TotalBooksRead int  `json:"total_books_read"`
	TotalReviews   int  `json:"total_reviews"`
}

// ReadingStatistics is the deeper statistics view: distinct finished
// books, review volume, the mean rating the user hands out, and loan
// activity per month over the last half year.
type ReadingStatistics struct {
	TotalBooksRead     int                `json:"total_books_read"`
	TotalReviews       int                `json:"total_reviews"`
	AverageRatingGiven float64            `json:"average_rating_given"`
	MonthlyLoans       []MonthlyLoanCount `json:"monthly_loans"`
}

// MonthlyLoanCount is one month's loan tally, most recent month first.
type MonthlyLoanCount struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Count int `json:"count"`
}
