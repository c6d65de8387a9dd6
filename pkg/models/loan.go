package models

import (
	"time"

	"github.com/google/uuid"
)

type Loan struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	UserID     uuid.UUID  `json:"user_id" db:"user_id"`
	BookID     uuid.UUID  `json:"book_id" db:"book_id"`
	LoanDate   time.Time  `json:"loan_date" db:"loan_date"`
	DueDate    time.Time  `json:"due_date" db:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty" db:"return_date"`
	IsReturned bool       `json:"is_returned" db:"is_returned"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

func (l *Loan) IsOverdue() bool {
	if l.IsReturned {
		return false
	}
	return time.Now().UTC().After(l.DueDate)
}

type LendRequest struct {
	Days int `json:"days,omitempty" binding:"omitempty,min=1,max=90"`
}

// ActiveLoan pairs an open loan with its book for user-facing listings.
type ActiveLoan struct {
	Loan      Loan `json:"loan"`
	Book      Book `json:"book"`
	IsOverdue bool `json:"is_overdue"`
}

type LoanListResponse struct {
	Loans      []Loan `json:"loans"`
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
	TotalItems int    `json:"total_items"`
}
