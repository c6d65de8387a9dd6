package services

import "errors"

var (
	ErrBookNotFound       = errors.New("book not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrLoanNotFound       = errors.New("loan not found or already returned")
	ErrReviewNotFound     = errors.New("review not found")
	ErrISBNExists         = errors.New("isbn already exists")
	ErrUserExists         = errors.New("username or email already taken")
	ErrNoCopiesAvailable  = errors.New("no copies available for lending")
	ErrAlreadyOnLoan      = errors.New("user already has this book on loan")
	ErrBookHasActiveLoans = errors.New("cannot delete book with active loans")
	ErrInvalidRating      = errors.New("rating must be between 1 and 5")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
