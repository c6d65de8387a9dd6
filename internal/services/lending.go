package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/librimongo/librimongo/pkg/models"
)

const loanColumns = `id, user_id, book_id, loan_date, due_date, return_date,
			is_returned, created_at, updated_at`

// loanHistorian mirrors loan lifecycle events into the document-side
// history log. Mirroring is best-effort: the relational loan row is the
// source of truth.
type loanHistorian interface {
	AppendLoanHistory(ctx context.Context, loan *models.Loan) error
	MarkLoanReturned(ctx context.Context, loanID uuid.UUID, returnDate time.Time) error
}

// LendingService mutates loans and availability counters. Both sides of a
// lend or return move inside one transaction with the book row locked.
type LendingService struct {
	db       pgPool
	history  loanHistorian
	logger   *logrus.Logger
	loanDays int
	maxDays  int
}

func NewLendingService(db pgPool, history loanHistorian, logger *logrus.Logger, loanDays, maxDays int) *LendingService {
	if loanDays <= 0 {
		loanDays = 14
	}
	if maxDays <= 0 {
		maxDays = 90
	}
	return &LendingService{
		db:       db,
		history:  history,
		logger:   logger,
		loanDays: loanDays,
		maxDays:  maxDays,
	}
}

func scanLoan(row pgx.Row) (*models.Loan, error) {
	var l models.Loan
	err := row.Scan(&l.ID, &l.UserID, &l.BookID, &l.LoanDate, &l.DueDate,
		&l.ReturnDate, &l.IsReturned, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Lend checks out a book for the user. days <= 0 falls back to the default
// loan period; longer requests are clamped to the maximum.
func (s *LendingService) Lend(ctx context.Context, userID, bookID uuid.UUID, days int) (*models.Loan, error) {
	if days <= 0 {
		days = s.loanDays
	}
	if days > s.maxDays {
		days = s.maxDays
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin lend transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var available int
	err = tx.QueryRow(ctx,
		`SELECT available_copies FROM books WHERE id = $1 FOR UPDATE`, bookID).
		Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock book row: %w", err)
	}
	if available <= 0 {
		return nil, ErrNoCopiesAvailable
	}

	var openLoans int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM loans
		WHERE user_id = $1 AND book_id = $2 AND is_returned = false`,
		userID, bookID).Scan(&openLoans)
	if err != nil {
		return nil, fmt.Errorf("failed to check open loans: %w", err)
	}
	if openLoans > 0 {
		return nil, ErrAlreadyOnLoan
	}

	now := time.Now().UTC()
	loan := &models.Loan{
		ID:        uuid.New(),
		UserID:    userID,
		BookID:    bookID,
		LoanDate:  now,
		DueDate:   now.AddDate(0, 0, days),
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO loans (id, user_id, book_id, loan_date, due_date, is_returned,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, false, $6, $7)`,
		loan.ID, loan.UserID, loan.BookID, loan.LoanDate, loan.DueDate,
		loan.CreatedAt, loan.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert loan: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE books SET available_copies = available_copies - 1, updated_at = $2
		WHERE id = $1`, bookID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to decrement available copies: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit lend transaction: %w", err)
	}

	if s.history != nil {
		if err := s.history.AppendLoanHistory(ctx, loan); err != nil {
			s.logger.WithError(err).WithField("loan_id", loan.ID).
				Warn("Failed to mirror loan into history log")
		}
	}

	return loan, nil
}

// Return closes the user's open loan and releases the copy. The
// availability counter never climbs past total_copies.
func (s *LendingService) Return(ctx context.Context, userID, loanID uuid.UUID) (*models.Loan, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin return transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	loan, err := scanLoan(tx.QueryRow(ctx, `
		SELECT `+loanColumns+` FROM loans
		WHERE id = $1 AND user_id = $2 AND is_returned = false
		FOR UPDATE`, loanID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock loan row: %w", err)
	}

	now := time.Now().UTC()
	loan.ReturnDate = &now
	loan.IsReturned = true
	loan.UpdatedAt = now

	_, err = tx.Exec(ctx, `
		UPDATE loans SET is_returned = true, return_date = $2, updated_at = $2
		WHERE id = $1`, loan.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to close loan: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE books
		SET available_copies = LEAST(available_copies + 1, total_copies), updated_at = $2
		WHERE id = $1`, loan.BookID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to increment available copies: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit return transaction: %w", err)
	}

	if s.history != nil {
		if err := s.history.MarkLoanReturned(ctx, loan.ID, now); err != nil {
			s.logger.WithError(err).WithField("loan_id", loan.ID).
				Warn("Failed to mark loan returned in history log")
		}
	}

	return loan, nil
}

func (s *LendingService) collectLoans(rows pgx.Rows) ([]models.Loan, error) {
	defer rows.Close()

	var loans []models.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

// ActiveLoansForUser lists open loans joined with their books, flagging
// the overdue ones.
func (s *LendingService) ActiveLoansForUser(ctx context.Context, userID uuid.UUID) ([]models.ActiveLoan, error) {
	rows, err := s.db.Query(ctx, `
		SELECT l.id, l.user_id, l.book_id, l.loan_date, l.due_date, l.return_date,
			l.is_returned, l.created_at, l.updated_at,
			b.id, b.title, b.author, COALESCE(b.year, 0), COALESCE(b.isbn, ''),
			COALESCE(b.language, ''), COALESCE(b.genre, ''), COALESCE(b.publisher, ''),
			COALESCE(b.description, ''), b.available_copies, b.total_copies,
			b.created_at, b.updated_at
		FROM loans l
		JOIN books b ON b.id = l.book_id
		WHERE l.user_id = $1 AND l.is_returned = false
		ORDER BY l.due_date ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active loans: %w", err)
	}
	defer rows.Close()

	var active []models.ActiveLoan
	for rows.Next() {
		var l models.Loan
		var b models.Book
		err := rows.Scan(&l.ID, &l.UserID, &l.BookID, &l.LoanDate, &l.DueDate,
			&l.ReturnDate, &l.IsReturned, &l.CreatedAt, &l.UpdatedAt,
			&b.ID, &b.Title, &b.Author, &b.Year, &b.ISBN, &b.Language, &b.Genre,
			&b.Publisher, &b.Description, &b.AvailableCopies, &b.TotalCopies,
			&b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan active loan: %w", err)
		}
		active = append(active, models.ActiveLoan{
			Loan:      l,
			Book:      b,
			IsOverdue: l.IsOverdue(),
		})
	}
	return active, rows.Err()
}

// LoansForUser pages through the user's full loan record, newest first.
func (s *LendingService) LoansForUser(ctx context.Context, userID uuid.UUID, page, perPage int) (*models.LoanListResponse, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	var total int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM loans WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count loans: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+loanColumns+` FROM loans
		WHERE user_id = $1
		ORDER BY loan_date DESC LIMIT $2 OFFSET $3`,
		userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch loans: %w", err)
	}

	loans, err := s.collectLoans(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan loans: %w", err)
	}

	return &models.LoanListResponse{
		Loans:      loans,
		Page:       page,
		TotalPages: (total + perPage - 1) / perPage,
		TotalItems: total,
	}, nil
}

// ActiveLoanForBook reports whether the user currently holds the book.
func (s *LendingService) ActiveLoanForBook(ctx context.Context, userID, bookID uuid.UUID) (*models.Loan, error) {
	loan, err := scanLoan(s.db.QueryRow(ctx, `
		SELECT `+loanColumns+` FROM loans
		WHERE user_id = $1 AND book_id = $2 AND is_returned = false`,
		userID, bookID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active loan: %w", err)
	}
	return loan, nil
}

// OverdueLoans lists every open loan past its due date.
func (s *LendingService) OverdueLoans(ctx context.Context) ([]models.Loan, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+loanColumns+` FROM loans
		WHERE is_returned = false AND due_date < $1
		ORDER BY due_date ASC`, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch overdue loans: %w", err)
	}
	return s.collectLoans(rows)
}

// BorrowedBookIDs lists every book the user ever took out, open or closed.
// The recommendation engine excludes these from its results.
func (s *LendingService) BorrowedBookIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT book_id FROM loans WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch borrowed book ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
