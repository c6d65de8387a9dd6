package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librimongo/librimongo/pkg/models"
)

type stubHistorian struct {
	appended []*models.Loan
	returned []uuid.UUID
}

func (s *stubHistorian) AppendLoanHistory(_ context.Context, loan *models.Loan) error {
	s.appended = append(s.appended, loan)
	return nil
}

func (s *stubHistorian) MarkLoanReturned(_ context.Context, loanID uuid.UUID, _ time.Time) error {
	s.returned = append(s.returned, loanID)
	return nil
}

func newTestLending(t *testing.T) (*LendingService, pgxmock.PgxPoolIface, *stubHistorian) {
	t.Helper()

	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	history := &stubHistorian{}
	return NewLendingService(mockDB, history, logger, 14, 90), mockDB, history
}

func loanRow(loanID, userID, bookID uuid.UUID) *pgxmock.Rows {
	now := time.Now().UTC()
	return pgxmock.NewRows([]string{
		"id", "user_id", "book_id", "loan_date", "due_date", "return_date",
		"is_returned", "created_at", "updated_at",
	}).AddRow(loanID, userID, bookID, now, now.AddDate(0, 0, 14), nil, false, now, now)
}

func TestLend(t *testing.T) {
	userID := uuid.New()
	bookID := uuid.New()

	t.Run("successful lend decrements availability", func(t *testing.T) {
		service, mockDB, history := newTestLending(t)

		mockDB.ExpectBegin()
		mockDB.ExpectQuery("SELECT available_copies FROM books").
			WithArgs(bookID).
			WillReturnRows(pgxmock.NewRows([]string{"available_copies"}).AddRow(2))
		mockDB.ExpectQuery("SELECT COUNT").
			WithArgs(userID, bookID).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
		mockDB.ExpectExec("INSERT INTO loans").
			WithArgs(pgxmock.AnyArg(), userID, bookID, pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockDB.ExpectExec("UPDATE books").
			WithArgs(bookID, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mockDB.ExpectCommit()

		loan, err := service.Lend(context.Background(), userID, bookID, 0)
		require.NoError(t, err)

		assert.Equal(t, userID, loan.UserID)
		assert.Equal(t, bookID, loan.BookID)
		assert.False(t, loan.IsReturned)
		assert.Equal(t, loan.LoanDate.AddDate(0, 0, 14), loan.DueDate)

		require.Len(t, history.appended, 1)
		assert.Equal(t, loan.ID, history.appended[0].ID)

		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("loan period is clamped to the maximum", func(t *testing.T) {
		service, mockDB, _ := newTestLending(t)

		mockDB.ExpectBegin()
		mockDB.ExpectQuery("SELECT available_copies FROM books").
			WithArgs(bookID).
			WillReturnRows(pgxmock.NewRows([]string{"available_copies"}).AddRow(1))
		mockDB.ExpectQuery("SELECT COUNT").
			WithArgs(userID, bookID).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
		mockDB.ExpectExec("INSERT INTO loans").
			WithArgs(pgxmock.AnyArg(), userID, bookID, pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockDB.ExpectExec("UPDATE books").
			WithArgs(bookID, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mockDB.ExpectCommit()

		loan, err := service.Lend(context.Background(), userID, bookID, 365)
		require.NoError(t, err)

		assert.Equal(t, loan.LoanDate.AddDate(0, 0, 90), loan.DueDate)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("unknown book", func(t *testing.T) {
		service, mockDB, history := newTestLending(t)

		mockDB.ExpectBegin()
		mockDB.ExpectQuery("SELECT available_copies FROM books").
			WithArgs(bookID).
			WillReturnError(pgx.ErrNoRows)
		mockDB.ExpectRollback()

		_, err := service.Lend(context.Background(), userID, bookID, 0)
		assert.ErrorIs(t, err, ErrBookNotFound)
		assert.Empty(t, history.appended)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("no copies available", func(t *testing.T) {
		service, mockDB, _ := newTestLending(t)

		mockDB.ExpectBegin()
		mockDB.ExpectQuery("SELECT available_copies FROM books").
			WithArgs(bookID).
			WillReturnRows(pgxmock.NewRows([]string{"available_copies"}).AddRow(0))
		mockDB.ExpectRollback()

		_, err := service.Lend(context.Background(), userID, bookID, 0)
		assert.ErrorIs(t, err, ErrNoCopiesAvailable)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("duplicate open loan", func(t *testing.T) {
		service, mockDB, _ := newTestLending(t)

		mockDB.ExpectBegin()
		mockDB.ExpectQuery("SELECT available_copies FROM books").
			WithArgs(bookID).
			WillReturnRows(pgxmock.NewRows([]string{"available_copies"}).AddRow(1))
		mockDB.ExpectQuery("SELECT COUNT").
			WithArgs(userID, bookID).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
		mockDB.ExpectRollback()

		_, err := service.Lend(context.Background(), userID, bookID, 0)
		assert.ErrorIs(t, err, ErrAlreadyOnLoan)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestReturn(t *testing.T) {
	userID := uuid.New()
	bookID := uuid.New()
	loanID := uuid.New()

	t.Run("successful return releases the copy", func(t *testing.T) {
		service, mockDB, history := newTestLending(t)

		mockDB.ExpectBegin()
		mockDB.ExpectQuery("SELECT id, user_id, book_id").
			WithArgs(loanID, userID).
			WillReturnRows(loanRow(loanID, userID, bookID))
		mockDB.ExpectExec("UPDATE loans").
			WithArgs(loanID, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mockDB.ExpectExec("UPDATE books").
			WithArgs(bookID, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mockDB.ExpectCommit()

		loan, err := service.Return(context.Background(), userID, loanID)
		require.NoError(t, err)

		assert.True(t, loan.IsReturned)
		require.NotNil(t, loan.ReturnDate)

		require.Len(t, history.returned, 1)
		assert.Equal(t, loanID, history.returned[0])

		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("no matching open loan", func(t *testing.T) {
		service, mockDB, history := newTestLending(t)

		mockDB.ExpectBegin()
		mockDB.ExpectQuery("SELECT id, user_id, book_id").
			WithArgs(loanID, userID).
			WillReturnError(pgx.ErrNoRows)
		mockDB.ExpectRollback()

		_, err := service.Return(context.Background(), userID, loanID)
		assert.ErrorIs(t, err, ErrLoanNotFound)
		assert.Empty(t, history.returned)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestActiveLoanForBook(t *testing.T) {
	service, mockDB, _ := newTestLending(t)

	userID := uuid.New()
	bookID := uuid.New()

	t.Run("open loan found", func(t *testing.T) {
		loanID := uuid.New()
		mockDB.ExpectQuery("SELECT id, user_id, book_id").
			WithArgs(userID, bookID).
			WillReturnRows(loanRow(loanID, userID, bookID))

		loan, err := service.ActiveLoanForBook(context.Background(), userID, bookID)
		require.NoError(t, err)
		require.NotNil(t, loan)
		assert.Equal(t, loanID, loan.ID)
	})

	t.Run("no open loan yields nil", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT id, user_id, book_id").
			WithArgs(userID, bookID).
			WillReturnError(pgx.ErrNoRows)

		loan, err := service.ActiveLoanForBook(context.Background(), userID, bookID)
		require.NoError(t, err)
		assert.Nil(t, loan)
	})

	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestLoansForUser(t *testing.T) {
	service, mockDB, _ := newTestLending(t)

	userID := uuid.New()

	mockDB.ExpectQuery("SELECT COUNT").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	mockDB.ExpectQuery("SELECT id, user_id, book_id").
		WithArgs(userID, 2, 0).
		WillReturnRows(loanRow(uuid.New(), userID, uuid.New()).
			AddRow(uuid.New(), userID, uuid.New(), time.Now().UTC(), time.Now().UTC(),
				nil, false, time.Now().UTC(), time.Now().UTC()))

	resp, err := service.LoansForUser(context.Background(), userID, 1, 2)
	require.NoError(t, err)

	assert.Len(t, resp.Loans, 2)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 2, resp.TotalPages)
	assert.Equal(t, 3, resp.TotalItems)
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestBorrowedBookIDs(t *testing.T) {
	service, mockDB, _ := newTestLending(t)

	userID := uuid.New()
	b1, b2 := uuid.New(), uuid.New()

	mockDB.ExpectQuery("SELECT DISTINCT book_id FROM loans").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"book_id"}).AddRow(b1).AddRow(b2))

	ids, err := service.BorrowedBookIDs(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b1, b2}, ids)
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestOverdueLoans(t *testing.T) {
	service, mockDB, _ := newTestLending(t)

	mockDB.ExpectQuery("SELECT id, user_id, book_id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(loanRow(uuid.New(), uuid.New(), uuid.New()))

	loans, err := service.OverdueLoans(context.Background())
	require.NoError(t, err)
	assert.Len(t, loans, 1)
	require.NoError(t, mockDB.ExpectationsWereMet())
}
