package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librimongo/librimongo/pkg/models"
)

func historyRecord(userID, bookID uuid.UUID, loanDate time.Time, returned bool) models.LoanHistoryRecord {
	return models.LoanHistoryRecord{
		ID:         uuid.New().String(),
		LoanID:     uuid.New(),
		UserID:     userID,
		BookID:     bookID,
		LoanDate:   loanDate,
		DueDate:    loanDate.AddDate(0, 0, 14),
		IsReturned: returned,
	}
}

func TestReadingStatistics(t *testing.T) {
	now := time.Date(2026, time.February, 15, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	bookA := uuid.New()
	bookB := uuid.New()
	bookC := uuid.New()

	t.Run("counts distinct returned books only", func(t *testing.T) {
		records := []models.LoanHistoryRecord{
			historyRecord(userID, bookA, now.AddDate(0, 0, -3), true),
			historyRecord(userID, bookA, now.AddDate(0, -1, 0), true),
			historyRecord(userID, bookB, now.AddDate(0, 0, -1), false),
		}

		stats := readingStatisticsFrom(records, nil, now)

		assert.Equal(t, 1, stats.TotalBooksRead)
		assert.Equal(t, 0, stats.TotalReviews)
		assert.Zero(t, stats.AverageRatingGiven)
	})

	t.Run("averages the ratings the user gave", func(t *testing.T) {
		reviews := []models.Review{
			{BookID: bookA, UserID: userID, Rating: 5},
			{BookID: bookB, UserID: userID, Rating: 4},
			{BookID: bookC, UserID: userID, Rating: 2},
		}

		stats := readingStatisticsFrom(nil, reviews, now)

		assert.Equal(t, 3, stats.TotalReviews)
		assert.InDelta(t, 11.0/3.0, stats.AverageRatingGiven, 1e-9)
	})

	t.Run("tallies loans per month for the last six months", func(t *testing.T) {
		records := []models.LoanHistoryRecord{
			historyRecord(userID, bookA, now.AddDate(0, 0, -2), true),
			historyRecord(userID, bookB, now.AddDate(0, 0, -5), false),
			historyRecord(userID, bookC, time.Date(2025, time.December, 20, 0, 0, 0, 0, time.UTC), true),
			// Older than the window; must not appear anywhere.
			historyRecord(userID, bookC, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), true),
		}

		stats := readingStatisticsFrom(records, nil, now)

		require.Len(t, stats.MonthlyLoans, 6)
		assert.Equal(t, models.MonthlyLoanCount{Year: 2026, Month: 2, Count: 2}, stats.MonthlyLoans[0])
		assert.Equal(t, models.MonthlyLoanCount{Year: 2026, Month: 1, Count: 0}, stats.MonthlyLoans[1])
		assert.Equal(t, models.MonthlyLoanCount{Year: 2025, Month: 12, Count: 1}, stats.MonthlyLoans[2])
		assert.Equal(t, models.MonthlyLoanCount{Year: 2025, Month: 9, Count: 0}, stats.MonthlyLoans[5])

		total := 0
		for _, m := range stats.MonthlyLoans {
			total += m.Count
		}
		assert.Equal(t, 3, total)
	})

	t.Run("year boundary rolls months back correctly", func(t *testing.T) {
		january := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)

		stats := readingStatisticsFrom(nil, nil, january)

		require.Len(t, stats.MonthlyLoans, 6)
		assert.Equal(t, 2026, stats.MonthlyLoans[0].Year)
		assert.Equal(t, 1, stats.MonthlyLoans[0].Month)
		assert.Equal(t, 2025, stats.MonthlyLoans[1].Year)
		assert.Equal(t, 12, stats.MonthlyLoans[1].Month)
		assert.Equal(t, 2025, stats.MonthlyLoans[5].Year)
		assert.Equal(t, 8, stats.MonthlyLoans[5].Month)
	})
}
