package services

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/librimongo/librimongo/internal/config"
	"github.com/librimongo/librimongo/pkg/models"
)

// catalogReader is the slice of the catalog the engine scans. Keeping the
// full-collection scans behind this interface leaves room for an indexed
// or sampled variant later without touching callers.
type catalogReader interface {
	BookByID(ctx context.Context, id uuid.UUID) (*models.Book, error)
	AllBooks(ctx context.Context) ([]models.Book, error)
	BooksByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Book, error)
	BooksInGenre(ctx context.Context, genre string, exclude []uuid.UUID, limit int) ([]models.Book, error)
	TopBooksByLoanCount(ctx context.Context, since time.Time, limit int) ([]models.Book, error)
	AllUserIDs(ctx context.Context, excluding uuid.UUID) ([]uuid.UUID, error)
}

// documentReader is the document-store slice the engine reads: borrowing
// signals and review signals.
type documentReader interface {
	LoanHistoryForUser(ctx context.Context, userID uuid.UUID) ([]models.LoanHistoryRecord, error)
	BorrowersOfBook(ctx context.Context, bookID uuid.UUID) ([]uuid.UUID, error)
	ReviewsByUserWithMinRating(ctx context.Context, userID uuid.UUID, minRating int) ([]models.Review, error)
	AverageRatings(ctx context.Context) (map[uuid.UUID]float64, error)
}

type activitySink interface {
	Record(ctx context.Context, record models.ActivityRecord) bool
}

// RecommendationService derives genre-preference vectors, user and book
// similarity, and ranked recommendation lists. Everything is recomputed
// per call from current history and reviews; nothing is cached across
// calls.
type RecommendationService struct {
	catalog  catalogReader
	docs     documentReader
	activity activitySink
	logger   *logrus.Logger
	cfg      config.RecommendationConfig
}

func NewRecommendationService(catalog catalogReader, docs documentReader, activity activitySink, logger *logrus.Logger, cfg config.RecommendationConfig) *RecommendationService {
	return &RecommendationService{
		catalog:  catalog,
		docs:     docs,
		activity: activity,
		logger:   logger,
		cfg:      cfg,
	}
}

// genrePreferencesFrom accumulates affinity scores from data snapshots:
// weight 1 per borrowed book, weight 2 per positively reviewed book.
// Books without a genre contribute nothing.
func genrePreferencesFrom(loans []models.LoanHistoryRecord, reviews []models.Review, genreByBook map[uuid.UUID]string) models.GenrePreferences {
	prefs := models.GenrePreferences{}
	for _, loan := range loans {
		if genre := genreByBook[loan.BookID]; genre != "" {
			prefs[genre] += 1
		}
	}
	for _, review := range reviews {
		if genre := genreByBook[review.BookID]; genre != "" {
			prefs[genre] += 2
		}
	}
	return prefs
}

// cosineSimilarity compares two preference vectors over the union of
// their genre keys. Either zero-magnitude vector yields 0.
func cosineSimilarity(a, b models.GenrePreferences) float64 {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	if len(keys) == 0 {
		return 0
	}

	va := make([]float64, 0, len(keys))
	vb := make([]float64, 0, len(keys))
	for k := range keys {
		va = append(va, a[k])
		vb = append(vb, b[k])
	}

	normA := floats.Norm(va, 2)
	normB := floats.Norm(vb, 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	return floats.Dot(va, vb) / (normA * normB)
}

// bookSimilarityScore is the additive blend: 0.4 for a genre match, 0.3
// for an author match, 0.3 times the Jaccard overlap of borrower sets.
// Clamped to [0, 1].
func bookSimilarityScore(a, b *models.Book, borrowersA, borrowersB []uuid.UUID) float64 {
	var score float64
	if a.Genre != "" && a.Genre == b.Genre {
		score += 0.4
	}
	if a.Author != "" && a.Author == b.Author {
		score += 0.3
	}
	score += 0.3 * borrowerOverlap(borrowersA, borrowersB)
	if score > 1 {
		score = 1
	}
	return score
}

func borrowerOverlap(a, b []uuid.UUID) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	seen := make(map[uuid.UUID]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	common := 0
	for _, id := range b {
		if _, ok := seen[id]; ok {
			common++
		}
	}

	union := len(a) + len(b) - common
	if union == 0 {
		return 0
	}
	return float64(common) / float64(union)
}

func uuidLess(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// genreLookup resolves the genres for the books referenced by loans and
// reviews in one catalog fetch.
func (s *RecommendationService) genreLookup(ctx context.Context, loans []models.LoanHistoryRecord, reviews []models.Review) (map[uuid.UUID]string, error) {
	idSet := make(map[uuid.UUID]struct{}, len(loans)+len(reviews))
	for _, loan := range loans {
		idSet[loan.BookID] = struct{}{}
	}
	for _, review := range reviews {
		idSet[review.BookID] = struct{}{}
	}

	ids := make([]uuid.UUID, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	books, err := s.catalog.BooksByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	genres := make(map[uuid.UUID]string, len(books))
	for _, book := range books {
		genres[book.ID] = book.Genre
	}
	return genres, nil
}

// GenrePreferences derives the user's affinity vector from loan history
// and positive reviews. An empty map means "no signal", never an error.
func (s *RecommendationService) GenrePreferences(ctx context.Context, userID uuid.UUID) (models.GenrePreferences, error) {
	loans, err := s.docs.LoanHistoryForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch loan history: %w", err)
	}

	reviews, err := s.docs.ReviewsByUserWithMinRating(ctx, userID, s.cfg.PositiveRating)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch positive reviews: %w", err)
	}

	genres, err := s.genreLookup(ctx, loans, reviews)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve book genres: %w", err)
	}

	return genrePreferencesFrom(loans, reviews, genres), nil
}

// SimilarUsers scans every other user's preference vector and keeps those
// with cosine similarity at or above the threshold. Zero arguments fall
// back to the configured defaults. Equal scores order by user id.
func (s *RecommendationService) SimilarUsers(ctx context.Context, userID uuid.UUID, minSimilarity float64, maxResults int) ([]models.SimilarUser, error) {
	if minSimilarity <= 0 {
		minSimilarity = s.cfg.MinUserSimilarity
	}
	if maxResults <= 0 {
		maxResults = s.cfg.MaxSimilarUsers
	}

	target, err := s.GenrePreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(target) == 0 {
		return nil, nil
	}

	others, err := s.catalog.AllUserIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	var similar []models.SimilarUser
	for _, other := range others {
		prefs, err := s.GenrePreferences(ctx, other)
		if err != nil {
			return nil, err
		}
		if len(prefs) == 0 {
			continue
		}

		score := cosineSimilarity(target, prefs)
		if score >= minSimilarity {
			similar = append(similar, models.SimilarUser{UserID: other, Similarity: score})
		}
	}

	sort.Slice(similar, func(i, j int) bool {
		if similar[i].Similarity != similar[j].Similarity {
			return similar[i].Similarity > similar[j].Similarity
		}
		return uuidLess(similar[i].UserID, similar[j].UserID)
	})

	if len(similar) > maxResults {
		similar = similar[:maxResults]
	}
	return similar, nil
}

// BookSimilarity scores two books. Missing books degrade to 0.
func (s *RecommendationService) BookSimilarity(ctx context.Context, bookA, bookB uuid.UUID) (float64, error) {
	a, err := s.catalog.BookByID(ctx, bookA)
	if err != nil {
		return 0, err
	}
	b, err := s.catalog.BookByID(ctx, bookB)
	if err != nil {
		return 0, err
	}
	if a == nil || b == nil {
		return 0, nil
	}

	borrowersA, err := s.docs.BorrowersOfBook(ctx, bookA)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch borrowers: %w", err)
	}
	borrowersB, err := s.docs.BorrowersOfBook(ctx, bookB)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch borrowers: %w", err)
	}

	return bookSimilarityScore(a, b, borrowersA, borrowersB), nil
}

// SimilarBooks scores the source book against the whole catalog and keeps
// matches at or above the threshold. A missing source book yields an
// empty list. Equal scores order by book id.
func (s *RecommendationService) SimilarBooks(ctx context.Context, bookID uuid.UUID, minSimilarity float64, maxResults int) ([]models.ScoredBook, error) {
	if minSimilarity <= 0 {
		minSimilarity = s.cfg.MinBookSimilarity
	}
	if maxResults <= 0 {
		maxResults = s.cfg.MaxSimilarBooks
	}

	source, err := s.catalog.BookByID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, nil
	}

	sourceBorrowers, err := s.docs.BorrowersOfBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch borrowers: %w", err)
	}

	books, err := s.catalog.AllBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}

	var scored []models.ScoredBook
	for i := range books {
		candidate := &books[i]
		if candidate.ID == bookID {
			continue
		}

		borrowers, err := s.docs.BorrowersOfBook(ctx, candidate.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch borrowers: %w", err)
		}

		score := bookSimilarityScore(source, candidate, sourceBorrowers, borrowers)
		if score >= minSimilarity {
			scored = append(scored, models.ScoredBook{Book: *candidate, Similarity: score})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return uuidLess(scored[i].Book.ID, scored[j].Book.ID)
	})

	if len(scored) > maxResults {
		scored = scored[:maxResults]
	}
	return scored, nil
}

// PopularBooks merges two rankings: loan volume first, then average
// review rating as backfill. windowDays > 0 restricts the loan-count
// ranking to loans started inside the window; ratings are always global.
func (s *RecommendationService) PopularBooks(ctx context.Context, maxResults, windowDays int) ([]models.Book, error) {
	if maxResults <= 0 {
		maxResults = s.cfg.DefaultLimit
	}

	var since time.Time
	if windowDays > 0 {
		since = time.Now().UTC().AddDate(0, 0, -windowDays)
	}

	byLoans, err := s.catalog.TopBooksByLoanCount(ctx, since, maxResults)
	if err != nil {
		return nil, err
	}

	ratings, err := s.docs.AverageRatings(ctx)
	if err != nil {
		return nil, err
	}

	ratedIDs := make([]uuid.UUID, 0, len(ratings))
	for id := range ratings {
		ratedIDs = append(ratedIDs, id)
	}
	ratedBooks, err := s.catalog.BooksByIDs(ctx, ratedIDs)
	if err != nil {
		return nil, err
	}

	sort.Slice(ratedBooks, func(i, j int) bool {
		ri, rj := ratings[ratedBooks[i].ID], ratings[ratedBooks[j].ID]
		if ri != rj {
			return ri > rj
		}
		return uuidLess(ratedBooks[i].ID, ratedBooks[j].ID)
	})
	if len(ratedBooks) > maxResults {
		ratedBooks = ratedBooks[:maxResults]
	}

	seen := make(map[uuid.UUID]struct{}, maxResults)
	merged := make([]models.Book, 0, maxResults)
	for _, list := range [][]models.Book{byLoans, ratedBooks} {
		for _, book := range list {
			if len(merged) >= maxResults {
				return merged, nil
			}
			if _, ok := seen[book.ID]; ok {
				continue
			}
			seen[book.ID] = struct{}{}
			merged = append(merged, book)
		}
	}
	return merged, nil
}

// RecommendationsForUser runs the three strategies in fixed priority
// order, accumulating candidates with duplicate suppression: genre
// affinity, then similar-user endorsements, then popularity backfill.
func (s *RecommendationService) RecommendationsForUser(ctx context.Context, userID uuid.UUID, maxResults int, excludeRead bool) ([]models.Book, error) {
	if maxResults <= 0 {
		maxResults = s.cfg.DefaultLimit
	}

	loans, err := s.docs.LoanHistoryForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch loan history: %w", err)
	}

	excluded := make(map[uuid.UUID]struct{})
	var excludedIDs []uuid.UUID
	if excludeRead {
		for _, loan := range loans {
			if _, ok := excluded[loan.BookID]; ok {
				continue
			}
			excluded[loan.BookID] = struct{}{}
			excludedIDs = append(excludedIDs, loan.BookID)
		}
	}

	seen := make(map[uuid.UUID]struct{}, maxResults)
	var candidates []models.Book
	add := func(book models.Book) {
		if _, ok := excluded[book.ID]; ok {
			return
		}
		if _, ok := seen[book.ID]; ok {
			return
		}
		seen[book.ID] = struct{}{}
		candidates = append(candidates, book)
	}

	// Strategy 1: genre affinity.
	prefs, err := s.GenrePreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, genre := range topGenres(prefs, s.cfg.TopGenres) {
		books, err := s.catalog.BooksInGenre(ctx, genre, excludedIDs, s.cfg.BooksPerGenre)
		if err != nil {
			return nil, err
		}
		for _, book := range books {
			add(book)
		}
	}

	// Strategy 2: books endorsed by similar users.
	similar, err := s.SimilarUsers(ctx, userID, 0, 0)
	if err != nil {
		return nil, err
	}
	for _, su := range similar {
		reviews, err := s.docs.ReviewsByUserWithMinRating(ctx, su.UserID, s.cfg.PositiveRating)
		if err != nil {
			return nil, err
		}
		for _, review := range reviews {
			if _, ok := excluded[review.BookID]; ok {
				continue
			}
			if _, ok := seen[review.BookID]; ok {
				continue
			}
			book, err := s.catalog.BookByID(ctx, review.BookID)
			if err != nil {
				return nil, err
			}
			if book == nil {
				continue
			}
			add(*book)
		}
	}

	// Strategy 3: popularity backfill.
	if len(candidates) < maxResults {
		popular, err := s.PopularBooks(ctx, maxResults, s.cfg.PopularityWindowDays)
		if err != nil {
			return nil, err
		}
		for _, book := range popular {
			add(book)
		}
	}

	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}
	return candidates, nil
}

// RecommendationsForBook is the catalog-page "similar items" list: top
// similar books with scores projected out.
func (s *RecommendationService) RecommendationsForBook(ctx context.Context, bookID uuid.UUID, maxResults int) ([]models.Book, error) {
	if maxResults <= 0 {
		maxResults = s.cfg.BookRecommendations
	}

	scored, err := s.SimilarBooks(ctx, bookID, 0, maxResults)
	if err != nil {
		return nil, err
	}

	books := make([]models.Book, 0, len(scored))
	for _, sb := range scored {
		books = append(books, sb.Book)
	}
	return books, nil
}

// RecordInteraction forwards the event to the activity pipeline. False
// means the event was dropped; the caller's operation is unaffected.
func (s *RecommendationService) RecordInteraction(ctx context.Context, userID, bookID uuid.UUID, interactionType string, details map[string]interface{}) bool {
	if s.activity == nil {
		return false
	}
	return s.activity.Record(ctx, models.ActivityRecord{
		Type:      interactionType,
		UserID:    userID,
		BookID:    bookID,
		Details:   details,
		Timestamp: time.Now().UTC(),
	})
}

// topGenres orders genres by score descending, label ascending on ties,
// and returns the first n labels.
func topGenres(prefs models.GenrePreferences, n int) []string {
	if n <= 0 {
		n = 3
	}

	genres := make([]string, 0, len(prefs))
	for genre := range prefs {
		genres = append(genres, genre)
	}
	sort.Slice(genres, func(i, j int) bool {
		if prefs[genres[i]] != prefs[genres[j]] {
			return prefs[genres[i]] > prefs[genres[j]]
		}
		return genres[i] < genres[j]
	})

	if len(genres) > n {
		genres = genres[:n]
	}
	return genres
}
