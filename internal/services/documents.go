package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/librimongo/librimongo/pkg/models"
)

const (
	reviewsCollection     = "reviews"
	loanHistoryCollection = "loan_history"
	bookTextsCollection   = "book_texts"
	preferencesCollection = "user_preferences"
	activityCollection    = "activity_log"
)

// DocumentService owns the schemaless side of persistence: reviews, the
// loan-history log, book text content, user preferences and the activity
// log. Entity ids are stored as strings so the documents stay readable in
// shell queries.
type DocumentService struct {
	db     *mongo.Database
	logger *logrus.Logger
}

func NewDocumentService(db *mongo.Database, logger *logrus.Logger) *DocumentService {
	return &DocumentService{db: db, logger: logger}
}

type reviewDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	BookID    string             `bson:"book_id"`
	UserID    string             `bson:"user_id"`
	Rating    int                `bson:"rating"`
	Text      string             `bson:"text,omitempty"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

func (d reviewDoc) toModel() models.Review {
	bookID, _ := uuid.Parse(d.BookID)
	userID, _ := uuid.Parse(d.UserID)
	return models.Review{
		ID:        d.ID.Hex(),
		BookID:    bookID,
		UserID:    userID,
		Rating:    d.Rating,
		Text:      d.Text,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type loanHistoryDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	LoanID     string             `bson:"loan_id"`
	UserID     string             `bson:"user_id"`
	BookID     string             `bson:"book_id"`
	LoanDate   time.Time          `bson:"loan_date"`
	DueDate    time.Time          `bson:"due_date"`
	ReturnDate *time.Time         `bson:"return_date,omitempty"`
	IsReturned bool               `bson:"is_returned"`
	CreatedAt  time.Time          `bson:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at"`
}

func (d loanHistoryDoc) toModel() models.LoanHistoryRecord {
	loanID, _ := uuid.Parse(d.LoanID)
	userID, _ := uuid.Parse(d.UserID)
	bookID, _ := uuid.Parse(d.BookID)
	return models.LoanHistoryRecord{
		ID:         d.ID.Hex(),
		LoanID:     loanID,
		UserID:     userID,
		BookID:     bookID,
		LoanDate:   d.LoanDate,
		DueDate:    d.DueDate,
		ReturnDate: d.ReturnDate,
		IsReturned: d.IsReturned,
	}
}

type bookTextDoc struct {
	BookID    string    `bson:"book_id"`
	Content   string    `bson:"content"`
	Format    string    `bson:"format"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type preferencesDoc struct {
	UserID           string    `bson:"user_id"`
	PreferredGenres  []string  `bson:"preferred_genres"`
	PreferredAuthors []string  `bson:"preferred_authors"`
	ReadingFrequency string    `bson:"reading_frequency"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

// AddReview inserts a review. Rating range is the one input validation
// error this layer raises.
func (s *DocumentService) AddReview(ctx context.Context, bookID, userID uuid.UUID, rating int, text string) (*models.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	now := time.Now().UTC()
	doc := reviewDoc{
		BookID:    bookID.String(),
		UserID:    userID.String(),
		Rating:    rating,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}

	result, err := s.db.Collection(reviewsCollection).InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to insert review: %w", err)
	}

	doc.ID = result.InsertedID.(primitive.ObjectID)
	review := doc.toModel()
	return &review, nil
}

func (s *DocumentService) UpdateReview(ctx context.Context, reviewID string, userID uuid.UUID, req models.ReviewUpdateRequest) error {
	objectID, err := primitive.ObjectIDFromHex(reviewID)
	if err != nil {
		return ErrReviewNotFound
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	if req.Rating != nil {
		if *req.Rating < 1 || *req.Rating > 5 {
			return ErrInvalidRating
		}
		set["rating"] = *req.Rating
	}
	if req.Text != nil {
		set["text"] = *req.Text
	}

	result, err := s.db.Collection(reviewsCollection).UpdateOne(ctx,
		bson.M{"_id": objectID, "user_id": userID.String()},
		bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update review: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrReviewNotFound
	}
	return nil
}

func (s *DocumentService) DeleteReview(ctx context.Context, reviewID string, userID uuid.UUID) error {
	objectID, err := primitive.ObjectIDFromHex(reviewID)
	if err != nil {
		return ErrReviewNotFound
	}

	result, err := s.db.Collection(reviewsCollection).DeleteOne(ctx,
		bson.M{"_id": objectID, "user_id": userID.String()})
	if err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrReviewNotFound
	}
	return nil
}

func (s *DocumentService) ReviewByID(ctx context.Context, reviewID string) (*models.Review, error) {
	objectID, err := primitive.ObjectIDFromHex(reviewID)
	if err != nil {
		return nil, nil
	}

	var doc reviewDoc
	err = s.db.Collection(reviewsCollection).FindOne(ctx, bson.M{"_id": objectID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch review: %w", err)
	}

	review := doc.toModel()
	return &review, nil
}

func (s *DocumentService) findReviews(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Review, error) {
	cursor, err := s.db.Collection(reviewsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}

	var docs []reviewDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode reviews: %w", err)
	}

	reviews := make([]models.Review, 0, len(docs))
	for _, d := range docs {
		reviews = append(reviews, d.toModel())
	}
	return reviews, nil
}

func (s *DocumentService) ReviewsForBook(ctx context.Context, bookID uuid.UUID, limit int) ([]models.Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findReviews(ctx, bson.M{"book_id": bookID.String()}, opts)
}

func (s *DocumentService) ReviewsByUserPaged(ctx context.Context, userID uuid.UUID, page, perPage int) ([]models.Review, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}

	filter := bson.M{"user_id": userID.String()}

	total, err := s.db.Collection(reviewsCollection).CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * perPage)).
		SetLimit(int64(perPage))

	reviews, err := s.findReviews(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return reviews, int(total), nil
}

// ReviewsByUserWithMinRating feeds the similar-user recommendation
// strategy: only reviews at or above the threshold count as endorsements.
func (s *DocumentService) ReviewsByUserWithMinRating(ctx context.Context, userID uuid.UUID, minRating int) ([]models.Review, error) {
	filter := bson.M{
		"user_id": userID.String(),
		"rating":  bson.M{"$gte": minRating},
	}
	return s.findReviews(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

func (s *DocumentService) CountReviewsByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	total, err := s.db.Collection(reviewsCollection).CountDocuments(ctx,
		bson.M{"user_id": userID.String()})
	if err != nil {
		return 0, fmt.Errorf("failed to count reviews: %w", err)
	}
	return int(total), nil
}

// AverageRating returns the mean rating for a book and whether any rating
// exists.
func (s *DocumentService) AverageRating(ctx context.Context, bookID uuid.UUID) (float64, bool, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "book_id", Value: bookID.String()}}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$book_id"},
			{Key: "avg_rating", Value: bson.D{{Key: "$avg", Value: "$rating"}}},
		}}},
	}

	cursor, err := s.db.Collection(reviewsCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, false, fmt.Errorf("failed to aggregate ratings: %w", err)
	}

	var results []struct {
		Avg float64 `bson:"avg_rating"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, false, fmt.Errorf("failed to decode rating aggregate: %w", err)
	}
	if len(results) == 0 {
		return 0, false, nil
	}
	return results[0].Avg, true, nil
}

// AverageRatings aggregates mean ratings for every reviewed book in one
// pass; the popularity ranking consumes the whole map.
func (s *DocumentService) AverageRatings(ctx context.Context) (map[uuid.UUID]float64, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$book_id"},
			{Key: "avg_rating", Value: bson.D{{Key: "$avg", Value: "$rating"}}},
		}}},
	}

	cursor, err := s.db.Collection(reviewsCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate ratings: %w", err)
	}

	var results []struct {
		BookID string  `bson:"_id"`
		Avg    float64 `bson:"avg_rating"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode rating aggregates: %w", err)
	}

	ratings := make(map[uuid.UUID]float64, len(results))
	for _, r := range results {
		id, err := uuid.Parse(r.BookID)
		if err != nil {
			continue
		}
		ratings[id] = r.Avg
	}
	return ratings, nil
}

// AppendLoanHistory mirrors a fresh loan into the history log.
func (s *DocumentService) AppendLoanHistory(ctx context.Context, loan *models.Loan) error {
	now := time.Now().UTC()
	doc := loanHistoryDoc{
		LoanID:     loan.ID.String(),
		UserID:     loan.UserID.String(),
		BookID:     loan.BookID.String(),
		LoanDate:   loan.LoanDate,
		DueDate:    loan.DueDate,
		ReturnDate: loan.ReturnDate,
		IsReturned: loan.IsReturned,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if _, err := s.db.Collection(loanHistoryCollection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to append loan history: %w", err)
	}
	return nil
}

func (s *DocumentService) MarkLoanReturned(ctx context.Context, loanID uuid.UUID, returnDate time.Time) error {
	_, err := s.db.Collection(loanHistoryCollection).UpdateOne(ctx,
		bson.M{"loan_id": loanID.String()},
		bson.M{"$set": bson.M{
			"return_date": returnDate,
			"is_returned": true,
			"updated_at":  time.Now().UTC(),
		}})
	if err != nil {
		return fmt.Errorf("failed to mark loan returned: %w", err)
	}
	return nil
}

func (s *DocumentService) findLoanHistory(ctx context.Context, filter bson.M) ([]models.LoanHistoryRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "loan_date", Value: -1}})
	cursor, err := s.db.Collection(loanHistoryCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query loan history: %w", err)
	}

	var docs []loanHistoryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode loan history: %w", err)
	}

	records := make([]models.LoanHistoryRecord, 0, len(docs))
	for _, d := range docs {
		records = append(records, d.toModel())
	}
	return records, nil
}

func (s *DocumentService) LoanHistoryForUser(ctx context.Context, userID uuid.UUID) ([]models.LoanHistoryRecord, error) {
	return s.findLoanHistory(ctx, bson.M{"user_id": userID.String()})
}

func (s *DocumentService) LoanHistoryForBook(ctx context.Context, bookID uuid.UUID) ([]models.LoanHistoryRecord, error) {
	return s.findLoanHistory(ctx, bson.M{"book_id": bookID.String()})
}

// BorrowersOfBook returns the distinct users who ever borrowed the book;
// the book-similarity overlap term works on these sets.
func (s *DocumentService) BorrowersOfBook(ctx context.Context, bookID uuid.UUID) ([]uuid.UUID, error) {
	values, err := s.db.Collection(loanHistoryCollection).Distinct(ctx, "user_id",
		bson.M{"book_id": bookID.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch borrowers: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		if id, err := uuid.Parse(str); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// BooksReadCount counts distinct returned books in a user's history.
func (s *DocumentService) BooksReadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	values, err := s.db.Collection(loanHistoryCollection).Distinct(ctx, "book_id",
		bson.M{"user_id": userID.String(), "is_returned": true})
	if err != nil {
		return 0, fmt.Errorf("failed to count books read: %w", err)
	}
	return len(values), nil
}

// MarkBookRead records a book as read without going through lending: a
// history entry that is already returned. It feeds the same preference
// and statistics paths as a completed loan.
func (s *DocumentService) MarkBookRead(ctx context.Context, userID, bookID uuid.UUID) error {
	now := time.Now().UTC()
	doc := loanHistoryDoc{
		LoanID:     uuid.New().String(),
		UserID:     userID.String(),
		BookID:     bookID.String(),
		LoanDate:   now,
		DueDate:    now,
		ReturnDate: &now,
		IsReturned: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if _, err := s.db.Collection(loanHistoryCollection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to mark book read: %w", err)
	}
	return nil
}

// ReadingStatistics summarizes a user's reading habits from the history
// log and their reviews.
func (s *DocumentService) ReadingStatistics(ctx context.Context, userID uuid.UUID) (*models.ReadingStatistics, error) {
	records, err := s.LoanHistoryForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	reviews, err := s.findReviews(ctx, bson.M{"user_id": userID.String()}, options.Find())
	if err != nil {
		return nil, err
	}

	stats := readingStatisticsFrom(records, reviews, time.Now().UTC())
	return &stats, nil
}

const statisticsMonths = 6

func readingStatisticsFrom(records []models.LoanHistoryRecord, reviews []models.Review, now time.Time) models.ReadingStatistics {
	read := make(map[uuid.UUID]struct{})
	for _, r := range records {
		if r.IsReturned {
			read[r.BookID] = struct{}{}
		}
	}

	var average float64
	if len(reviews) > 0 {
		sum := 0
		for _, review := range reviews {
			sum += review.Rating
		}
		average = float64(sum) / float64(len(reviews))
	}

	monthly := make([]models.MonthlyLoanCount, statisticsMonths)
	year, month := now.Year(), int(now.Month())
	for i := range monthly {
		y, m := year, month-i
		if m <= 0 {
			m += 12
			y--
		}
		monthly[i] = models.MonthlyLoanCount{Year: y, Month: m}
	}
	for _, r := range records {
		for i := range monthly {
			if r.LoanDate.Year() == monthly[i].Year && int(r.LoanDate.Month()) == monthly[i].Month {
				monthly[i].Count++
				break
			}
		}
	}

	return models.ReadingStatistics{
		TotalBooksRead:     len(read),
		TotalReviews:       len(reviews),
		AverageRatingGiven: average,
		MonthlyLoans:       monthly,
	}
}

func (s *DocumentService) BookContent(ctx context.Context, bookID uuid.UUID) (*models.BookText, error) {
	var doc bookTextDoc
	err := s.db.Collection(bookTextsCollection).FindOne(ctx,
		bson.M{"book_id": bookID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch book content: %w", err)
	}

	return &models.BookText{
		BookID:    bookID,
		Content:   doc.Content,
		Format:    doc.Format,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (s *DocumentService) SetBookContent(ctx context.Context, bookID uuid.UUID, content, format string) error {
	if format == "" {
		format = "text"
	}

	now := time.Now().UTC()
	_, err := s.db.Collection(bookTextsCollection).UpdateOne(ctx,
		bson.M{"book_id": bookID.String()},
		bson.M{
			"$set": bson.M{
				"content":    content,
				"format":     format,
				"updated_at": now,
			},
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to set book content: %w", err)
	}
	return nil
}

func (s *DocumentService) DeleteBookContent(ctx context.Context, bookID uuid.UUID) error {
	_, err := s.db.Collection(bookTextsCollection).DeleteOne(ctx,
		bson.M{"book_id": bookID.String()})
	if err != nil {
		return fmt.Errorf("failed to delete book content: %w", err)
	}
	return nil
}

// SearchBookContent matches the query as a case-insensitive literal inside
// stored book texts and returns the ids of the matching books.
func (s *DocumentService) SearchBookContent(ctx context.Context, query string, limit int) ([]uuid.UUID, error) {
	filter := bson.M{"content": primitive.Regex{
		Pattern: regexp.QuoteMeta(query),
		Options: "i",
	}}

	opts := options.Find().SetProjection(bson.M{"book_id": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.db.Collection(bookTextsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search book content: %w", err)
	}

	var docs []bookTextDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode content matches: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(docs))
	for _, d := range docs {
		if id, err := uuid.Parse(d.BookID); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Preferences returns stored reading preferences, or zero-value defaults
// when the user has never saved any.
func (s *DocumentService) Preferences(ctx context.Context, userID uuid.UUID) (*models.UserPreferences, error) {
	var doc preferencesDoc
	err := s.db.Collection(preferencesCollection).FindOne(ctx,
		bson.M{"user_id": userID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &models.UserPreferences{
			UserID:           userID,
			PreferredGenres:  []string{},
			PreferredAuthors: []string{},
			ReadingFrequency: "New reader",
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch preferences: %w", err)
	}

	return &models.UserPreferences{
		UserID:           userID,
		PreferredGenres:  doc.PreferredGenres,
		PreferredAuthors: doc.PreferredAuthors,
		ReadingFrequency: doc.ReadingFrequency,
		UpdatedAt:        doc.UpdatedAt,
	}, nil
}

func (s *DocumentService) UpdatePreferences(ctx context.Context, userID uuid.UUID, req models.PreferencesUpdateRequest) (*models.UserPreferences, error) {
	prefs := &models.UserPreferences{
		UserID:           userID,
		PreferredGenres:  req.PreferredGenres,
		PreferredAuthors: req.PreferredAuthors,
		ReadingFrequency: req.ReadingFrequency,
		UpdatedAt:        time.Now().UTC(),
	}
	if prefs.PreferredGenres == nil {
		prefs.PreferredGenres = []string{}
	}
	if prefs.PreferredAuthors == nil {
		prefs.PreferredAuthors = []string{}
	}
	if prefs.ReadingFrequency == "" {
		prefs.ReadingFrequency = "New reader"
	}

	_, err := s.db.Collection(preferencesCollection).UpdateOne(ctx,
		bson.M{"user_id": userID.String()},
		bson.M{"$set": bson.M{
			"preferred_genres":  prefs.PreferredGenres,
			"preferred_authors": prefs.PreferredAuthors,
			"reading_frequency": prefs.ReadingFrequency,
			"updated_at":        prefs.UpdatedAt,
		}},
		options.Update().SetUpsert(true))
	if err != nil {
		return nil, fmt.Errorf("failed to update preferences: %w", err)
	}
	return prefs, nil
}

// LogActivity appends to the activity log collection.
func (s *DocumentService) LogActivity(ctx context.Context, record models.ActivityRecord) error {
	doc := bson.M{
		"type":      record.Type,
		"user_id":   record.UserID.String(),
		"book_id":   record.BookID.String(),
		"details":   record.Details,
		"timestamp": record.Timestamp,
	}
	if _, err := s.db.Collection(activityCollection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}
	return nil
}
