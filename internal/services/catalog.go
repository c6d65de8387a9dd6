package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/librimongo/librimongo/pkg/models"
)

// pgPool is the subset of pgxpool.Pool the services use. pgxmock satisfies
// it, which keeps the store layers testable without a live database.
type pgPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

const bookColumns = `id, title, author, COALESCE(year, 0), COALESCE(isbn, ''),
		COALESCE(language, ''), COALESCE(genre, ''), COALESCE(publisher, ''),
		COALESCE(description, ''), available_copies, total_copies, created_at, updated_at`

const userColumns = `id, username, email, password_hash, COALESCE(first_name, ''),
		COALESCE(last_name, ''), is_admin, created_at, updated_at`

// CatalogService owns the relational entity set: users, books and their
// referential integrity. Loans live here too but are mutated by the lending
// engine.
type CatalogService struct {
	db     pgPool
	logger *logrus.Logger
}

func NewCatalogService(db pgPool, logger *logrus.Logger) *CatalogService {
	return &CatalogService{db: db, logger: logger}
}

func scanBook(row pgx.Row) (*models.Book, error) {
	var b models.Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Year, &b.ISBN, &b.Language,
		&b.Genre, &b.Publisher, &b.Description, &b.AvailableCopies, &b.TotalCopies,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBooks(rows pgx.Rows) ([]models.Book, error) {
	defer rows.Close()

	var books []models.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, *b)
	}
	return books, rows.Err()
}

// BookByID returns nil without error when the book does not exist; the
// recommendation engine relies on missing books degrading to "no result".
func (s *CatalogService) BookByID(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	row := s.db.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id)
	book, err := scanBook(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch book: %w", err)
	}
	return book, nil
}

func (s *CatalogService) BookByISBN(ctx context.Context, isbn string) (*models.Book, error) {
	row := s.db.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE isbn = $1`, isbn)
	book, err := scanBook(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch book by isbn: %w", err)
	}
	return book, nil
}

func (s *CatalogService) CreateBook(ctx context.Context, req models.BookCreateRequest) (*models.Book, error) {
	if req.ISBN != "" {
		existing, err := s.BookByISBN(ctx, req.ISBN)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, ErrISBNExists
		}
	}

	available := req.AvailableCopies
	total := req.TotalCopies
	if total <= 0 {
		total = 1
	}
	if available <= 0 {
		available = total
	}

	now := time.Now().UTC()
	book := &models.Book{
		ID:              uuid.New(),
		Title:           req.Title,
		Author:          req.Author,
		Year:            req.Year,
		ISBN:            req.ISBN,
		Language:        req.Language,
		Genre:           req.Genre,
		Publisher:       req.Publisher,
		Description:     req.Description,
		AvailableCopies: available,
		TotalCopies:     total,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO books (id, title, author, year, isbn, language, genre, publisher,
			description, available_copies, total_copies, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, 0), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''),
			NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12, $13)`,
		book.ID, book.Title, book.Author, book.Year, book.ISBN, book.Language,
		book.Genre, book.Publisher, book.Description, book.AvailableCopies,
		book.TotalCopies, book.CreatedAt, book.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert book: %w", err)
	}

	return book, nil
}

func (s *CatalogService) UpdateBook(ctx context.Context, id uuid.UUID, req models.BookUpdateRequest) (*models.Book, error) {
	book, err := s.BookByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, ErrBookNotFound
	}

	if req.ISBN != nil && *req.ISBN != book.ISBN && *req.ISBN != "" {
		existing, err := s.BookByISBN(ctx, *req.ISBN)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, ErrISBNExists
		}
	}

	if req.Title != nil {
		book.Title = *req.Title
	}
	if req.Author != nil {
		book.Author = *req.Author
	}
	if req.Year != nil {
		book.Year = *req.Year
	}
	if req.ISBN != nil {
		book.ISBN = *req.ISBN
	}
	if req.Language != nil {
		book.Language = *req.Language
	}
	if req.Genre != nil {
		book.Genre = *req.Genre
	}
	if req.Publisher != nil {
		book.Publisher = *req.Publisher
	}
	if req.Description != nil {
		book.Description = *req.Description
	}
	if req.AvailableCopies != nil {
		book.AvailableCopies = *req.AvailableCopies
	}
	if req.TotalCopies != nil {
		book.TotalCopies = *req.TotalCopies
	}
	book.UpdatedAt = time.Now().UTC()

	_, err = s.db.Exec(ctx, `
		UPDATE books SET title = $2, author = $3, year = NULLIF($4, 0),
			isbn = NULLIF($5, ''), language = NULLIF($6, ''), genre = NULLIF($7, ''),
			publisher = NULLIF($8, ''), description = NULLIF($9, ''),
			available_copies = $10, total_copies = $11, updated_at = $12
		WHERE id = $1`,
		book.ID, book.Title, book.Author, book.Year, book.ISBN, book.Language,
		book.Genre, book.Publisher, book.Description, book.AvailableCopies,
		book.TotalCopies, book.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update book: %w", err)
	}

	return book, nil
}

func (s *CatalogService) DeleteBook(ctx context.Context, id uuid.UUID) error {
	var activeLoans int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM loans WHERE book_id = $1 AND is_returned = false`, id).
		Scan(&activeLoans)
	if err != nil {
		return fmt.Errorf("failed to count active loans: %w", err)
	}
	if activeLoans > 0 {
		return ErrBookHasActiveLoans
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookNotFound
	}
	return nil
}

var bookSortColumns = map[string]string{
	"title":  "title",
	"author": "author",
	"year":   "year",
}

// ListBooks applies filtering, sorting and pagination over the catalog.
func (s *CatalogService) ListBooks(ctx context.Context, filter models.BookFilter, sortBy, sortOrder string, page, perPage int) (*models.BookListResponse, error) {
	var conditions []string
	var args []any

	addArg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Title != "" {
		conditions = append(conditions, "title ILIKE "+addArg("%"+filter.Title+"%"))
	}
	if filter.Author != "" {
		conditions = append(conditions, "author ILIKE "+addArg("%"+filter.Author+"%"))
	}
	if filter.Genre != "" {
		conditions = append(conditions, "genre = "+addArg(filter.Genre))
	}
	if filter.Language != "" {
		conditions = append(conditions, "language = "+addArg(filter.Language))
	}
	if filter.YearFrom != 0 {
		conditions = append(conditions, "year >= "+addArg(filter.YearFrom))
	}
	if filter.YearTo != 0 {
		conditions = append(conditions, "year <= "+addArg(filter.YearTo))
	}
	if filter.AvailableOnly {
		conditions = append(conditions, "available_copies > 0")
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM books`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count books: %w", err)
	}

	column, ok := bookSortColumns[sortBy]
	if !ok {
		column = "title"
	}
	direction := "ASC"
	if strings.EqualFold(sortOrder, "desc") {
		direction = "DESC"
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 12
	}

	query := fmt.Sprintf(`SELECT %s FROM books%s ORDER BY %s %s LIMIT %s OFFSET %s`,
		bookColumns, where, column, direction,
		addArg(perPage), addArg((page-1)*perPage))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}

	books, err := collectBooks(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan books: %w", err)
	}

	return &models.BookListResponse{
		Books:      books,
		Page:       page,
		PerPage:    perPage,
		TotalPages: (total + perPage - 1) / perPage,
		TotalItems: total,
	}, nil
}

// SearchBooks matches a free-text query against title, author and
// description.
func (s *CatalogService) SearchBooks(ctx context.Context, query string, page, perPage int) (*models.BookListResponse, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 12
	}

	pattern := "%" + query + "%"

	var total int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM books
		WHERE title ILIKE $1 OR author ILIKE $1 OR description ILIKE $1`, pattern).
		Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count search results: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+bookColumns+` FROM books
		WHERE title ILIKE $1 OR author ILIKE $1 OR description ILIKE $1
		ORDER BY title LIMIT $2 OFFSET $3`, pattern, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("failed to search books: %w", err)
	}

	books, err := collectBooks(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan search results: %w", err)
	}

	return &models.BookListResponse{
		Books:      books,
		Page:       page,
		PerPage:    perPage,
		TotalPages: (total + perPage - 1) / perPage,
		TotalItems: total,
	}, nil
}

func (s *CatalogService) distinctColumn(ctx context.Context, column string) ([]string, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`SELECT DISTINCT %s FROM books WHERE %s IS NOT NULL AND %s <> '' ORDER BY %s`,
		column, column, column, column))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch distinct %s: %w", column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (s *CatalogService) Genres(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, "genre")
}

func (s *CatalogService) Languages(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, "language")
}

// BooksInGenre samples up to limit books of a genre in random order,
// skipping the excluded ids. Random order feeds the genre-affinity
// recommendation strategy.
func (s *CatalogService) BooksInGenre(ctx context.Context, genre string, exclude []uuid.UUID, limit int) ([]models.Book, error) {
	excluded := make([]string, len(exclude))
	for i, id := range exclude {
		excluded[i] = id.String()
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+bookColumns+` FROM books
		WHERE genre = $1 AND NOT (id = ANY($2::uuid[]))
		ORDER BY random() LIMIT $3`, genre, excluded, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch books in genre: %w", err)
	}
	return collectBooks(rows)
}

func (s *CatalogService) BooksByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Book, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = ANY($1::uuid[])`, idStrings)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch books by ids: %w", err)
	}
	return collectBooks(rows)
}

func (s *CatalogService) AllBooks(ctx context.Context) ([]models.Book, error) {
	rows, err := s.db.Query(ctx, `SELECT `+bookColumns+` FROM books ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch books: %w", err)
	}
	return collectBooks(rows)
}

// TopBooksByLoanCount ranks books by historical loan volume. A non-zero
// since restricts the count to loans started after that instant.
func (s *CatalogService) TopBooksByLoanCount(ctx context.Context, since time.Time, limit int) ([]models.Book, error) {
	query := `
		SELECT b.id, b.title, b.author, COALESCE(b.year, 0), COALESCE(b.isbn, ''),
			COALESCE(b.language, ''), COALESCE(b.genre, ''), COALESCE(b.publisher, ''),
			COALESCE(b.description, ''), b.available_copies, b.total_copies,
			b.created_at, b.updated_at
		FROM books b
		JOIN loans l ON l.book_id = b.id`
	args := []any{limit}
	if !since.IsZero() {
		query += ` WHERE l.loan_date >= $2`
		args = append(args, since)
	}
	query += `
		GROUP BY b.id
		ORDER BY COUNT(l.id) DESC, b.id ASC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to rank books by loans: %w", err)
	}
	return collectBooks(rows)
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.FirstName, &u.LastName, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *CatalogService) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return user, nil
}

// UserByLogin resolves a username or email address to an account.
func (s *CatalogService) UserByLogin(ctx context.Context, login string) (*models.User, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1 OR email = $1`, login)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user by login: %w", err)
	}
	return user, nil
}

func (s *CatalogService) CreateUser(ctx context.Context, req models.RegisterRequest, passwordHash string) (*models.User, error) {
	var existing int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE username = $1 OR email = $2`,
		req.Username, req.Email).Scan(&existing)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing users: %w", err)
	}
	if existing > 0 {
		return nil, ErrUserExists
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, first_name, last_name,
			is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)`,
		user.ID, user.Username, user.Email, user.PasswordHash,
		user.FirstName, user.LastName, user.IsAdmin, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return user, nil
}

func (s *CatalogService) UpdateUserProfile(ctx context.Context, id uuid.UUID, req models.ProfileUpdateRequest) (*models.User, error) {
	user, err := s.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	user.UpdatedAt = time.Now().UTC()

	_, err = s.db.Exec(ctx, `
		UPDATE users SET email = $2, first_name = NULLIF($3, ''),
			last_name = NULLIF($4, ''), updated_at = $5
		WHERE id = $1`,
		user.ID, user.Email, user.FirstName, user.LastName, user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update user profile: %w", err)
	}

	return user, nil
}

func (s *CatalogService) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AllUserIDs lists every user id except the excluded one; the user
// similarity scan iterates over this set.
func (s *CatalogService) AllUserIDs(ctx context.Context, excluding uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id FROM users WHERE id <> $1 ORDER BY id`, excluding)
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
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

// CountActiveLoans feeds the profile counters.
func (s *CatalogService) CountActiveLoans(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM loans WHERE user_id = $1 AND is_returned = false`, userID).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active loans: %w", err)
	}
	return count, nil
}
