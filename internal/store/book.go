package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/openshelf/apiserver/types"
)

// BookRepository handles persistence for books.
type BookRepository struct {
	db *sql.DB
}

func NewBookRepository(db *sql.DB) *BookRepository {
	return &BookRepository{db: db}
}

// List returns books newest-first. When q is non-empty, only books whose
// title or author contains q (case-insensitive) are returned.
func (r *BookRepository) List(ctx context.Context, q string) ([]types.Book, error) {
	const listQuery = `
		SELECT id, title, author, year, tags, owner_id, cover_key, created_at, updated_at
		FROM books
		WHERE $1 = '' OR title ILIKE '%' || $1 || '%' OR author ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, listQuery, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := make([]types.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows.Scan)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return books, nil
}

func (r *BookRepository) Get(ctx context.Context, id int) (types.Book, error) {
	const query = `
		SELECT id, title, author, year, tags, owner_id, cover_key, created_at, updated_at
		FROM books
		WHERE id = $1`
	book, err := scanBook(r.db.QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Book{}, ErrNotFound
		}
		return types.Book{}, err
	}
	return book, nil
}

func (r *BookRepository) Create(ctx context.Context, book types.Book) (types.Book, error) {
	now := time.Now()
	book.CreatedAt = now
	book.UpdatedAt = now

	tagsJSON, err := json.Marshal(tagsOrEmpty(book.Tags))
	if err != nil {
		return types.Book{}, err
	}

	const query = `
		INSERT INTO books (title, author, year, tags, owner_id, cover_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		book.Title,
		book.Author,
		book.Year,
		tagsJSON,
		ownerValue(book.OwnerID),
		book.CoverKey,
		book.CreatedAt,
		book.UpdatedAt,
	).Scan(&book.ID); err != nil {
		return types.Book{}, err
	}

	return book, nil
}

// Update persists the mutable fields of a book. The owner column is
// deliberately outside the statement; ownership is fixed at creation.
func (r *BookRepository) Update(ctx context.Context, book types.Book) (types.Book, error) {
	book.UpdatedAt = time.Now()

	tagsJSON, err := json.Marshal(tagsOrEmpty(book.Tags))
	if err != nil {
		return types.Book{}, err
	}

	const query = `
		UPDATE books
		SET title = $1,
			author = $2,
			year = $3,
			tags = $4,
			updated_at = $5
		WHERE id = $6`
	result, err := r.db.ExecContext(
		ctx,
		query,
		book.Title,
		book.Author,
		book.Year,
		tagsJSON,
		book.UpdatedAt,
		book.ID,
	)
	if err != nil {
		return types.Book{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Book{}, err
	}
	if affected == 0 {
		return types.Book{}, ErrNotFound
	}

	return book, nil
}

// SetCoverKey records the object-storage key of an uploaded cover.
func (r *BookRepository) SetCoverKey(ctx context.Context, id int, key string) error {
	const query = `UPDATE books SET cover_key = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, key, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *BookRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM books WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanBook(scan func(dest ...any) error) (types.Book, error) {
	var book types.Book
	var tagsJSON []byte
	var owner sql.NullInt64
	if err := scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.Year,
		&tagsJSON,
		&owner,
		&book.CoverKey,
		&book.CreatedAt,
		&book.UpdatedAt,
	); err != nil {
		return types.Book{}, err
	}

	_ = json.Unmarshal(tagsJSON, &book.Tags)
	if owner.Valid {
		ownerID := int(owner.Int64)
		book.OwnerID = &ownerID
	}
	return book, nil
}

func ownerValue(owner *int) any {
	if owner == nil {
		return nil
	}
	return *owner
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
