package services

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/openshelf/apiserver/internal/events"
	"github.com/openshelf/apiserver/internal/storage"
	"github.com/openshelf/apiserver/internal/store"
	"github.com/openshelf/apiserver/types"
)

// ErrForbidden is returned when a caller tries to mutate a book owned
// by someone else.
var ErrForbidden = errors.New("forbidden")

// BookRepository defines persistence operations for books.
type BookRepository interface {
	List(ctx context.Context, q string) ([]types.Book, error)
	Get(ctx context.Context, id int) (types.Book, error)
	Create(ctx context.Context, book types.Book) (types.Book, error)
	Update(ctx context.Context, book types.Book) (types.Book, error)
	SetCoverKey(ctx context.Context, id int, key string) error
	Delete(ctx context.Context, id int) error
}

// BookChanges is the full set of caller-writable book fields. Ownership
// is not part of it: the owner is fixed when the book is created and no
// update path can touch it.
type BookChanges struct {
	Title  string
	Author string
	Year   int
	Tags   []string
}

// BookPatch is a partial update. Nil fields are left unchanged. The
// field set is identical to BookChanges; arbitrary request fields are
// never merged onto a record.
type BookPatch struct {
	Title  *string
	Author *string
	Year   *int
	Tags   *[]string
}

// BookService encapsulates book use-cases and the ownership rule for
// mutations: a book with an owner may only be changed by that owner,
// an ownerless book by any authenticated caller.
type BookService struct {
	repo   BookRepository
	covers *storage.Storage
	bus    *events.Bus
}

// NewBookService constructs a BookService. covers and bus may be nil,
// which disables cover storage and event publishing respectively.
func NewBookService(repo BookRepository, covers *storage.Storage, bus *events.Bus) *BookService {
	return &BookService{repo: repo, covers: covers, bus: bus}
}

func (s *BookService) List(ctx context.Context, q string) ([]types.Book, error) {
	return s.repo.List(ctx, q)
}

func (s *BookService) Get(ctx context.Context, id int) (types.Book, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a new book owned by the acting user.
func (s *BookService) Create(ctx context.Context, actorID int, changes BookChanges) (types.Book, error) {
	owner := actorID
	book, err := s.repo.Create(ctx, types.Book{
		Title:   changes.Title,
		Author:  changes.Author,
		Year:    changes.Year,
		Tags:    changes.Tags,
		OwnerID: &owner,
	})
	if err != nil {
		return types.Book{}, err
	}
	s.publish(ctx, events.BookCreated, book.ID, actorID)
	return book, nil
}

// Update replaces all caller-writable fields of a book.
func (s *BookService) Update(ctx context.Context, actorID, id int, changes BookChanges) (types.Book, error) {
	book, err := s.fetchForMutation(ctx, actorID, id)
	if err != nil {
		return types.Book{}, err
	}

	book.Title = changes.Title
	book.Author = changes.Author
	book.Year = changes.Year
	book.Tags = changes.Tags

	updated, err := s.repo.Update(ctx, book)
	if err != nil {
		return types.Book{}, err
	}
	s.publish(ctx, events.BookUpdated, id, actorID)
	return updated, nil
}

// Patch applies the non-nil fields of patch to a book.
func (s *BookService) Patch(ctx context.Context, actorID, id int, patch BookPatch) (types.Book, error) {
	book, err := s.fetchForMutation(ctx, actorID, id)
	if err != nil {
		return types.Book{}, err
	}

	if patch.Title != nil {
		book.Title = *patch.Title
	}
	if patch.Author != nil {
		book.Author = *patch.Author
	}
	if patch.Year != nil {
		book.Year = *patch.Year
	}
	if patch.Tags != nil {
		book.Tags = *patch.Tags
	}

	updated, err := s.repo.Update(ctx, book)
	if err != nil {
		return types.Book{}, err
	}
	s.publish(ctx, events.BookUpdated, id, actorID)
	return updated, nil
}

// Delete removes a book after the ownership check.
func (s *BookService) Delete(ctx context.Context, actorID, id int) error {
	if _, err := s.fetchForMutation(ctx, actorID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.BookDeleted, id, actorID)
	return nil
}

// CoversEnabled reports whether a cover-image store is configured.
func (s *BookService) CoversEnabled() bool {
	return s.covers != nil
}

// AttachCover stores a cover image for a book. The upload is gated by
// the same ownership rule as every other mutation.
func (s *BookService) AttachCover(ctx context.Context, actorID, id int, r io.Reader, size int64, contentType string) error {
	if s.covers == nil {
		return errors.New("cover storage is not configured")
	}

	if _, err := s.fetchForMutation(ctx, actorID, id); err != nil {
		return err
	}

	key := storage.CoverKey(id)
	if err := s.covers.Put(ctx, key, r, size, contentType); err != nil {
		return err
	}
	if err := s.repo.SetCoverKey(ctx, id, key); err != nil {
		return err
	}
	s.publish(ctx, events.BookUpdated, id, actorID)
	return nil
}

// OpenCover opens the cover image of a book for reading. Books without
// a cover report store.ErrNotFound.
func (s *BookService) OpenCover(ctx context.Context, id int) (io.ReadCloser, string, error) {
	if s.covers == nil {
		return nil, "", store.ErrNotFound
	}

	book, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if book.CoverKey == "" {
		return nil, "", store.ErrNotFound
	}
	return s.covers.Get(ctx, book.CoverKey)
}

// fetchForMutation loads the target and applies the ownership rule.
// Absence wins over ownership: a missing book is ErrNotFound before any
// ownership evaluation happens.
func (s *BookService) fetchForMutation(ctx context.Context, actorID, id int) (types.Book, error) {
	book, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Book{}, err
	}
	if book.OwnerID != nil && *book.OwnerID != actorID {
		return types.Book{}, ErrForbidden
	}
	return book, nil
}

// publish emits a book event best-effort. Broker trouble is logged and
// never fails the request.
func (s *BookService) publish(ctx context.Context, eventType string, bookID, actorID int) {
	if s.bus == nil {
		return
	}
	_, err := s.bus.PublishBookEvent(ctx, events.BookEvent{
		Type:    eventType,
		BookID:  bookID,
		ActorID: actorID,
	})
	if err != nil {
		log.Printf("publish %s for book %d: %v", eventType, bookID, err)
	}
}
