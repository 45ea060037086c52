package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/openshelf/apiserver/config"
	"github.com/openshelf/apiserver/internal/auth"
	"github.com/openshelf/apiserver/internal/services"
	"github.com/openshelf/apiserver/internal/store"
	"github.com/openshelf/apiserver/types"
)

type memUserRepo struct {
	nextID int
	users  map[int]types.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{nextID: 1, users: make(map[int]types.User)}
}

func (r *memUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	user.ID = r.nextID
	r.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return user, nil
}

type memBookRepo struct {
	nextID int
	books  map[int]types.Book
}

func newMemBookRepo() *memBookRepo {
	return &memBookRepo{nextID: 1, books: make(map[int]types.Book)}
}

func (r *memBookRepo) List(ctx context.Context, q string) ([]types.Book, error) {
	q = strings.ToLower(q)
	items := make([]types.Book, 0, len(r.books))
	for _, book := range r.books {
		if q == "" ||
			strings.Contains(strings.ToLower(book.Title), q) ||
			strings.Contains(strings.ToLower(book.Author), q) {
			items = append(items, book)
		}
	}
	return items, nil
}

func (r *memBookRepo) Get(ctx context.Context, id int) (types.Book, error) {
	book, ok := r.books[id]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	return book, nil
}

func (r *memBookRepo) Create(ctx context.Context, book types.Book) (types.Book, error) {
	book.ID = r.nextID
	r.nextID++
	book.CreatedAt = time.Now()
	book.UpdatedAt = book.CreatedAt
	r.books[book.ID] = book
	return book, nil
}

func (r *memBookRepo) Update(ctx context.Context, book types.Book) (types.Book, error) {
	existing, ok := r.books[book.ID]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	book.OwnerID = existing.OwnerID
	book.CoverKey = existing.CoverKey
	book.CreatedAt = existing.CreatedAt
	book.UpdatedAt = time.Now()
	r.books[book.ID] = book
	return book, nil
}

func (r *memBookRepo) SetCoverKey(ctx context.Context, id int, key string) error {
	book, ok := r.books[id]
	if !ok {
		return store.ErrNotFound
	}
	book.CoverKey = key
	r.books[id] = book
	return nil
}

func (r *memBookRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.books[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.books, id)
	return nil
}

type testEnv struct {
	router    *chi.Mux
	userRepo  *memUserRepo
	bookRepo  *memBookRepo
	tokens    *auth.TokenService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tokens, err := auth.NewTokenService(config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	authn := auth.NewAuthenticator(tokens)

	userRepo := newMemUserRepo()
	bookRepo := newMemBookRepo()
	userService := services.NewUserService(userRepo)
	bookService := services.NewBookService(bookRepo, nil, nil)

	router := chi.NewRouter()
	router.Route("/api/auth", func(r chi.Router) {
		AuthRouter(r, userService, tokens, authn)
	})
	router.Route("/api/books", func(r chi.Router) {
		BookRouter(r, bookService, authn)
	})

	return &testEnv{
		router:   router,
		userRepo: userRepo,
		bookRepo: bookRepo,
		tokens:   tokens,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) register(t *testing.T, email, password string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d: %s", email, rec.Code, rec.Body.String())
	}

	var resp AuthResponse
	decodeBody(t, rec, &resp)
	if resp.Token == "" {
		t.Fatal("register returned no token")
	}
	return resp.Token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, value any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(value); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
