package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/openshelf/apiserver/internal/auth"
	"github.com/openshelf/apiserver/internal/services"
	"github.com/openshelf/apiserver/internal/store"
	"github.com/openshelf/apiserver/types"
)

const maxCoverBytes = 8 << 20

// BookHandler provides HTTP handlers for books.
type BookHandler struct {
	bookService *services.BookService
}

// NewBookHandler constructs a handler with the provided service.
func NewBookHandler(bookService *services.BookService) *BookHandler {
	return &BookHandler{bookService: bookService}
}

// BookRouter registers book routes on the given router. Reads are
// public (optional auth), mutations require a verified identity.
func BookRouter(r chi.Router, bookService *services.BookService, authn *auth.Authenticator) {
	handler := NewBookHandler(bookService)

	r.With(authn.Optional).Get("/", handler.ListBooks)
	r.With(authn.Required).Post("/", handler.CreateBook)
	r.Route("/{bookID}", func(r chi.Router) {
		r.With(authn.Optional).Get("/", handler.GetBook)
		r.With(authn.Required).Put("/", handler.UpdateBook)
		r.With(authn.Required).Patch("/", handler.PatchBook)
		r.With(authn.Required).Delete("/", handler.DeleteBook)
		if bookService.CoversEnabled() {
			r.With(authn.Optional).Get("/cover", handler.GetCover)
			r.With(authn.Required).Put("/cover", handler.UploadCover)
		}
	})
}

func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))

	items, err := h.bookService.List(r.Context(), q)
	if err != nil {
		writeInternalError(w, "failed to list books", err)
		return
	}

	writeJSON(w, http.StatusOK, BookListResponse{
		Count: len(items),
		Items: items,
	})
}

func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.bookService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeInternalError(w, "failed to fetch book", err)
		return
	}

	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	changes, err := parseBookBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.bookService.Create(r.Context(), identity.UserID, changes)
	if err != nil {
		writeInternalError(w, "failed to create book", err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	changes, err := parseBookBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.bookService.Update(r.Context(), identity.UserID, id, changes)
	if err != nil {
		respondBookError(w, err, "failed to update book")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *BookHandler) PatchBook(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Decoding into a typed patch keeps the mutable field set identical
	// to create/update; anything else in the body is dropped.
	var req BookPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title must not be empty")
		return
	}

	updated, err := h.bookService.Patch(r.Context(), identity.UserID, id, services.BookPatch{
		Title:  req.Title,
		Author: req.Author,
		Year:   req.Year,
		Tags:   req.Tags,
	})
	if err != nil {
		respondBookError(w, err, "failed to update book")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.bookService.Delete(r.Context(), identity.UserID, id); err != nil {
		respondBookError(w, err, "failed to delete book")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *BookHandler) UploadCover(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusBadRequest, "cover must be an image")
		return
	}

	data, err := readBodyLimited(r.Body, maxCoverBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty cover upload")
		return
	}

	err = h.bookService.AttachCover(r.Context(), identity.UserID, id, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		respondBookError(w, err, "failed to store cover")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *BookHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reader, contentType, err := h.bookService.OpenCover(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "cover not found")
			return
		}
		writeInternalError(w, "failed to fetch cover", err)
		return
	}
	defer reader.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

// BookUpsertRequest is the JSON payload for create and full update.
type BookUpsertRequest struct {
	Title  string   `json:"title"`
	Author string   `json:"author"`
	Year   int      `json:"year"`
	Tags   []string `json:"tags"`
}

// BookPatchRequest is the JSON payload for partial update.
type BookPatchRequest struct {
	Title  *string   `json:"title"`
	Author *string   `json:"author"`
	Year   *int      `json:"year"`
	Tags   *[]string `json:"tags"`
}

// BookListResponse is the list/search response payload.
type BookListResponse struct {
	Count int          `json:"count"`
	Items []types.Book `json:"items"`
}

func respondBookError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "book not found")
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		writeInternalError(w, fallback, err)
	}
}

func parseBookID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "bookID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid book id")
	}
	return id, nil
}

func parseBookBody(r *http.Request) (services.BookChanges, error) {
	var req BookUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return services.BookChanges{}, errors.New("invalid request")
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return services.BookChanges{}, errors.New("title is required")
	}

	return services.BookChanges{
		Title:  req.Title,
		Author: strings.TrimSpace(req.Author),
		Year:   req.Year,
		Tags:   req.Tags,
	}, nil
}

func readBodyLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
