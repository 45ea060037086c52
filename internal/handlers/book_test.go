package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/openshelf/apiserver/types"
)

func TestBookLifecycle(t *testing.T) {
	env := newTestEnv(t)

	ownerToken := env.register(t, "a@x.com", "password1")
	otherToken := env.register(t, "b@x.com", "password1")

	ownerIdentity, err := env.tokens.Verify(ownerToken)
	if err != nil {
		t.Fatalf("verify owner token: %v", err)
	}

	// Create.
	rec := env.do(t, http.MethodPost, "/api/books", ownerToken, map[string]any{
		"title": "Dune",
		"tags":  []string{"scifi"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created types.Book
	decodeBody(t, rec, &created)
	if created.OwnerID == nil || *created.OwnerID != ownerIdentity.UserID {
		t.Fatalf("owner = %v, want %d", created.OwnerID, ownerIdentity.UserID)
	}

	bookPath := fmt.Sprintf("/api/books/%d", created.ID)

	// Foreign caller cannot mutate.
	rec = env.do(t, http.MethodPut, bookPath, otherToken, map[string]any{"title": "Mine Now"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign update status = %d, want 403", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, bookPath, otherToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign delete status = %d, want 403", rec.Code)
	}

	// Owner updates.
	rec = env.do(t, http.MethodPut, bookPath, ownerToken, map[string]any{
		"title":  "Dune",
		"author": "Frank Herbert",
		"year":   1965,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}
	var updated types.Book
	decodeBody(t, rec, &updated)
	if updated.Author != "Frank Herbert" {
		t.Fatalf("unexpected author: %q", updated.Author)
	}
	if updated.OwnerID == nil || *updated.OwnerID != ownerIdentity.UserID {
		t.Fatalf("owner changed across update: %v", updated.OwnerID)
	}

	// Partial update touches only the provided fields.
	rec = env.do(t, http.MethodPatch, bookPath, ownerToken, map[string]any{"year": 1966})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", rec.Code, rec.Body.String())
	}
	var patched types.Book
	decodeBody(t, rec, &patched)
	if patched.Year != 1966 || patched.Title != "Dune" {
		t.Fatalf("unexpected patch result: %+v", patched)
	}

	// Public read needs no credential.
	rec = env.do(t, http.MethodGet, bookPath, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("public get status = %d", rec.Code)
	}

	// Owner deletes; the book is gone afterwards.
	rec = env.do(t, http.MethodDelete, bookPath, ownerToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodGet, bookPath, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, bookPath, ownerToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete after delete status = %d, want 404", rec.Code)
	}
}

func TestBookMutationsRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/books"},
		{http.MethodPut, "/api/books/1"},
		{http.MethodPatch, "/api/books/1"},
		{http.MethodDelete, "/api/books/1"},
	}

	for _, tt := range tests {
		rec := env.do(t, tt.method, tt.path, "", map[string]any{"title": "x"})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s anonymous status = %d, want 401", tt.method, tt.path, rec.Code)
		}
	}

	// An invalid credential is rejected even on public routes.
	req := env.do(t, http.MethodGet, "/api/books", "not-a-real-token", nil)
	if req.Code != http.StatusUnauthorized {
		t.Errorf("bad token on public list status = %d, want 401", req.Code)
	}
}

func TestCreateBookValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "a@x.com", "password1")

	rec := env.do(t, http.MethodPost, "/api/books", token, map[string]any{"author": "nobody"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing title status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/books", token, map[string]any{"title": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank title status = %d, want 400", rec.Code)
	}
}

func TestPatchIgnoresForeignFields(t *testing.T) {
	env := newTestEnv(t)
	ownerToken := env.register(t, "a@x.com", "password1")
	env.register(t, "b@x.com", "password1")

	rec := env.do(t, http.MethodPost, "/api/books", ownerToken, map[string]any{"title": "Dune"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var created types.Book
	decodeBody(t, rec, &created)

	// A patch trying to reassign ownership leaves the owner untouched.
	rec = env.do(t, http.MethodPatch, fmt.Sprintf("/api/books/%d", created.ID), ownerToken, map[string]any{
		"owner": 2,
		"year":  2000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", rec.Code, rec.Body.String())
	}
	var patched types.Book
	decodeBody(t, rec, &patched)
	if patched.OwnerID == nil || *patched.OwnerID != *created.OwnerID {
		t.Fatalf("owner reassigned by patch: %v", patched.OwnerID)
	}
	if patched.Year != 2000 {
		t.Fatalf("allow-listed field not applied: %d", patched.Year)
	}
}

func TestOwnerlessBookMutableByAnyAuthenticated(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "a@x.com", "password1")

	seeded, err := env.bookRepo.Create(context.Background(), types.Book{Title: "Legacy Book"})
	if err != nil {
		t.Fatalf("seed book: %v", err)
	}

	rec := env.do(t, http.MethodPut, fmt.Sprintf("/api/books/%d", seeded.ID), token, map[string]any{
		"title": "Adopted Title",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update ownerless status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListBooksSearch(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "a@x.com", "password1")

	for _, book := range []map[string]any{
		{"title": "Dune", "author": "Frank Herbert"},
		{"title": "Neuromancer", "author": "William Gibson"},
		{"title": "Children of Dune", "author": "Frank Herbert"},
	} {
		rec := env.do(t, http.MethodPost, "/api/books", token, book)
		if rec.Code != http.StatusCreated {
			t.Fatalf("seed create status = %d", rec.Code)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/books", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var all BookListResponse
	decodeBody(t, rec, &all)
	if all.Count != 3 || len(all.Items) != 3 {
		t.Fatalf("list count = %d, want 3", all.Count)
	}

	rec = env.do(t, http.MethodGet, "/api/books?q=dune", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d", rec.Code)
	}
	var filtered BookListResponse
	decodeBody(t, rec, &filtered)
	if filtered.Count != 2 {
		t.Fatalf("search count = %d, want 2", filtered.Count)
	}
	for _, item := range filtered.Items {
		if item.Title != "Dune" && item.Title != "Children of Dune" {
			t.Errorf("unexpected search hit: %q", item.Title)
		}
	}
}
