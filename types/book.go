package types

import "time"

// Book represents a catalogued book record.
type Book struct {
	// ID is the unique identifier of the book.
	ID int `json:"id" db:"id"`

	// Title is the book's title. It is the only required attribute.
	Title string `json:"title" db:"title"`

	// Author is the book's author, if known.
	Author string `json:"author,omitempty" db:"author"`

	// Year is the publication year, if known.
	Year int `json:"year,omitempty" db:"year"`

	// Tags are free-form labels associated with the book, used for
	// categorization, filtering, and search.
	Tags []string `json:"tags" db:"tags"`

	// OwnerID references the user who created the book. Books created
	// before ownership tracking have no owner; such books may be
	// mutated by any authenticated user. Once set, the owner never
	// changes through the update paths.
	OwnerID *int `json:"owner,omitempty" db:"owner_id"`

	// CoverKey is the object-storage key of the uploaded cover image,
	// empty when no cover has been uploaded. Internal only.
	CoverKey string `json:"-" db:"cover_key"`

	// CreatedAt is the timestamp at which the book was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the book.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
