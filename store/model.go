package store

import "time"

type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"` // Serialized rich text, opaque to the store
	IsPublic  bool      `json:"is_public"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by"`
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// DocumentPatch carries the fields of an update. Nil fields are left untouched.
type DocumentPatch struct {
	Title    *string
	Content  *string
	IsPublic *bool
}

type ChangeKind string

const (
	DocumentCreated ChangeKind = "created"
	DocumentUpdated ChangeKind = "updated"
	DocumentDeleted ChangeKind = "deleted"
)

// Change describes a mutation of the document collection.
type Change struct {
	Kind     ChangeKind
	Document Document
}
