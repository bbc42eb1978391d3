package model

import "collabdocs/store"

type CreateDocRequest struct {
	Title    string `json:"title" validate:"required"`
	IsPublic bool   `json:"is_public"`
}

// UpdateDocRequest carries a partial update; omitted fields are left alone.
type UpdateDocRequest struct {
	Title    *string `json:"title,omitempty" validate:"omitnil,min=1"`
	Content  *string `json:"content,omitempty"`
	IsPublic *bool   `json:"is_public,omitempty"`
}

type SearchRequest struct {
	Term string `json:"term"`
}

type SelectRequest struct {
	DocID string `json:"document_id"` // Empty clears the selection
}

// DocumentList is what the sidebar renders.
type DocumentList struct {
	Search    string           `json:"search"`
	Documents []store.Document `json:"documents"`
	Public    []store.Document `json:"public"`
	Private   []store.Document `json:"private"`
}

type PresenceResponse struct {
	CurrentUser store.User     `json:"current_user"`
	OnlineUsers []store.User   `json:"online_users"`
	Facepile    store.Facepile `json:"facepile"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
