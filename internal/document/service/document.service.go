package service

import (
	"errors"
	"fmt"
	"strings"

	"collabdocs/internal/document/model"
	"collabdocs/pkg/logger"
	"collabdocs/store"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound       = errors.New("document not found")
	ErrNoSelection    = errors.New("no document selected")
	ErrInvalidRequest = errors.New("invalid request")
)

type DocumentService struct {
	Store        *store.Store
	FacepileSize int
	validate     *validator.Validate
}

func NewDocumentService(st *store.Store, facepileSize int) *DocumentService {
	return &DocumentService{
		Store:        st,
		FacepileSize: facepileSize,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

// CreateDocument trims the title, creates the document and selects it, as the
// sidebar's "New Document" dialog does.
func (s *DocumentService) CreateDocument(req model.CreateDocRequest) (store.Document, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validate.Struct(req); err != nil {
		return store.Document{}, fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}

	doc, ok := s.Store.CreateDocument(req.Title, req.IsPublic)
	if !ok {
		return store.Document{}, fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}
	s.Store.SetCurrentDocument(doc.ID)
	logger.Sugar.Infof("Created document %s (%q, public=%v)", doc.ID, doc.Title, doc.IsPublic)
	return doc, nil
}

// GetDocument returns a document the current user may see. Other authors'
// private documents are reported as missing.
func (s *DocumentService) GetDocument(docID string) (store.Document, error) {
	doc, ok := s.Store.Document(docID)
	if !ok || !s.Store.VisibleTo(doc) {
		return store.Document{}, ErrNotFound
	}
	return doc, nil
}

func (s *DocumentService) UpdateDocument(docID string, req model.UpdateDocRequest) (store.Document, error) {
	if req.Title != nil {
		trimmed := strings.TrimSpace(*req.Title)
		req.Title = &trimmed
	}
	if err := s.validate.Struct(req); err != nil {
		return store.Document{}, fmt.Errorf("%w: title cannot be empty", ErrInvalidRequest)
	}
	if _, err := s.GetDocument(docID); err != nil {
		return store.Document{}, err
	}

	patch := store.DocumentPatch{Title: req.Title, Content: req.Content, IsPublic: req.IsPublic}
	doc, ok := s.Store.UpdateDocument(docID, patch)
	if !ok {
		return store.Document{}, ErrNotFound
	}
	logger.Sugar.Debugf("Updated document %s", docID)
	return doc, nil
}

func (s *DocumentService) DeleteDocument(docID string) error {
	if _, err := s.GetDocument(docID); err != nil {
		return err
	}
	if !s.Store.DeleteDocument(docID) {
		return ErrNotFound
	}
	logger.Sugar.Infof("Deleted document %s", docID)
	return nil
}

// ListDocuments returns the sidebar lists under the current search term. The
// combined list hides other authors' private documents.
func (s *DocumentService) ListDocuments() model.DocumentList {
	filtered := s.Store.FilteredDocuments()
	visible := make([]store.Document, 0, len(filtered))
	for _, d := range filtered {
		if s.Store.VisibleTo(d) {
			visible = append(visible, d)
		}
	}
	return model.DocumentList{
		Search:    s.Store.SearchTerm(),
		Documents: visible,
		Public:    s.Store.PublicDocuments(),
		Private:   s.Store.PrivateDocuments(),
	}
}

func (s *DocumentService) SetSearch(term string) {
	s.Store.SetSearchTerm(term)
}

// SelectDocument stores the selection without checking it exists; reading
// the current document resolves it.
func (s *DocumentService) SelectDocument(docID string) {
	s.Store.SetCurrentDocument(docID)
}

func (s *DocumentService) CurrentDocument() (store.Document, error) {
	doc, ok := s.Store.CurrentDocument()
	if !ok || !s.Store.VisibleTo(doc) {
		return store.Document{}, ErrNoSelection
	}
	return doc, nil
}

func (s *DocumentService) Presence() model.PresenceResponse {
	return model.PresenceResponse{
		CurrentUser: s.Store.CurrentUser(),
		OnlineUsers: s.Store.OnlineUsers(),
		Facepile:    s.Store.Facepile(s.FacepileSize),
	}
}
