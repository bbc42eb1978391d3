// Package store holds the in-memory state behind the editor: the document
// collection, the selected document, the local user, the online peers and the
// sidebar search filter. All mutation goes through the Store methods.
package store

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Store struct {
	mu          sync.RWMutex
	documents   []Document
	currentID   string
	currentUser User
	onlineUsers []User
	searchTerm  string

	now         func() time.Time
	subscribers map[int]func(Change)
	nextSubID   int
}

type Option func(*Store)

// WithCurrentUser replaces the generated local user.
func WithCurrentUser(u User) Option {
	return func(s *Store) { s.currentUser = u }
}

// WithDocuments seeds the collection. Documents with a duplicate id are skipped.
func WithDocuments(docs ...Document) Option {
	return func(s *Store) {
		for _, d := range docs {
			if s.indexOf(d.ID) < 0 {
				s.documents = append(s.documents, d)
			}
		}
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		currentUser: GenerateUser(),
		now:         time.Now,
		subscribers: make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDocument appends a new document authored by the current user. Blank
// titles are ignored and reported with ok == false.
func (s *Store) CreateDocument(title string, isPublic bool) (doc Document, ok bool) {
	if strings.TrimSpace(title) == "" {
		return Document{}, false
	}

	s.mu.Lock()
	now := s.now()
	doc = Document{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   InitialContent(title),
		IsPublic:  isPublic,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: s.currentUser.ID,
	}
	s.documents = append(s.documents, doc)
	s.mu.Unlock()

	s.notify(Change{Kind: DocumentCreated, Document: doc})
	return doc, true
}

// UpdateDocument merges patch into the document with the given id and
// refreshes its UpdatedAt. It returns the merged document and whether it
// exists.
func (s *Store) UpdateDocument(id string, patch DocumentPatch) (Document, bool) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return Document{}, false
	}

	doc := s.documents[i]
	if patch.Title != nil {
		doc.Title = *patch.Title
	}
	if patch.Content != nil {
		doc.Content = *patch.Content
	}
	if patch.IsPublic != nil {
		doc.IsPublic = *patch.IsPublic
	}
	// UpdatedAt must move forward even when the clock has not.
	touched := s.now()
	if !touched.After(doc.UpdatedAt) {
		touched = doc.UpdatedAt.Add(time.Nanosecond)
	}
	doc.UpdatedAt = touched
	s.documents[i] = doc
	s.mu.Unlock()

	s.notify(Change{Kind: DocumentUpdated, Document: doc})
	return doc, true
}

// DeleteDocument removes the document and clears the selection if it pointed
// at it. It reports whether anything was removed.
func (s *Store) DeleteDocument(id string) bool {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	doc := s.documents[i]
	s.documents = slices.Delete(s.documents, i, i+1)
	if s.currentID == id {
		s.currentID = ""
	}
	s.mu.Unlock()

	s.notify(Change{Kind: DocumentDeleted, Document: doc})
	return true
}

// SetCurrentDocument selects a document by id; an empty id clears the
// selection. The id is not checked against the collection.
func (s *Store) SetCurrentDocument(id string) {
	s.mu.Lock()
	s.currentID = id
	s.mu.Unlock()
}

// CurrentDocument resolves the selection against the collection.
func (s *Store) CurrentDocument() (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentID == "" {
		return Document{}, false
	}
	i := s.indexOf(s.currentID)
	if i < 0 {
		return Document{}, false
	}
	return s.documents[i], true
}

func (s *Store) CurrentDocumentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID
}

func (s *Store) SetSearchTerm(term string) {
	s.mu.Lock()
	s.searchTerm = term
	s.mu.Unlock()
}

func (s *Store) SearchTerm() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.searchTerm
}

// AddOnlineUser inserts u unless a user with the same id is already online.
func (s *Store) AddOnlineUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.ContainsFunc(s.onlineUsers, func(o User) bool { return o.ID == u.ID }) {
		return
	}
	s.onlineUsers = append(s.onlineUsers, u)
}

func (s *Store) RemoveOnlineUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onlineUsers = slices.DeleteFunc(s.onlineUsers, func(o User) bool { return o.ID == id })
}

// OnPeerJoined and OnPeerLeft let the store consume presence events directly.
func (s *Store) OnPeerJoined(u User) { s.AddOnlineUser(u) }
func (s *Store) OnPeerLeft(id string) { s.RemoveOnlineUser(id) }

func (s *Store) OnlineUsers() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.onlineUsers)
}

func (s *Store) CurrentUser() User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentUser
}

// Document looks a document up by id, regardless of visibility.
func (s *Store) Document(id string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return Document{}, false
	}
	return s.documents[i], true
}

// Documents returns the whole collection in insertion order.
func (s *Store) Documents() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.documents)
}

// FilteredDocuments returns the documents whose title contains the search
// term, ignoring case. An empty term matches everything.
func (s *Store) FilteredDocuments() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filtered(nil)
}

func (s *Store) PublicDocuments() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filtered(func(d Document) bool { return d.IsPublic })
}

// PrivateDocuments returns the filtered private documents authored by the
// current user. Other authors' private documents are never included.
func (s *Store) PrivateDocuments() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner := s.currentUser.ID
	return s.filtered(func(d Document) bool { return !d.IsPublic && d.CreatedBy == owner })
}

// VisibleTo reports whether the current user may see doc.
func (s *Store) VisibleTo(doc Document) bool {
	return doc.IsPublic || doc.CreatedBy == s.CurrentUser().ID
}

// Subscribe registers fn for collection changes and returns a function that
// removes it. fn runs on the mutating goroutine after the store lock is
// released, so it may read from the store but must not block.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(c Change) {
	s.mu.RLock()
	fns := make([]func(Change), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

// filtered must be called with s.mu held.
func (s *Store) filtered(keep func(Document) bool) []Document {
	term := strings.ToLower(s.searchTerm)
	out := make([]Document, 0, len(s.documents))
	for _, d := range s.documents {
		if term != "" && !strings.Contains(strings.ToLower(d.Title), term) {
			continue
		}
		if keep != nil && !keep(d) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// indexOf must be called with s.mu held.
func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.documents, func(d Document) bool { return d.ID == id })
}
