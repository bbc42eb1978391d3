package store

import (
	"fmt"
	"html"
	"time"
)

// SystemAuthor is the author of the documents every store starts with.
const SystemAuthor = "system"

// DefaultDocuments returns the welcome documents shown on first load.
func DefaultDocuments(now time.Time) []Document {
	return []Document{
		{
			ID:        "1",
			Title:     "Welcome to CollabDocs",
			Content:   `<h1>Welcome to CollabDocs</h1><p>This is a collaborative text editor where you can create and share documents in real-time.</p><p>Features:</p><ul><li>Real-time collaboration</li><li>Public and private documents</li><li>Full-text search</li><li>Clean, minimal interface</li></ul>`,
			IsPublic:  true,
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			UpdatedAt: now,
			CreatedBy: SystemAuthor,
		},
		{
			ID:        "2",
			Title:     "Getting Started Guide",
			Content:   `<h1>Getting Started</h1><p>Here are some tips to get you started:</p><ol><li>Create a new document using the "New Document" button</li><li>Toggle between public and private visibility</li><li>Use the search bar to find documents quickly</li><li>Collaborate with others in real-time</li></ol>`,
			IsPublic:  true,
			CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			UpdatedAt: now,
			CreatedBy: SystemAuthor,
		},
	}
}

// InitialContent is the body a freshly created document starts with.
func InitialContent(title string) string {
	return fmt.Sprintf("<h1>%s</h1><p>Start writing your document here...</p>", html.EscapeString(title))
}
