// Package snippet provides the code snippet domain types.
//
// Snippet data modeling is intentionally thin: the admission core only needs
// enough of the platform behind it for its policies to guard real routes.
package snippet

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a snippet does not exist.
var ErrNotFound = errors.New("snippet not found")

// Snippet is a shared piece of code.
type Snippet struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Language  string    `json:"language"`
	Content   string    `json:"content"`
	AuthorID  string    `json:"authorId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Comment is a comment attached to a snippet.
type Comment struct {
	ID        string    `json:"id"`
	SnippetID string    `json:"snippetId"`
	AuthorID  string    `json:"authorId,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists snippets, comments, and stars.
// Never called on the admission path; a denied request short-circuits before
// any store access.
type Store interface {
	CreateSnippet(ctx context.Context, s Snippet) error
	GetSnippet(ctx context.Context, id string) (Snippet, error)
	CreateComment(ctx context.Context, c Comment) error
	// ToggleStar flips the star for (snippetID, subject) and returns the new
	// starred state plus the snippet's total star count.
	ToggleStar(ctx context.Context, snippetID, subject string) (starred bool, total int, err error)
}
