// Package sqlite provides the SQLite-backed snippet store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/snipvault/snipvault/internal/domain/snippet"
)

// Store implements snippet.Store over a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite is single-writer; serialize access through one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate applies the schema. Safe to call on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CreateSnippet inserts a new snippet.
func (s *Store) CreateSnippet(ctx context.Context, sn snippet.Snippet) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snippets (id, title, language, content, author_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sn.ID, sn.Title, sn.Language, sn.Content, sn.AuthorID, sn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert snippet: %w", err)
	}
	return nil
}

// GetSnippet fetches a snippet by ID.
func (s *Store) GetSnippet(ctx context.Context, id string) (snippet.Snippet, error) {
	var sn snippet.Snippet
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, language, content, author_id, created_at
		 FROM snippets WHERE id = ?`, id,
	).Scan(&sn.ID, &sn.Title, &sn.Language, &sn.Content, &sn.AuthorID, &sn.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return snippet.Snippet{}, snippet.ErrNotFound
	}
	if err != nil {
		return snippet.Snippet{}, fmt.Errorf("select snippet: %w", err)
	}
	return sn, nil
}

// CreateComment inserts a comment on an existing snippet.
func (s *Store) CreateComment(ctx context.Context, c snippet.Comment) error {
	if _, err := s.GetSnippet(ctx, c.SnippetID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO comments (id, snippet_id, author_id, body, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.SnippetID, c.AuthorID, c.Body, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// ToggleStar flips the star for (snippetID, subject).
func (s *Store) ToggleStar(ctx context.Context, snippetID, subject string) (bool, int, error) {
	if _, err := s.GetSnippet(ctx, snippetID); err != nil {
		return false, 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM stars WHERE snippet_id = ? AND subject = ?`, snippetID, subject)
	if err != nil {
		return false, 0, fmt.Errorf("delete star: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("rows affected: %w", err)
	}

	starred := deleted == 0
	if starred {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO stars (snippet_id, subject, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
			snippetID, subject)
		if err != nil {
			return false, 0, fmt.Errorf("insert star: %w", err)
		}
	}

	var total int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stars WHERE snippet_id = ?`, snippetID).Scan(&total)
	if err != nil {
		return false, 0, fmt.Errorf("count stars: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit: %w", err)
	}
	return starred, total, nil
}

// Compile-time interface verification.
var _ snippet.Store = (*Store)(nil)
