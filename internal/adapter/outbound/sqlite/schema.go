package sqlite

// schemaSQL creates the snippet platform tables. Idempotent.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS snippets (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	language   TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL,
	author_id  TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS comments (
	id         TEXT PRIMARY KEY,
	snippet_id TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
	author_id  TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_comments_snippet ON comments(snippet_id);

CREATE TABLE IF NOT EXISTS stars (
	snippet_id TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
	subject    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (snippet_id, subject)
);
`
