package db

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/mokrunka/taskwarrior-capsules/internal/errors"
)

// ErrNotFound is returned when a capsule has no persisted document.
var ErrNotFound = stderrors.New("metadata document not found")

// MetaRow is one persisted metadata document.
type MetaRow struct {
	Name      string
	Doc       string
	CreatedAt int64
	UpdatedAt int64
}

// MetaSummary describes a stored document without its body.
type MetaSummary struct {
	Name      string
	Bytes     int
	UpdatedAt int64
}

// GetMeta retrieves the document stored for a capsule name.
// Returns ErrNotFound when the capsule never saved one.
func GetMeta(ctx context.Context, db *sql.DB, name string) (*MetaRow, error) {
	query := `
		SELECT name, doc, created_at, updated_at
		FROM capsule_meta
		WHERE name = ?
	`

	var row MetaRow
	err := db.QueryRowContext(ctx, query, name).Scan(&row.Name, &row.Doc, &row.CreatedAt, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	return &row, nil
}

// PutMeta inserts or replaces the document for a capsule name.
// created_at is kept from the first write.
func PutMeta(ctx context.Context, db *sql.DB, name, doc string, now int64) error {
	query := `
		INSERT INTO capsule_meta (name, doc, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			doc = excluded.doc,
			updated_at = excluded.updated_at
	`

	if _, err := db.ExecContext(ctx, query, name, doc, now, now); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListMeta returns a summary of every stored document, most recently
// updated first, ties broken by name.
func ListMeta(ctx context.Context, db *sql.DB) ([]MetaSummary, error) {
	query := `
		SELECT name, length(CAST(doc AS BLOB)), updated_at
		FROM capsule_meta
		ORDER BY updated_at DESC, name ASC
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	summaries := []MetaSummary{}
	for rows.Next() {
		var s MetaSummary
		if err := rows.Scan(&s.Name, &s.Bytes, &s.UpdatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	return summaries, nil
}
