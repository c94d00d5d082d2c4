package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/conorfennell/studydeck/internal/domain"
)

const versionColumns = `id, document_id, number, body, fingerprint, created_at`

func scanVersion(row rowScanner) (domain.Version, error) {
	var v domain.Version
	err := row.Scan(&v.ID, &v.DocumentID, &v.Number, &v.Body, &v.Fingerprint, &v.CreatedAt)
	return v, err
}

// CreateDocument stores a new document and its first version.
func (db *DB) CreateDocument(ctx context.Context, doc domain.Document, first domain.Version) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (id, title, created_at, updated_at)
			VALUES (?, ?, ?, ?)
		`, doc.ID, doc.Title, doc.CreatedAt, doc.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert document %s: %w", doc.ID, err)
		}
		return insertVersion(ctx, tx, first)
	})
}

// FindDocument retrieves a document by ID.
func (db *DB) FindDocument(ctx context.Context, id uuid.UUID) (domain.Document, error) {
	var d domain.Document
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at FROM documents WHERE id = ?
	`, id).Scan(&d.ID, &d.Title, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Document{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return domain.Document{}, fmt.Errorf("failed to find document %s: %w", id, err)
	}
	return d, nil
}

// ListDocuments returns all documents, most recently updated first.
func (db *DB) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, created_at, updated_at FROM documents ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// AppendVersion adds a version to an existing document and bumps its
// updated_at timestamp.
func (db *DB) AppendVersion(ctx context.Context, v domain.Version) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return appendVersion(ctx, tx, v)
	})
}

// SaveVersion passes the latest version of a document to next and appends
// the version it returns, in one transaction. When next reports false
// nothing is written and the latest version is returned with created false.
func (db *DB) SaveVersion(ctx context.Context, documentID uuid.UUID, next func(latest domain.Version) (domain.Version, bool)) (v domain.Version, created bool, err error) {
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		latest, err := latestVersion(ctx, tx, documentID)
		if err != nil {
			return err
		}
		v, created = next(latest)
		if !created {
			v = latest
			return nil
		}
		return appendVersion(ctx, tx, v)
	})
	if err != nil {
		return domain.Version{}, false, err
	}
	return v, created, nil
}

func appendVersion(ctx context.Context, tx *sql.Tx, v domain.Version) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE documents SET updated_at = ? WHERE id = ?
	`, v.CreatedAt, v.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to touch document %s: %w", v.DocumentID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("document %s: %w", v.DocumentID, ErrNotFound)
	}
	return insertVersion(ctx, tx, v)
}

func insertVersion(ctx context.Context, tx *sql.Tx, v domain.Version) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO versions (`+versionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`, v.ID, v.DocumentID, v.Number, v.Body, v.Fingerprint, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert version %d of document %s: %w", v.Number, v.DocumentID, err)
	}
	return nil
}

// Versions returns a document's versions in ascending order.
func (db *DB) Versions(ctx context.Context, documentID uuid.UUID) ([]domain.Version, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+versionColumns+` FROM versions WHERE document_id = ? ORDER BY number
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions of document %s: %w", documentID, err)
	}
	defer rows.Close()

	var versions []domain.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// FindVersion retrieves version number n of a document.
func (db *DB) FindVersion(ctx context.Context, documentID uuid.UUID, n int) (domain.Version, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+versionColumns+` FROM versions WHERE document_id = ? AND number = ?
	`, documentID, n)
	return versionOrNotFound(row, documentID, n)
}

// LatestVersion retrieves the highest-numbered version of a document.
func (db *DB) LatestVersion(ctx context.Context, documentID uuid.UUID) (domain.Version, error) {
	return latestVersion(ctx, db.conn, documentID)
}

func latestVersion(ctx context.Context, q querier, documentID uuid.UUID) (domain.Version, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+versionColumns+` FROM versions WHERE document_id = ? ORDER BY number DESC LIMIT 1
	`, documentID)
	return versionOrNotFound(row, documentID, 0)
}

func versionOrNotFound(row *sql.Row, documentID uuid.UUID, n int) (domain.Version, error) {
	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Version{}, fmt.Errorf("version %d of document %s: %w", n, documentID, ErrNotFound)
		}
		return domain.Version{}, fmt.Errorf("failed to find version of document %s: %w", documentID, err)
	}
	return v, nil
}
