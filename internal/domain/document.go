package domain

import (
	"time"

	"github.com/google/uuid"
)

// Document is a note whose body is kept as an append-only list of versions.
type Document struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Version is one saved body of a document. Numbers start at 1.
type Version struct {
	ID          uuid.UUID `json:"id"`
	DocumentID  uuid.UUID `json:"document_id"`
	Number      int       `json:"number"`
	Body        string    `json:"body"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// Source is a place decks are imported from: a local directory or a git remote.
type Source struct {
	ID          int64      `json:"id"`
	Path        string     `json:"path"`
	Type        SourceType `json:"type"`
	LastScanned *time.Time `json:"last_scanned,omitempty"`
}

// SourceType distinguishes local directories from git remotes.
type SourceType string

const (
	SourceLocal SourceType = "local"
	SourceGit   SourceType = "git"
)
