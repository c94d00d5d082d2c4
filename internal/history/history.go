// Package history keeps versioned documents and compares their versions.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/studydeck/internal/diff"
	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/fingerprint"
	"github.com/conorfennell/studydeck/internal/storage"
)

// ErrEmptyTitle is returned when creating a document without a title.
var ErrEmptyTitle = errors.New("document title is required")

// Service manages documents and their version history.
type Service struct {
	db  *storage.DB
	now func() time.Time
}

// New returns a Service. now defaults to time.Now when nil.
func New(db *storage.DB, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{db: db, now: now}
}

// Create stores a new document with body as version 1.
func (s *Service) Create(ctx context.Context, title, body string) (domain.Document, domain.Version, error) {
	if title == "" {
		return domain.Document{}, domain.Version{}, ErrEmptyTitle
	}
	now := s.now()
	doc := domain.Document{ID: uuid.New(), Title: title, CreatedAt: now, UpdatedAt: now}
	v := newVersion(doc.ID, 1, body, now)
	if err := s.db.CreateDocument(ctx, doc, v); err != nil {
		return domain.Document{}, domain.Version{}, err
	}
	return doc, v, nil
}

// Save appends body as a new version. When body matches the latest version
// nothing is written and the latest version is returned with created false.
func (s *Service) Save(ctx context.Context, id uuid.UUID, body string) (v domain.Version, created bool, err error) {
	sum := fingerprint.Text(body)
	return s.db.SaveVersion(ctx, id, func(latest domain.Version) (domain.Version, bool) {
		if latest.Fingerprint == sum {
			return latest, false
		}
		return newVersion(id, latest.Number+1, body, s.now()), true
	})
}

func newVersion(docID uuid.UUID, n int, body string, now time.Time) domain.Version {
	return domain.Version{
		ID:          uuid.New(),
		DocumentID:  docID,
		Number:      n,
		Body:        body,
		Fingerprint: fingerprint.Text(body),
		CreatedAt:   now,
	}
}

// Document returns a document's metadata.
func (s *Service) Document(ctx context.Context, id uuid.UUID) (domain.Document, error) {
	return s.db.FindDocument(ctx, id)
}

// Documents lists all documents, most recently updated first.
func (s *Service) Documents(ctx context.Context) ([]domain.Document, error) {
	return s.db.ListDocuments(ctx)
}

// Versions returns a document's full history, oldest first.
func (s *Service) Versions(ctx context.Context, id uuid.UUID) ([]domain.Version, error) {
	if _, err := s.db.FindDocument(ctx, id); err != nil {
		return nil, err
	}
	return s.db.Versions(ctx, id)
}

// Version returns version n of a document. n <= 0 selects the latest version.
func (s *Service) Version(ctx context.Context, id uuid.UUID, n int) (domain.Version, error) {
	if n <= 0 {
		return s.db.LatestVersion(ctx, id)
	}
	return s.db.FindVersion(ctx, id, n)
}

// Comparison is the line diff between two texts plus its tallies.
type Comparison struct {
	From   int         `json:"from,omitempty"`
	To     int         `json:"to,omitempty"`
	Lines  []diff.Line `json:"lines"`
	Counts diff.Counts `json:"counts"`
}

// Compare diffs version from against version to of a document. A
// non-positive value selects the latest version; comparing to the previous
// version is the usual history preview.
func (s *Service) Compare(ctx context.Context, id uuid.UUID, from, to int) (Comparison, error) {
	target, err := s.Version(ctx, id, to)
	if err != nil {
		return Comparison{}, err
	}
	if from <= 0 {
		from = max(target.Number-1, 1)
	}
	base, err := s.Version(ctx, id, from)
	if err != nil {
		return Comparison{}, fmt.Errorf("base version: %w", err)
	}

	c := CompareText(base.Body, target.Body)
	c.From, c.To = base.Number, target.Number
	return c, nil
}

// CompareText diffs two arbitrary texts.
func CompareText(a, b string) Comparison {
	lines := diff.Compute(a, b)
	return Comparison{Lines: lines, Counts: diff.CountChanges(lines)}
}
