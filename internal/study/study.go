// Package study runs review sessions: it loads cards from storage, applies
// the scheduler and persists the outcome.
package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/srs"
	"github.com/conorfennell/studydeck/internal/storage"
)

// ErrNoDueCards is returned by Next when nothing is due.
var ErrNoDueCards = errors.New("no cards due")

// Service wires the scheduler to storage.
type Service struct {
	db     *storage.DB
	params *srs.Params
	now    func() time.Time
	log    *slog.Logger
}

// New returns a Service. now defaults to time.Now when nil.
func New(db *storage.DB, params *srs.Params, now func() time.Time, log *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{db: db, params: params, now: now, log: log}
}

// Answer records a review of the card with the given ID and returns the
// updated card.
func (s *Service) Answer(ctx context.Context, cardID string, correct bool) (domain.Flashcard, error) {
	updated, err := s.db.ReviewCard(ctx, cardID, func(card domain.Flashcard) domain.Flashcard {
		return s.params.RecordReview(card, correct, s.now())
	})
	if err != nil {
		return domain.Flashcard{}, fmt.Errorf("recording review: %w", err)
	}

	s.log.Debug("review recorded",
		"card", cardID,
		"correct", correct,
		"interval", updated.Interval,
		"ease", updated.EaseFactor,
		"status", updated.Status,
	)
	return updated, nil
}

// Card returns a single card.
func (s *Service) Card(ctx context.Context, cardID string) (domain.Flashcard, error) {
	return s.db.FindCard(ctx, cardID)
}

// Due returns the review queue at the current time.
func (s *Service) Due(ctx context.Context) ([]domain.Flashcard, error) {
	cards, err := s.db.ListCards(ctx)
	if err != nil {
		return nil, err
	}
	return srs.Queue(cards, s.now()), nil
}

// Next returns the first card of the review queue.
func (s *Service) Next(ctx context.Context) (domain.Flashcard, error) {
	due, err := s.Due(ctx)
	if err != nil {
		return domain.Flashcard{}, err
	}
	if len(due) == 0 {
		return domain.Flashcard{}, ErrNoDueCards
	}
	return due[0], nil
}

// Stats summarizes the whole collection at the current time.
func (s *Service) Stats(ctx context.Context) (srs.Stats, error) {
	cards, err := s.db.ListCards(ctx)
	if err != nil {
		return srs.Stats{}, err
	}
	return srs.Summarize(cards, s.now()), nil
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.now()
}
