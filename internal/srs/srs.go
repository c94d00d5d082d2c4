// Package srs schedules flashcard reviews with a simplified SM-2 rule set.
//
// Intervals grow 1, 6, then by the ease factor after each correct answer and
// reset to one day after a miss. The ease factor only moves down (on a miss)
// unless SuccessBonus is configured. Every function here is pure: cards are
// passed and returned by value and persistence belongs to the caller.
package srs

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
)

// ErrInvalidParams is returned by Params.Validate.
var ErrInvalidParams = errors.New("srs: invalid parameters")

// EaseFloor is the lowest ease factor a card may ever have.
const EaseFloor = 1.3

const (
	// EaseCeiling bounds the ease factor from above.
	EaseCeiling = 10.0
	// IntervalCeiling is the longest interval, in days, any card may have.
	IntervalCeiling = 36500
)

const day = 24 * time.Hour

// Params holds the tunables of the scheduler.
type Params struct {
	InitialEase      float64 `koanf:"initial_ease" validate:"gtefield=MinEase,lte=10"`
	MinEase          float64 `koanf:"min_ease" validate:"gte=1.3"`
	FailurePenalty   float64 `koanf:"failure_penalty" validate:"gte=0"`
	SuccessBonus     float64 `koanf:"success_bonus" validate:"gte=0"`
	MasteredInterval int     `koanf:"mastered_interval" validate:"gte=1"`
	// MaxInterval caps the interval reached by correct answers. Zero means
	// IntervalCeiling.
	MaxInterval int `koanf:"max_interval" validate:"gtefield=MasteredInterval,lte=36500"`
}

// DefaultParams returns the stock parameters. Ease is left unchanged on a
// correct answer (SuccessBonus 0).
func DefaultParams() *Params {
	return &Params{
		InitialEase:      2.5,
		MinEase:          EaseFloor,
		FailurePenalty:   0.2,
		SuccessBonus:     0,
		MasteredInterval: 21,
		MaxInterval:      IntervalCeiling,
	}
}

// Validate reports whether p can be used for scheduling.
func (p *Params) Validate() error {
	switch {
	case !(p.MinEase >= EaseFloor):
		return fmt.Errorf("%w: min ease %v below %v", ErrInvalidParams, p.MinEase, EaseFloor)
	case !(p.InitialEase >= p.MinEase):
		return fmt.Errorf("%w: initial ease %v below min ease %v", ErrInvalidParams, p.InitialEase, p.MinEase)
	case p.InitialEase > EaseCeiling:
		return fmt.Errorf("%w: initial ease %v above %v", ErrInvalidParams, p.InitialEase, EaseCeiling)
	case !(p.FailurePenalty >= 0):
		return fmt.Errorf("%w: failure penalty %v is negative", ErrInvalidParams, p.FailurePenalty)
	case !(p.SuccessBonus >= 0):
		return fmt.Errorf("%w: success bonus %v is negative", ErrInvalidParams, p.SuccessBonus)
	case p.MasteredInterval < 1:
		return fmt.Errorf("%w: mastered interval %d must be at least 1", ErrInvalidParams, p.MasteredInterval)
	case p.MaxInterval < p.MasteredInterval || p.MaxInterval > IntervalCeiling:
		return fmt.Errorf("%w: max interval %d must be between %d and %d",
			ErrInvalidParams, p.MaxInterval, p.MasteredInterval, IntervalCeiling)
	}
	return nil
}

// NewCard returns a card with the scheduling defaults and no reviews.
func (p *Params) NewCard(now time.Time) domain.Flashcard {
	return domain.Flashcard{
		Status:     domain.StatusNew,
		EaseFactor: p.InitialEase,
		CreatedAt:  now,
	}
}

// RecordReview returns card updated with one review outcome at now.
// Corrupted inputs are clamped rather than rejected. The input card's review
// slice is not modified.
func (p *Params) RecordReview(card domain.Flashcard, correct bool, now time.Time) domain.Flashcard {
	ease := p.clampEase(card.EaseFactor)
	limit := p.maxInterval()
	interval := min(max(card.Interval, 0), limit)

	if correct {
		switch interval {
		case 0:
			interval = 1
		case 1:
			interval = 6
		default:
			next := math.Round(float64(interval) * ease)
			if next >= float64(limit) {
				interval = limit
			} else {
				interval = max(int(next), interval)
			}
		}
		interval = min(interval, limit)
		ease = p.clampEase(ease + p.SuccessBonus)
	} else {
		interval = 1
		ease = p.clampEase(ease - p.FailurePenalty)
	}

	count := max(card.ReviewCount, len(card.Reviews)) + 1

	reviews := make([]domain.Review, len(card.Reviews), len(card.Reviews)+1)
	copy(reviews, card.Reviews)
	reviews = append(reviews, domain.Review{Date: now, Correct: correct})

	card.EaseFactor = ease
	card.Interval = interval
	card.ReviewCount = count
	card.Reviews = reviews
	card.Status = p.StatusOf(interval, count)
	return card
}

// StatusOf derives a card's status from its interval and review count.
func (p *Params) StatusOf(interval, reviewCount int) domain.Status {
	switch {
	case reviewCount == 0:
		return domain.StatusNew
	case interval >= p.MasteredInterval:
		return domain.StatusMastered
	default:
		return domain.StatusReviewing
	}
}

func (p *Params) clampEase(ease float64) float64 {
	floor := max(p.MinEase, EaseFloor)
	switch {
	case math.IsNaN(ease) || ease < floor:
		return floor
	case math.IsInf(ease, 1):
		return min(max(p.InitialEase, floor), EaseCeiling)
	case ease > EaseCeiling:
		return EaseCeiling
	}
	return ease
}

func (p *Params) maxInterval() int {
	if p.MaxInterval <= 0 || p.MaxInterval > IntervalCeiling {
		return IntervalCeiling
	}
	return p.MaxInterval
}

// DueDate returns when card is next due. ok is false for a card that has
// never been reviewed, which is always due. Stored intervals beyond
// IntervalCeiling are treated as IntervalCeiling.
func DueDate(card domain.Flashcard) (due time.Time, ok bool) {
	last, ok := card.LastReview()
	if !ok {
		return time.Time{}, false
	}
	days := min(max(card.Interval, 0), IntervalCeiling)
	return last.Date.Add(time.Duration(days) * day), true
}

// IsDue reports whether card should be reviewed at now.
func IsDue(card domain.Flashcard, now time.Time) bool {
	due, ok := DueDate(card)
	if !ok {
		return true
	}
	return !now.Before(due)
}

// Queue returns the cards due at now. Never-reviewed cards come first in
// creation order, then reviewed cards by ascending due date.
func Queue(cards []domain.Flashcard, now time.Time) []domain.Flashcard {
	var due []domain.Flashcard
	for _, c := range cards {
		if IsDue(c, now) {
			due = append(due, c)
		}
	}
	slices.SortStableFunc(due, func(a, b domain.Flashcard) int {
		da, aok := DueDate(a)
		db, bok := DueDate(b)
		switch {
		case !aok && !bok:
			return a.CreatedAt.Compare(b.CreatedAt)
		case !aok:
			return -1
		case !bok:
			return 1
		default:
			return da.Compare(db)
		}
	})
	return due
}

// Stats summarizes a collection of cards.
type Stats struct {
	Total     int `json:"total"`
	New       int `json:"new"`
	Reviewing int `json:"reviewing"`
	Mastered  int `json:"mastered"`
	Due       int `json:"due"`
}

// Summarize counts cards per status and how many are due at now.
func Summarize(cards []domain.Flashcard, now time.Time) Stats {
	var s Stats
	for _, c := range cards {
		s.Total++
		switch c.Status {
		case domain.StatusMastered:
			s.Mastered++
		case domain.StatusReviewing:
			s.Reviewing++
		default:
			s.New++
		}
		if IsDue(c, now) {
			s.Due++
		}
	}
	return s
}
