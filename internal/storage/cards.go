package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
)

const cardColumns = `id, front, back, context, deck, source_id, status, ease_factor, interval_days, review_count, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (domain.Flashcard, error) {
	var (
		c        domain.Flashcard
		sourceID sql.NullInt64
		status   string
	)
	err := row.Scan(
		&c.ID,
		&c.Front,
		&c.Back,
		&c.Context,
		&c.Deck,
		&sourceID,
		&status,
		&c.EaseFactor,
		&c.Interval,
		&c.ReviewCount,
		&c.CreatedAt,
	)
	c.SourceID = sourceID.Int64
	c.Status = domain.Status(status)
	return c, err
}

// InsertCard inserts a new card together with any reviews it already carries.
func (db *DB) InsertCard(ctx context.Context, card domain.Flashcard) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var sourceID sql.NullInt64
		if card.SourceID != 0 {
			sourceID = sql.NullInt64{Int64: card.SourceID, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cards (`+cardColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			card.ID,
			card.Front,
			card.Back,
			card.Context,
			card.Deck,
			sourceID,
			string(card.Status),
			card.EaseFactor,
			card.Interval,
			card.ReviewCount,
			card.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert card %s: %w", card.ID, err)
		}
		for _, r := range card.Reviews {
			if err := insertReview(ctx, tx, card.ID, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindCard retrieves a card and its review history by ID.
func (db *DB) FindCard(ctx context.Context, id string) (domain.Flashcard, error) {
	return findCard(ctx, db.conn, id)
}

func findCard(ctx context.Context, q querier, id string) (domain.Flashcard, error) {
	row := q.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Flashcard{}, fmt.Errorf("card %s: %w", id, ErrNotFound)
		}
		return domain.Flashcard{}, fmt.Errorf("failed to find card %s: %w", id, err)
	}

	reviews, err := loadReviews(ctx, q, `WHERE card_id = ?`, id)
	if err != nil {
		return domain.Flashcard{}, err
	}
	card.Reviews = reviews[id]
	return card, nil
}

// CardExists reports whether a card with the given ID is stored.
func (db *DB) CardExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check card %s: %w", id, err)
	}
	return n > 0, nil
}

// ListCards returns every card with its review history, oldest first.
func (db *DB) ListCards(ctx context.Context) ([]domain.Flashcard, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+cardColumns+` FROM cards ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Flashcard
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}

	reviews, err := loadReviews(ctx, db.conn, "")
	if err != nil {
		return nil, err
	}
	for i := range cards {
		cards[i].Reviews = reviews[cards[i].ID]
	}
	return cards, nil
}

// CardIDsBySource returns the IDs of all cards imported from a source.
func (db *DB) CardIDsBySource(ctx context.Context, sourceID int64) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM cards WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan card id for source ID %d: %w", sourceID, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveReview persists the scheduling state of card and appends its most
// recent review to the history, in one transaction.
func (db *DB) SaveReview(ctx context.Context, card domain.Flashcard) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return saveReview(ctx, tx, card)
	})
}

// ReviewCard loads a card, passes it to review and saves the result with its
// newest review, all in one transaction. Concurrent calls for the same card
// are applied one after the other, each seeing the previous result.
func (db *DB) ReviewCard(ctx context.Context, id string, review func(domain.Flashcard) domain.Flashcard) (domain.Flashcard, error) {
	var updated domain.Flashcard
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		card, err := findCard(ctx, tx, id)
		if err != nil {
			return err
		}
		updated = review(card)
		if len(updated.Reviews) != len(card.Reviews)+1 {
			return fmt.Errorf("card %s: expected exactly one new review, got %d",
				id, len(updated.Reviews)-len(card.Reviews))
		}
		return saveReview(ctx, tx, updated)
	})
	if err != nil {
		return domain.Flashcard{}, err
	}
	return updated, nil
}

func saveReview(ctx context.Context, tx *sql.Tx, card domain.Flashcard) error {
	last, ok := card.LastReview()
	if !ok {
		return fmt.Errorf("card %s has no review to save", card.ID)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE cards
		SET status = ?, ease_factor = ?, interval_days = ?, review_count = ?
		WHERE id = ?
	`,
		string(card.Status),
		card.EaseFactor,
		card.Interval,
		card.ReviewCount,
		card.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update card %s: %w", card.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("card %s: %w", card.ID, ErrNotFound)
	}
	return insertReview(ctx, tx, card.ID, last)
}

// DeleteCard removes a card and its review history.
func (db *DB) DeleteCard(ctx context.Context, id string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM reviews WHERE card_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete reviews of card %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete card %s: %w", id, err)
		}
		return nil
	})
}

func insertReview(ctx context.Context, tx *sql.Tx, cardID string, r domain.Review) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO reviews (card_id, reviewed_at, correct)
		VALUES (?, ?, ?)
	`, cardID, r.Date, r.Correct)
	if err != nil {
		return fmt.Errorf("failed to insert review for card %s: %w", cardID, err)
	}
	return nil
}

// loadReviews loads review history keyed by card ID, in insertion order.
func loadReviews(ctx context.Context, q querier, where string, args ...any) (map[string][]domain.Review, error) {
	rows, err := q.QueryContext(ctx, `SELECT card_id, reviewed_at, correct FROM reviews `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load reviews: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.Review)
	for rows.Next() {
		var (
			cardID string
			date   time.Time
			r      domain.Review
		)
		if err := rows.Scan(&cardID, &date, &r.Correct); err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		r.Date = date
		out[cardID] = append(out[cardID], r)
	}
	return out, rows.Err()
}
