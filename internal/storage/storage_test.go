package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/studydeck/internal/domain"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "study.db"))
	if err != nil {
		t.Fatalf("Open() returned an unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newCard(id string, sourceID int64) domain.Flashcard {
	return domain.Flashcard{
		ID:         id,
		Front:      "front " + id,
		Back:       "back " + id,
		Deck:       "deck",
		SourceID:   sourceID,
		Status:     domain.StatusNew,
		EaseFactor: 2.5,
		CreatedAt:  now,
	}
}

func TestCards(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	sourceID, err := db.InsertSource(ctx, "/decks", domain.SourceLocal)
	if err != nil {
		t.Fatalf("InsertSource: %v", err)
	}

	card := newCard("c1", sourceID)
	if err := db.InsertCard(ctx, card); err != nil {
		t.Fatalf("InsertCard: %v", err)
	}

	t.Run("find", func(t *testing.T) {
		got, err := db.FindCard(ctx, "c1")
		if err != nil {
			t.Fatalf("FindCard: %v", err)
		}
		if got.Front != card.Front || got.SourceID != sourceID || got.Status != domain.StatusNew || got.EaseFactor != 2.5 {
			t.Errorf("Unexpected card: %+v", got)
		}
		if !got.CreatedAt.Equal(now) {
			t.Errorf("Expected created_at %v, got %v", now, got.CreatedAt)
		}
		if len(got.Reviews) != 0 {
			t.Errorf("Expected no reviews, got %d", len(got.Reviews))
		}
	})

	t.Run("missing", func(t *testing.T) {
		if _, err := db.FindCard(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		ok, err := db.CardExists(ctx, "nope")
		if err != nil || ok {
			t.Errorf("Expected CardExists to be false, got %v, %v", ok, err)
		}
	})

	t.Run("reviews keep insertion order", func(t *testing.T) {
		c := card
		outcomes := []bool{true, false, true}
		for i, correct := range outcomes {
			c.Reviews = append(c.Reviews, domain.Review{Date: now.Add(-time.Duration(i) * time.Hour), Correct: correct})
			c.ReviewCount = len(c.Reviews)
			c.Interval = i + 1
			c.Status = domain.StatusReviewing
			if err := db.SaveReview(ctx, c); err != nil {
				t.Fatalf("SaveReview: %v", err)
			}
		}

		got, err := db.FindCard(ctx, "c1")
		if err != nil {
			t.Fatalf("FindCard: %v", err)
		}
		if got.ReviewCount != 3 || got.Interval != 3 || got.Status != domain.StatusReviewing {
			t.Errorf("Unexpected scheduling state: %+v", got)
		}
		if len(got.Reviews) != 3 {
			t.Fatalf("Expected 3 reviews, got %d", len(got.Reviews))
		}
		for i, r := range got.Reviews {
			if r.Correct != outcomes[i] {
				t.Errorf("review %d: expected correct=%v", i, outcomes[i])
			}
			// Dates run backwards on purpose: order comes from insertion, not time.
			if !r.Date.Equal(now.Add(-time.Duration(i) * time.Hour)) {
				t.Errorf("review %d: unexpected date %v", i, r.Date)
			}
		}
	})

	t.Run("save review on missing card", func(t *testing.T) {
		ghost := newCard("ghost", 0)
		ghost.Reviews = []domain.Review{{Date: now, Correct: true}}
		if err := db.SaveReview(ctx, ghost); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if err := db.SaveReview(ctx, newCard("c1", 0)); err == nil {
			t.Error("Expected an error when the card carries no review")
		}
	})

	t.Run("list and delete", func(t *testing.T) {
		if err := db.InsertCard(ctx, newCard("c2", sourceID)); err != nil {
			t.Fatalf("InsertCard: %v", err)
		}
		cards, err := db.ListCards(ctx)
		if err != nil {
			t.Fatalf("ListCards: %v", err)
		}
		if len(cards) != 2 || len(cards[0].Reviews)+len(cards[1].Reviews) != 3 {
			t.Fatalf("Unexpected cards: %+v", cards)
		}

		ids, err := db.CardIDsBySource(ctx, sourceID)
		if err != nil || len(ids) != 2 {
			t.Fatalf("CardIDsBySource: %v, %v", ids, err)
		}

		if err := db.DeleteCard(ctx, "c1"); err != nil {
			t.Fatalf("DeleteCard: %v", err)
		}
		if _, err := db.FindCard(ctx, "c1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected deleted card to be gone, got %v", err)
		}
	})
}

func TestReviewCard(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	if err := db.InsertCard(ctx, newCard("c1", 0)); err != nil {
		t.Fatalf("InsertCard: %v", err)
	}

	answer := func(c domain.Flashcard) domain.Flashcard {
		c.Reviews = append(c.Reviews, domain.Review{Date: now, Correct: true})
		c.ReviewCount++
		c.Interval++
		return c
	}
	for i := 1; i <= 3; i++ {
		got, err := db.ReviewCard(ctx, "c1", answer)
		if err != nil {
			t.Fatalf("ReviewCard %d: %v", i, err)
		}
		if got.ReviewCount != i || got.Interval != i {
			t.Errorf("review %d: unexpected card %+v", i, got)
		}
	}

	stored, err := db.FindCard(ctx, "c1")
	if err != nil || stored.ReviewCount != 3 || len(stored.Reviews) != 3 {
		t.Fatalf("Unexpected stored card %+v (%v)", stored, err)
	}

	t.Run("missing card", func(t *testing.T) {
		if _, err := db.ReviewCard(ctx, "nope", answer); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("no new review rolls back", func(t *testing.T) {
		_, err := db.ReviewCard(ctx, "c1", func(c domain.Flashcard) domain.Flashcard {
			c.Interval = 99
			return c
		})
		if err == nil {
			t.Fatal("Expected an error when no review is added")
		}
		if got, _ := db.FindCard(ctx, "c1"); got.Interval != 3 {
			t.Errorf("Expected interval to stay 3, got %d", got.Interval)
		}
	})
}

func TestSources(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	id, err := db.InsertSource(ctx, "https://example.com/decks.git", domain.SourceGit)
	if err != nil {
		t.Fatalf("InsertSource: %v", err)
	}
	if _, err := db.InsertSource(ctx, "https://example.com/decks.git", domain.SourceGit); err == nil {
		t.Error("Expected a duplicate path to be rejected")
	}

	s, err := db.FindSourceByPath(ctx, "https://example.com/decks.git")
	if err != nil {
		t.Fatalf("FindSourceByPath: %v", err)
	}
	if s.ID != id || s.Type != domain.SourceGit || s.LastScanned != nil {
		t.Errorf("Unexpected source: %+v", s)
	}

	if err := db.UpdateSourceLastScanned(ctx, id, now); err != nil {
		t.Fatalf("UpdateSourceLastScanned: %v", err)
	}
	sources, err := db.ListSources(ctx)
	if err != nil || len(sources) != 1 {
		t.Fatalf("ListSources: %v, %v", sources, err)
	}
	if sources[0].LastScanned == nil || !sources[0].LastScanned.Equal(now) {
		t.Errorf("Expected last_scanned %v, got %v", now, sources[0].LastScanned)
	}

	card := newCard("from-git", id)
	card.Reviews = []domain.Review{{Date: now, Correct: true}}
	card.ReviewCount = 1
	if err := db.InsertCard(ctx, card); err != nil {
		t.Fatalf("InsertCard: %v", err)
	}

	if err := db.DeleteSource(ctx, id); err != nil {
		t.Fatalf("DeleteSource: %v", err)
	}
	if _, err := db.FindCard(ctx, "from-git"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected cards of a deleted source to be removed, got %v", err)
	}
	if err := db.DeleteSource(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDocuments(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	doc := domain.Document{ID: uuid.New(), Title: "Notes", CreatedAt: now, UpdatedAt: now}
	v1 := domain.Version{ID: uuid.New(), DocumentID: doc.ID, Number: 1, Body: "one", Fingerprint: "f1", CreatedAt: now}
	if err := db.CreateDocument(ctx, doc, v1); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	later := now.Add(time.Hour)
	v2 := domain.Version{ID: uuid.New(), DocumentID: doc.ID, Number: 2, Body: "one\ntwo", Fingerprint: "f2", CreatedAt: later}
	if err := db.AppendVersion(ctx, v2); err != nil {
		t.Fatalf("AppendVersion: %v", err)
	}
	if err := db.AppendVersion(ctx, v2); err == nil {
		t.Error("Expected a duplicate version number to be rejected")
	}

	got, err := db.FindDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("FindDocument: %v", err)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("Expected updated_at to move to %v, got %v", later, got.UpdatedAt)
	}

	versions, err := db.Versions(ctx, doc.ID)
	if err != nil || len(versions) != 2 || versions[0].Number != 1 || versions[1].Body != "one\ntwo" {
		t.Fatalf("Versions: %+v, %v", versions, err)
	}

	latest, err := db.LatestVersion(ctx, doc.ID)
	if err != nil || latest.ID != v2.ID {
		t.Errorf("LatestVersion: %+v, %v", latest, err)
	}
	if _, err := db.FindVersion(ctx, doc.ID, 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a missing version, got %v", err)
	}
	if _, err := db.FindDocument(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a missing document, got %v", err)
	}

	orphan := domain.Version{ID: uuid.New(), DocumentID: uuid.New(), Number: 1, CreatedAt: now}
	if err := db.AppendVersion(ctx, orphan); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a version of a missing document, got %v", err)
	}

	next := func(latest domain.Version) (domain.Version, bool) {
		if latest.Body == "one\ntwo" {
			return latest, false
		}
		return domain.Version{ID: uuid.New(), DocumentID: doc.ID, Number: latest.Number + 1, Body: "three", CreatedAt: later}, true
	}
	if v, created, err := db.SaveVersion(ctx, doc.ID, next); err != nil || created || v.Number != 2 {
		t.Errorf("SaveVersion on an unchanged body: %+v created=%v err=%v", v, created, err)
	}
	if _, _, err := db.SaveVersion(ctx, uuid.New(), next); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a missing document, got %v", err)
	}

	docs, err := db.ListDocuments(ctx)
	if err != nil || len(docs) != 1 || docs[0].Title != "Notes" {
		t.Errorf("ListDocuments: %+v, %v", docs, err)
	}
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if _, err := db.GetSetting(ctx, "theme"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	for _, v := range []string{"dark", "light"} {
		if err := db.SetSetting(ctx, "theme", v); err != nil {
			t.Fatalf("SetSetting: %v", err)
		}
		got, err := db.GetSetting(ctx, "theme")
		if err != nil || got != v {
			t.Errorf("Expected %q, got %q (%v)", v, got, err)
		}
	}
}
