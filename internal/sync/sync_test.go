package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/fingerprint"
	"github.com/conorfennell/studydeck/internal/parser"
	"github.com/conorfennell/studydeck/internal/srs"
	"github.com/conorfennell/studydeck/internal/storage"
)

var fixedNow = time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*storage.DB, string) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "study.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, t.TempDir()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newSyncer(db *storage.DB, opts ...Option) *Syncer {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithLogger(quiet), WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(db, srs.DefaultParams(), filepath.Join(os.TempDir(), "unused-repos"), opts...)
}

func TestRunLocalSource(t *testing.T) {
	ctx := context.Background()
	db, dir := setup(t)

	writeFile(t, filepath.Join(dir, "geo.md"), "Q: Capital of France?\nA: Paris\n---\nQ: Capital of Peru?\nA: Lima\n")
	writeFile(t, filepath.Join(dir, "sub", "go.md"), "# Go\nQ: Zero value of a map?\nA: nil\n")
	writeFile(t, filepath.Join(dir, "ignored.txt"), "Q: not a deck\nA: skipped\n")
	writeFile(t, filepath.Join(dir, ".git", "hidden.md"), "Q: inside .git\nA: skipped\n")

	source, err := AddSource(ctx, db, dir)
	if err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if source.Type != domain.SourceLocal {
		t.Fatalf("Expected a local source, got %q", source.Type)
	}

	report, err := newSyncer(db).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Sources != 1 || report.Inserted != 3 || report.Deleted != 0 || report.Failed != 0 {
		t.Fatalf("Unexpected report: %+v", report)
	}

	card, err := db.FindCard(ctx, fingerprint.Card("Capital of France?", "Paris", ""))
	if err != nil {
		t.Fatalf("FindCard: %v", err)
	}
	if card.Deck != "geo" || card.Status != domain.StatusNew || card.EaseFactor != 2.5 || card.Interval != 0 {
		t.Errorf("Unexpected imported card: %+v", card)
	}
	if !card.CreatedAt.Equal(fixedNow) {
		t.Errorf("Expected created_at %v, got %v", fixedNow, card.CreatedAt)
	}

	goCard, err := db.FindCard(ctx, fingerprint.Card("Zero value of a map?", "nil", ""))
	if err != nil || goCard.Deck != "Go" {
		t.Errorf("Expected heading deck Go, got %+v (%v)", goCard, err)
	}

	t.Run("second run keeps history and deletes orphans", func(t *testing.T) {
		reviewed := srs.DefaultParams().RecordReview(card, true, fixedNow)
		if err := db.SaveReview(ctx, reviewed); err != nil {
			t.Fatalf("SaveReview: %v", err)
		}

		writeFile(t, filepath.Join(dir, "geo.md"), "Q: Capital of France?\nA: Paris\n")

		report, err := newSyncer(db).Run(ctx)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if report.Inserted != 0 || report.Deleted != 1 {
			t.Errorf("Unexpected report: %+v", report)
		}

		kept, err := db.FindCard(ctx, card.ID)
		if err != nil {
			t.Fatalf("FindCard: %v", err)
		}
		if kept.ReviewCount != 1 || len(kept.Reviews) != 1 {
			t.Errorf("Expected review history to survive a resync, got %+v", kept)
		}

		sources, _ := db.ListSources(ctx)
		if sources[0].LastScanned == nil {
			t.Error("Expected last_scanned to be set")
		}
	})
}

func TestRunKeepsCardsOfUnparsableFiles(t *testing.T) {
	ctx := context.Background()
	db, dir := setup(t)
	deck := filepath.Join(dir, "deck.md")
	writeFile(t, deck, "Q: Largest planet?\nA: Jupiter\n")

	if _, err := AddSource(ctx, db, dir); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if _, err := newSyncer(db).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	id := fingerprint.Card("Largest planet?", "Jupiter", "")
	card, err := db.FindCard(ctx, id)
	if err != nil {
		t.Fatalf("FindCard: %v", err)
	}
	if err := db.SaveReview(ctx, srs.DefaultParams().RecordReview(card, true, fixedNow)); err != nil {
		t.Fatalf("SaveReview: %v", err)
	}

	writeFile(t, deck, "Q: Largest planet?\nA: Jupiter\nQ: "+strings.Repeat("x", parser.MaxLineSize+1)+"\n")
	report, err := newSyncer(db).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.ParseErrors != 1 || report.Deleted != 0 {
		t.Errorf("Unexpected report: %+v", report)
	}

	kept, err := db.FindCard(ctx, id)
	if err != nil {
		t.Fatalf("Expected the card to survive a failed parse: %v", err)
	}
	if len(kept.Reviews) != 1 {
		t.Errorf("Expected the review history to survive, got %d reviews", len(kept.Reviews))
	}

	// Once the file parses again, cleanup resumes.
	writeFile(t, deck, "Q: Smallest planet?\nA: Mercury\n")
	report, err = newSyncer(db).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.ParseErrors != 0 || report.Deleted != 1 || report.Inserted != 1 {
		t.Errorf("Unexpected report: %+v", report)
	}
}

func TestRunGitSource(t *testing.T) {
	ctx := context.Background()
	db, _ := setup(t)
	reposDir := t.TempDir()

	if _, err := AddSource(ctx, db, "https://example.com/me/decks.git"); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if _, err := AddSource(ctx, db, "git@example.com:me/broken.git"); err != nil {
		t.Fatalf("AddSource: %v", err)
	}

	var fetched []string
	fetch := func(_ context.Context, url, localPath string) error {
		fetched = append(fetched, url)
		if url == "git@example.com:me/broken.git" {
			return errors.New("network down")
		}
		writeFile(t, filepath.Join(localPath, "deck.md"), "Q: ping\nA: pong\n")
		return nil
	}

	s := New(db, srs.DefaultParams(), reposDir,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithFetcher(fetch),
	)
	report, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fetched) != 2 {
		t.Errorf("Expected both remotes to be fetched, got %v", fetched)
	}
	if report.Sources != 2 || report.Failed != 1 || report.Inserted != 1 {
		t.Errorf("Unexpected report: %+v", report)
	}
	if _, err := os.Stat(filepath.Join(reposDir, "example.com", "me", "decks", "deck.md")); err != nil {
		t.Errorf("Expected the clone under the repos dir: %v", err)
	}
}

func TestRunNoSources(t *testing.T) {
	db, _ := setup(t)
	report, err := newSyncer(db).Run(context.Background())
	if err != nil || report != (Report{}) {
		t.Errorf("Expected an empty report, got %+v (%v)", report, err)
	}
}

func TestAddSource(t *testing.T) {
	ctx := context.Background()
	db, dir := setup(t)

	if _, err := AddSource(ctx, db, dir); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if _, err := AddSource(ctx, db, dir); !errors.Is(err, ErrSourceExists) {
		t.Errorf("Expected ErrSourceExists, got %v", err)
	}
	if _, err := AddSource(ctx, db, filepath.Join(dir, "missing")); err == nil {
		t.Error("Expected an error for a missing directory")
	}

	file := filepath.Join(dir, "deck.md")
	writeFile(t, file, "")
	if _, err := AddSource(ctx, db, file); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("Expected ErrInvalidSource for a file path, got %v", err)
	}
	if _, err := AddSource(ctx, db, "git@evil.example:../../../home/user/.ssh.git"); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("Expected ErrInvalidSource for an escaping git URL, got %v", err)
	}
}

func TestDetectSourceType(t *testing.T) {
	testCases := map[string]domain.SourceType{
		"https://github.com/a/b":   domain.SourceGit,
		"git@github.com:a/b.git":   domain.SourceGit,
		"/home/me/decks":           domain.SourceLocal,
		"notes":                    domain.SourceLocal,
		"/srv/mirrors/decks.git":   domain.SourceGit,
		"http://intranet/decks.md": domain.SourceGit,
	}
	for path, want := range testCases {
		if got := DetectSourceType(path); got != want {
			t.Errorf("DetectSourceType(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestGitURLToLocalPath(t *testing.T) {
	testCases := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://github.com/a/b.git", filepath.Join("repos", "github.com", "a", "b"), false},
		{"git@github.com:a/b.git", filepath.Join("repos", "github.com", "a", "b"), false},
		{"ftp//nonsense", "", true},
		{"git@evil:../../../home/user/.ssh.git", "", true},
		{"https://evil/../../../../tmp/x.git", "", true},
		{"https://evil/a/../../../x.git", "", true},
		{"git@..:x.git", "", true},
		{"https://host/a/..b/c.git", filepath.Join("repos", "host", "a", "..b", "c"), false},
	}
	for _, tc := range testCases {
		got, err := GitURLToLocalPath("repos", tc.url)
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: unexpected error state: %v", tc.url, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.url, tc.want, got)
		}
	}
}
