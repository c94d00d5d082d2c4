// Package sync imports deck files from registered sources into storage.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/fingerprint"
	"github.com/conorfennell/studydeck/internal/gitsource"
	"github.com/conorfennell/studydeck/internal/parser"
	"github.com/conorfennell/studydeck/internal/srs"
	"github.com/conorfennell/studydeck/internal/storage"
)

// FetchFunc brings a git remote up to date at a local path.
type FetchFunc func(ctx context.Context, url, localPath string) error

// Syncer reconciles sources with the card table.
type Syncer struct {
	db       *storage.DB
	params   *srs.Params
	reposDir string
	log      *slog.Logger
	now      func() time.Time
	fetch    FetchFunc
}

// Option customizes a Syncer.
type Option func(*Syncer)

// WithLogger sets the logger used for progress messages.
func WithLogger(l *slog.Logger) Option { return func(s *Syncer) { s.log = l } }

// WithClock sets the time source used for new cards and scan timestamps.
func WithClock(now func() time.Time) Option { return func(s *Syncer) { s.now = now } }

// WithFetcher replaces the git fetcher.
func WithFetcher(f FetchFunc) Option { return func(s *Syncer) { s.fetch = f } }

// WithProgress sends git transfer progress to w.
func WithProgress(w io.Writer) Option {
	return func(s *Syncer) {
		s.fetch = func(ctx context.Context, url, localPath string) error {
			return gitsource.Sync(ctx, url, localPath, w)
		}
	}
}

// New returns a Syncer that clones git sources under reposDir.
func New(db *storage.DB, params *srs.Params, reposDir string, opts ...Option) *Syncer {
	s := &Syncer{
		db:       db,
		params:   params,
		reposDir: reposDir,
		log:      slog.Default(),
		now:      time.Now,
		fetch: func(ctx context.Context, url, localPath string) error {
			return gitsource.Sync(ctx, url, localPath, nil)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report summarizes one sync run.
type Report struct {
	Sources     int `json:"sources"`
	Failed      int `json:"failed"`
	Parsed      int `json:"parsed"`
	Inserted    int `json:"inserted"`
	Deleted     int `json:"deleted"`
	ParseErrors int `json:"parse_errors"`
}

// Run reconciles every registered source. A failing source is logged and
// counted; only failing to list sources aborts the run.
func (s *Syncer) Run(ctx context.Context) (Report, error) {
	var report Report

	sources, err := s.db.ListSources(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to get sources: %w", err)
	}
	if len(sources) == 0 {
		s.log.Info("no sources configured")
		return report, nil
	}

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Sources++
		s.log.Info("syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		dir := source.Path
		if source.Type == domain.SourceGit {
			localPath, err := GitURLToLocalPath(s.reposDir, source.Path)
			if err != nil {
				s.log.Error("error determining local path for git repo", "url", source.Path, "error", err)
				report.Failed++
				continue
			}
			if err := s.fetch(ctx, source.Path, localPath); err != nil {
				s.log.Error("error syncing git repo", "url", source.Path, "error", err)
				report.Failed++
				continue
			}
			dir = localPath
		}

		if err := s.reconcile(ctx, source, dir, &report); err != nil {
			s.log.Error("error reconciling source", "id", source.ID, "path", dir, "error", err)
			report.Failed++
		}
	}

	s.log.Info("sync complete",
		"sources", report.Sources,
		"failed", report.Failed,
		"inserted", report.Inserted,
		"deleted", report.Deleted,
	)
	return report, nil
}

func (s *Syncer) reconcile(ctx context.Context, source domain.Source, dir string, report *Report) error {
	found := make(map[string]bool)
	var inserted, parseErrors int

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
			return nil
		}

		cards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			s.log.Warn("failed to parse deck file", "path", path, "error", parseErr)
			parseErrors++
		}
		defaultDeck := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))

		for _, parsed := range cards {
			id := fingerprint.Card(parsed.Front, parsed.Back, parsed.Context)
			report.Parsed++
			if found[id] {
				continue
			}
			found[id] = true

			exists, err := s.db.CardExists(ctx, id)
			if err != nil {
				return err
			}
			if exists {
				continue
			}

			card := s.params.NewCard(s.now())
			card.ID = id
			card.Front = parsed.Front
			card.Back = parsed.Back
			card.Context = parsed.Context
			card.Deck = parsed.Deck
			if card.Deck == "" {
				card.Deck = defaultDeck
			}
			card.SourceID = source.ID
			if err := s.db.InsertCard(ctx, card); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	report.Inserted += inserted
	report.ParseErrors += parseErrors
	if walkErr != nil {
		return fmt.Errorf("walking %s: %w", dir, walkErr)
	}

	// Cards of a file that failed to parse were not seen, so nothing can be
	// called an orphan this run.
	var deleted int
	if parseErrors > 0 {
		s.log.Warn("skipping orphan cleanup after parse errors", "source_id", source.ID, "parse_errors", parseErrors)
	} else {
		ids, err := s.db.CardIDsBySource(ctx, source.ID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if found[id] {
				continue
			}
			if err := s.db.DeleteCard(ctx, id); err != nil {
				s.log.Warn("failed to delete orphaned card", "id", id, "error", err)
				continue
			}
			deleted++
		}
		report.Deleted += deleted
	}

	if err := s.db.UpdateSourceLastScanned(ctx, source.ID, s.now()); err != nil {
		s.log.Warn("failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	s.log.Info("reconciliation complete", "path", dir, "inserted", inserted, "orphaned_deleted", deleted)
	return nil
}

// DetectSourceType guesses whether path names a git remote or a local directory.
func DetectSourceType(path string) domain.SourceType {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return domain.SourceGit
	}
	return domain.SourceLocal
}

var (
	// ErrSourceExists is returned by AddSource for an already registered path.
	ErrSourceExists = errors.New("source already registered")
	// ErrInvalidSource is returned by AddSource for a path or URL that cannot
	// be used as a source.
	ErrInvalidSource = errors.New("invalid source")
)

// AddSource registers path as a source. Local paths are made absolute and
// must name an existing directory.
func AddSource(ctx context.Context, db *storage.DB, path string) (domain.Source, error) {
	typ := DetectSourceType(path)
	switch typ {
	case domain.SourceLocal:
		abs, err := filepath.Abs(path)
		if err != nil {
			return domain.Source{}, fmt.Errorf("%w: resolving %s: %v", ErrInvalidSource, path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return domain.Source{}, fmt.Errorf("%w: %v", ErrInvalidSource, err)
		}
		if !info.IsDir() {
			return domain.Source{}, fmt.Errorf("%w: %s is not a directory", ErrInvalidSource, abs)
		}
		path = abs
	case domain.SourceGit:
		if _, err := GitURLToLocalPath("repos", path); err != nil {
			return domain.Source{}, fmt.Errorf("%w: %v", ErrInvalidSource, err)
		}
	}

	if _, err := db.FindSourceByPath(ctx, path); err == nil {
		return domain.Source{}, fmt.Errorf("%s: %w", path, ErrSourceExists)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return domain.Source{}, err
	}

	id, err := db.InsertSource(ctx, path, typ)
	if err != nil {
		return domain.Source{}, err
	}
	return domain.Source{ID: id, Path: path, Type: typ}, nil
}

// GitURLToLocalPath maps a remote URL to a directory under baseDir, e.g.
// https://github.com/a/b.git and git@github.com:a/b.git both become
// baseDir/github.com/a/b. URLs whose path would leave baseDir are rejected.
func GitURLToLocalPath(baseDir, repoURL string) (string, error) {
	var host, repoPath string
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		if !strings.Contains(repoURL, "@") {
			return "", fmt.Errorf("could not parse git URL: %s", repoURL)
		}
		parts := strings.Split(repoURL, ":")
		if len(parts) != 2 {
			return "", fmt.Errorf("could not parse git URL: %s", repoURL)
		}
		hostAndUser := strings.Split(parts[0], "@")
		if len(hostAndUser) != 2 {
			return "", fmt.Errorf("could not parse git URL: %s", repoURL)
		}
		host, repoPath = hostAndUser[1], parts[1]
	} else {
		host, repoPath = parsedURL.Host, parsedURL.Path
	}
	repoPath = strings.TrimSuffix(repoPath, ".git")

	for _, segment := range strings.FieldsFunc(host+"/"+repoPath, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			return "", fmt.Errorf("git URL %s escapes the repository directory", repoURL)
		}
	}

	localPath := filepath.Join(baseDir, host, repoPath)
	rel, err := filepath.Rel(baseDir, localPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("git URL %s escapes the repository directory", repoURL)
	}
	return localPath, nil
}
