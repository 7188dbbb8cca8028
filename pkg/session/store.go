package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Azure/btumor-intake/pkg/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// MetadataFilename is the per-session document used by the file backend
	MetadataFilename = "metadata.json"

	module = "session"
)

// ErrNotFound matches any session not-found error via errors.Is
var ErrNotFound = &errors.IntakeError{Category: errors.CategoryNotFound, Module: module}

// Store persists session metadata documents. Blobs and artifacts always live
// in the session directory returned by Dir, whatever the backend.
type Store interface {
	Create(ctx context.Context) (*Session, error)
	Load(ctx context.Context, sessionID string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	List(ctx context.Context) ([]Summary, error)
	Dir(sessionID string) string
	Close() error
}

func notFound(sessionID string) error {
	return errors.NotFound(module, "session not found").WithContext("session_id", sessionID)
}

// ValidID reports whether id has the shape of an allocated session id.
// Anything else is treated as not found, which keeps path segments from the
// URL out of the filesystem.
func ValidID(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.String() == id
}

func newSessionID() string {
	return uuid.New().String()
}

// layout maps session ids onto directories under the storage root
type layout struct {
	root string
}

// newLayout resolves root once so every stored path is absolute
func newLayout(root string) (layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return layout{}, fmt.Errorf("failed to resolve storage root %s: %w", root, err)
	}
	return layout{root: abs}, nil
}

func (l layout) dir(sessionID string) string {
	return filepath.Join(l.root, sessionID)
}

// dirExists returns false for missing directories and for invalid ids
func (l layout) dirExists(sessionID string) (bool, error) {
	if !ValidID(sessionID) {
		return false, nil
	}
	info, err := os.Stat(l.dir(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (l layout) createDir(sessionID string) error {
	if err := os.MkdirAll(l.root, 0o750); err != nil {
		return fmt.Errorf("failed to create storage root %s: %w", l.root, err)
	}
	if err := os.Mkdir(l.dir(sessionID), 0o750); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	return nil
}

// sessionIDs enumerates directory names under the root that look like ids
func (l layout) sessionIDs() ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && ValidID(entry.Name()) {
			ids = append(ids, entry.Name())
		}
	}
	return ids, nil
}

// listSummaries loads every session directory's document with bounded
// concurrency. Sessions that cannot be loaded are skipped.
func listSummaries(ctx context.Context, l layout, load func(context.Context, string) (*Session, error), concurrency int, logger zerolog.Logger) ([]Summary, error) {
	ids, err := l.sessionIDs()
	if err != nil {
		return nil, errors.Wrap(err, module, "failed to enumerate sessions")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]*Summary, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			s, err := load(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if !errors.IsNotFound(err) {
					logger.Warn().Err(err).Str("session_id", id).Msg("Skipping unreadable session")
				}
				return nil
			}
			summary := s.GetSummary()
			results[i] = &summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, module, "failed to list sessions")
	}

	summaries := make([]Summary, 0, len(results))
	for _, r := range results {
		if r != nil {
			summaries = append(summaries, *r)
		}
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].SessionID < summaries[j].SessionID
		}
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries, nil
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
