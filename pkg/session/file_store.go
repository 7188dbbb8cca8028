package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Azure/btumor-intake/pkg/errors"
	"github.com/rs/zerolog"
)

// FileStoreConfig configures a FileStore
type FileStoreConfig struct {
	Root            string
	ListConcurrency int
	Logger          zerolog.Logger
}

// FileStore keeps each session's document in <root>/<id>/metadata.json
type FileStore struct {
	layout
	listConcurrency int
	logger          zerolog.Logger
}

// NewFileStore creates the storage root if needed and returns the store
func NewFileStore(config FileStoreConfig) (*FileStore, error) {
	l, err := newLayout(config.Root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(l.root, 0o750); err != nil {
		config.Logger.Error().Err(err).Str("path", l.root).Msg("Failed to create storage root")
		return nil, fmt.Errorf("failed to create storage root %s: %w", l.root, err)
	}
	return &FileStore{
		layout:          l,
		listConcurrency: config.ListConcurrency,
		logger:          config.Logger.With().Str("component", "file_store").Logger(),
	}, nil
}

// Create allocates a new session directory and writes its initial document
func (s *FileStore) Create(ctx context.Context) (*Session, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	sess := NewSession(newSessionID(), time.Now().UTC())
	if err := s.createDir(sess.SessionID); err != nil {
		return nil, errors.Wrap(err, module, "failed to create session").WithOperation("create")
	}
	if err := s.write(sess); err != nil {
		return nil, errors.Wrap(err, module, "failed to write session metadata").WithOperation("create")
	}

	s.logger.Info().Str("session_id", sess.SessionID).Msg("Created new session")
	return sess, nil
}

// Load reads the document for sessionID
func (s *FileStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	exists, err := s.dirExists(sessionID)
	if err != nil {
		return nil, errors.Wrap(err, module, "failed to stat session directory").WithOperation("load")
	}
	if !exists {
		return nil, notFound(sessionID)
	}

	data, err := os.ReadFile(s.metadataPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(sessionID)
		}
		return nil, errors.Wrap(err, module, "failed to read session metadata").WithOperation("load")
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, errors.Wrap(err, module, "failed to decode session metadata").
			WithOperation("load").
			WithContext("session_id", sessionID)
	}
	if sess.Files == nil {
		sess.Files = make(map[string]FileRecord)
	}
	return &sess, nil
}

// Save overwrites the whole document
func (s *FileStore) Save(ctx context.Context, sess *Session) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	exists, err := s.dirExists(sess.SessionID)
	if err != nil {
		return errors.Wrap(err, module, "failed to stat session directory").WithOperation("save")
	}
	if !exists {
		return notFound(sess.SessionID)
	}
	if err := s.write(sess); err != nil {
		return errors.Wrap(err, module, "failed to write session metadata").WithOperation("save")
	}
	return nil
}

// List returns summaries for every session with a loadable document
func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	return listSummaries(ctx, s.layout, s.Load, s.listConcurrency, s.logger)
}

// Dir returns the session's storage directory
func (s *FileStore) Dir(sessionID string) string {
	return s.dir(sessionID)
}

// Close is a no-op for the file store
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) metadataPath(sessionID string) string {
	return filepath.Join(s.dir(sessionID), MetadataFilename)
}

// write replaces metadata.json through a temp file and rename, so a reader
// sees either the old or the new document
func (s *FileStore) write(sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	dir := s.dir(sess.SessionID)
	tmp, err := os.CreateTemp(dir, MetadataFilename+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.metadataPath(sess.SessionID)); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
