package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Azure/btumor-intake/pkg/errors"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

const (
	sessionsBucket = "sessions"
)

// BoltStoreConfig configures a BoltStore
type BoltStoreConfig struct {
	// Path of the bbolt database file
	Path string
	// Root holds the per-session blob directories
	Root            string
	ListConcurrency int
	Logger          zerolog.Logger
}

// BoltStore keeps metadata documents in a bbolt bucket keyed by session id.
// Uploaded blobs and artifacts stay on disk under Root.
type BoltStore struct {
	layout
	db              *bolt.DB
	listConcurrency int
	logger          zerolog.Logger
}

// NewBoltStore opens (or creates) the database and the sessions bucket
func NewBoltStore(config BoltStoreConfig) (*BoltStore, error) {
	l, err := newLayout(config.Root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(l.root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", l.root, err)
	}

	db, err := bolt.Open(config.Path, 0o600, &bolt.Options{
		Timeout:      5 * time.Second,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		if err == bolt.ErrTimeout {
			return nil, errors.Wrap(err, module, "session database is locked by another process").
				WithOperation("open_database").
				WithContext("database_path", config.Path)
		}
		return nil, errors.Wrap(err, module, "failed to open session database").
			WithOperation("open_database").
			WithContext("database_path", config.Path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionsBucket))
		return err
	})
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			config.Logger.Warn().Err(closeErr).Msg("Failed to close database after bucket creation error")
		}
		return nil, errors.Wrap(err, module, "failed to create sessions bucket").WithOperation("create_bucket")
	}

	return &BoltStore{
		layout:          l,
		db:              db,
		listConcurrency: config.ListConcurrency,
		logger:          config.Logger.With().Str("component", "bolt_store").Logger(),
	}, nil
}

// Create allocates a session directory and stores the initial document
func (s *BoltStore) Create(ctx context.Context) (*Session, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	sess := NewSession(newSessionID(), time.Now().UTC())
	if err := s.createDir(sess.SessionID); err != nil {
		return nil, errors.Wrap(err, module, "failed to create session").WithOperation("create")
	}
	if err := s.put(sess); err != nil {
		if rmErr := os.Remove(s.dir(sess.SessionID)); rmErr != nil {
			s.logger.Warn().Err(rmErr).Str("session_id", sess.SessionID).Msg("Failed to remove directory of unsaved session")
		}
		return nil, errors.Wrap(err, module, "failed to store session metadata").WithOperation("create")
	}

	s.logger.Info().Str("session_id", sess.SessionID).Msg("Created new session")
	return sess, nil
}

// Load retrieves a session. Both the bucket entry and the directory must exist.
func (s *BoltStore) Load(ctx context.Context, sessionID string) (*Session, error) {
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

	var data []byte
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(sessionsBucket)).Get([]byte(sessionID))
		if v != nil {
			// bolt values are only valid inside the transaction
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, module, "failed to read session metadata").WithOperation("load")
	}
	if data == nil {
		return nil, notFound(sessionID)
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

// Save overwrites the stored document in a single bolt transaction
func (s *BoltStore) Save(ctx context.Context, sess *Session) error {
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
	if err := s.put(sess); err != nil {
		return errors.Wrap(err, module, "failed to store session metadata").WithOperation("save")
	}
	return nil
}

// List returns summaries for every session directory with a stored document
func (s *BoltStore) List(ctx context.Context) ([]Summary, error) {
	return listSummaries(ctx, s.layout, s.Load, s.listConcurrency, s.logger)
}

// Dir returns the session's blob directory
func (s *BoltStore) Dir(sessionID string) string {
	return s.dir(sessionID)
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) put(sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(sessionsBucket)).Put([]byte(sess.SessionID), data)
	})
}
