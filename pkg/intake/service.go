// Package intake implements the session operations exposed over HTTP:
// creating sessions, accepting sequence uploads, running the analysis step
// and reading results back.
package intake

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/Azure/btumor-intake/pkg/analysis"
	"github.com/Azure/btumor-intake/pkg/config"
	"github.com/Azure/btumor-intake/pkg/errors"
	"github.com/Azure/btumor-intake/pkg/session"
	"github.com/rs/zerolog"
)

const module = "intake"

// Recorder receives domain events for metrics
type Recorder interface {
	SessionCreated()
	FileUploaded(sequenceType string, size int64)
	UploadRejected(reason string)
	AnalysisCompleted()
}

type nopRecorder struct{}

func (nopRecorder) SessionCreated()            {}
func (nopRecorder) FileUploaded(string, int64) {}
func (nopRecorder) UploadRejected(string)      {}
func (nopRecorder) AnalysisCompleted()         {}

// Config wires a Service
type Config struct {
	Store             session.Store
	Analyzer          analysis.Analyzer
	SequenceTypes     []string
	AllowedExtensions []string
	MaxUploadBytes    int64
	Metrics           Recorder
	Logger            zerolog.Logger
	Clock             func() time.Time
}

// Service coordinates the store, the analyzer and on-disk blobs
type Service struct {
	store             session.Store
	analyzer          analysis.Analyzer
	sequenceTypes     []string
	slots             map[string]bool
	allowedExtensions []string
	maxUploadBytes    int64
	metrics           Recorder
	logger            zerolog.Logger
	now               func() time.Time
	locks             *sessionLocks
}

// Results is what the analysis query returns
type Results struct {
	Session      *session.Session
	ArtifactPath string
}

// NewService validates cfg and fills in defaults
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.Internalf(module, "intake service requires a %s", "session store")
	}
	if cfg.Analyzer == nil {
		return nil, errors.Internalf(module, "intake service requires an %s", "analyzer")
	}

	defaults := config.DefaultConfig()
	if len(cfg.SequenceTypes) == 0 {
		cfg.SequenceTypes = defaults.SequenceTypes
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = defaults.AllowedExtensions
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaults.MaxUploadBytes
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopRecorder{}
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}

	slots := make(map[string]bool, len(cfg.SequenceTypes))
	for _, s := range cfg.SequenceTypes {
		slots[s] = true
	}

	return &Service{
		store:             cfg.Store,
		analyzer:          cfg.Analyzer,
		sequenceTypes:     cfg.SequenceTypes,
		slots:             slots,
		allowedExtensions: cfg.AllowedExtensions,
		maxUploadBytes:    cfg.MaxUploadBytes,
		metrics:           cfg.Metrics,
		logger:            cfg.Logger.With().Str("component", "intake").Logger(),
		now:               cfg.Clock,
		locks:             newSessionLocks(),
	}, nil
}

// MaxUploadBytes is the cap on a single upload request body
func (s *Service) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// Create allocates a new session
func (s *Service) Create(ctx context.Context) (*session.Session, error) {
	sess, err := s.store.Create(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create session")
		return nil, err
	}
	s.metrics.SessionCreated()
	return sess, nil
}

// Get returns the full session document
func (s *Service) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	return s.store.Load(ctx, sessionID)
}

// List returns every loadable session's summary
func (s *Service) List(ctx context.Context) ([]session.Summary, error) {
	return s.store.List(ctx)
}

// Analyze runs the analyzer over the session and records its result. It has
// no precondition on uploaded files.
func (s *Service) Analyze(ctx context.Context, sessionID string) (*session.Session, error) {
	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	hadAnalysis := sess.HasAnalysis()
	out, err := s.analyzer.Analyze(ctx, analysis.Input{
		SessionID:  sessionID,
		SessionDir: s.store.Dir(sessionID),
		Files:      sess.Files,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Analysis failed")
		return nil, errors.Wrap(err, module, "analysis failed").WithOperation("analyze")
	}

	now := s.now()
	sess.AIAnalysis = out.Analysis
	sess.SegFilePath = out.ArtifactPath
	sess.Advance(session.StatusAnalysisCompleted)
	sess.AnalysisCompletedAt = &now
	sess.Touch(now)

	if err := s.store.Save(ctx, sess); err != nil {
		// Results must not find an artifact for an unrecorded analysis
		if !hadAnalysis {
			if rmErr := os.Remove(out.ArtifactPath); rmErr != nil && !os.IsNotExist(rmErr) {
				s.logger.Warn().Err(rmErr).Str("session_id", sessionID).Msg("Failed to remove unrecorded segmentation file")
			}
		}
		return nil, err
	}

	s.metrics.AnalysisCompleted()
	s.logger.Info().Str("session_id", sessionID).Msg("Analysis completed")
	return sess, nil
}

// Results returns the stored payload once the artifact exists
func (s *Service) Results(ctx context.Context, sessionID string) (*Results, error) {
	sess, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	path := s.artifactPath(sessionID)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(module, "Segmentation file has not been generated").
				WithOperation("results").
				WithContext("session_id", sessionID).
				WithContext("seg_file_exists", "false")
		}
		return nil, errors.Wrap(err, module, "failed to stat segmentation file").WithOperation("results")
	}

	return &Results{Session: sess, ArtifactPath: path}, nil
}

// Artifact opens the session's segmentation file. The caller closes it.
func (s *Service) Artifact(ctx context.Context, sessionID string) (*os.File, os.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if !session.ValidID(sessionID) {
		return nil, nil, artifactNotFound(sessionID)
	}

	f, err := os.Open(s.artifactPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, artifactNotFound(sessionID)
		}
		return nil, nil, errors.Wrap(err, module, "failed to open segmentation file").WithOperation("artifact")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrap(err, module, "failed to stat segmentation file").WithOperation("artifact")
	}
	return f, info, nil
}

func (s *Service) artifactPath(sessionID string) string {
	return filepath.Join(s.store.Dir(sessionID), analysis.ArtifactFilename)
}

func artifactNotFound(sessionID string) error {
	return errors.NotFound(module, "Segmentation file has not been generated").
		WithOperation("artifact").
		WithContext("session_id", sessionID)
}
