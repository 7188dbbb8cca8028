package analysis

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Azure/btumor-intake/pkg/session"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

//go:embed fixture.yaml
var fixtureYAML []byte

// placeholderSegmentation is the uncompressed body of the stub artifact
var placeholderSegmentation = []byte("dummy_segmentation_data")

// Stub is the placeholder analyzer: it writes a dummy segmentation and
// returns the fixed payload from fixture.yaml.
type Stub struct {
	fixture []byte
	now     func() time.Time
	logger  zerolog.Logger
}

// StubOption customizes a Stub
type StubOption func(*Stub)

// WithClock overrides the clock used to stamp analysis_time
func WithClock(now func() time.Time) StubOption {
	return func(s *Stub) {
		s.now = now
	}
}

// WithFixture replaces the embedded payload fixture
func WithFixture(data []byte) StubOption {
	return func(s *Stub) {
		s.fixture = data
	}
}

// NewStub returns a Stub after checking its fixture decodes into a valid payload
func NewStub(logger zerolog.Logger, opts ...StubOption) (*Stub, error) {
	s := &Stub{
		fixture: fixtureYAML,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With().Str("component", "analysis_stub").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	payload, err := s.decode()
	if err != nil {
		return nil, err
	}
	if err := ValidatePayload(payload); err != nil {
		return nil, fmt.Errorf("invalid analysis fixture: %w", err)
	}
	return s, nil
}

// Analyze writes seg.nii.gz into the session directory and returns the payload
func (s *Stub) Analyze(ctx context.Context, in Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	artifactPath := filepath.Join(in.SessionDir, ArtifactFilename)
	if err := writeArtifact(artifactPath, placeholderSegmentation); err != nil {
		return nil, fmt.Errorf("failed to write segmentation artifact: %w", err)
	}

	// Decoding per call hands every session its own copy of the payload
	payload, err := s.decode()
	if err != nil {
		return nil, err
	}
	payload.LLMAnalysis.AnalysisTime = s.now()

	s.logger.Debug().
		Str("session_id", in.SessionID).
		Int("input_files", len(in.Files)).
		Str("artifact", artifactPath).
		Msg("Stub analysis finished")

	return &Output{Analysis: payload, ArtifactPath: artifactPath}, nil
}

func (s *Stub) decode() (session.AIAnalysis, error) {
	var payload session.AIAnalysis
	if err := yaml.Unmarshal(s.fixture, &payload); err != nil {
		return payload, fmt.Errorf("failed to decode analysis fixture: %w", err)
	}
	return payload, nil
}

// writeArtifact gzip-compresses body into path via a temp file and rename
func writeArtifact(path string, body []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	zw, err := gzip.NewWriterLevel(tmp, gzip.BestCompression)
	if err != nil {
		cleanup()
		return err
	}
	zw.Name = "seg.nii"
	if _, err := zw.Write(body); err != nil {
		cleanup()
		return err
	}
	if err := zw.Close(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
