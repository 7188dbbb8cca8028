// Package analysis defines the boundary to the segmentation/analysis step and
// ships a stub implementation that produces a fixed payload.
package analysis

import (
	"context"

	"github.com/Azure/btumor-intake/pkg/session"
)

// ArtifactFilename is the name of the generated artifact in a session directory
const ArtifactFilename = "seg.nii.gz"

// Input is everything an analyzer gets to see about a session
type Input struct {
	SessionID  string
	SessionDir string
	Files      map[string]session.FileRecord
}

// Output is the analyzer result: the payload and the artifact it wrote
type Output struct {
	Analysis     session.AIAnalysis
	ArtifactPath string
}

// Analyzer runs an analysis over a session's uploaded files. Implementations
// must write the artifact into Input.SessionDir before returning.
type Analyzer interface {
	Analyze(ctx context.Context, in Input) (*Output, error)
}
