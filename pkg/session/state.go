package session

import (
	"time"
)

// Status is the collective lifecycle state of a session
type Status string

const (
	StatusCreated           Status = "created"
	StatusFilesUploaded     Status = "files_uploaded"
	StatusAnalysisCompleted Status = "analysis_completed"
)

var statusRank = map[Status]int{
	StatusCreated:           0,
	StatusFilesUploaded:     1,
	StatusAnalysisCompleted: 2,
}

// Session is the metadata document persisted for every session
type Session struct {
	SessionID           string                `json:"session_id"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           *time.Time            `json:"updated_at,omitempty"`
	AnalysisCompletedAt *time.Time            `json:"analysis_completed_at,omitempty"`
	Status              Status                `json:"status"`
	Files               map[string]FileRecord `json:"files"`
	AIAnalysis          AIAnalysis            `json:"ai_analysis"`
	SegFilePath         string                `json:"seg_file_path,omitempty"`
}

// FileRecord describes one uploaded blob
type FileRecord struct {
	OriginalFilename string    `json:"original_filename"`
	SavedFilename    string    `json:"saved_filename"`
	FilePath         string    `json:"file_path"`
	FileSize         int64     `json:"file_size"`
	UploadedAt       time.Time `json:"uploaded_at"`
	Checksum         string    `json:"checksum,omitempty"`
}

// AIAnalysis holds the result payload. All three sections stay nil until an
// analysis has completed, which encodes as JSON nulls.
type AIAnalysis struct {
	LLMAnalysis     *LLMAnalysis     `json:"llm_analysis" yaml:"llm_analysis"`
	ShapleyValues   *ShapleyValues   `json:"shapley_values" yaml:"shapley_values"`
	FeatureAnalysis *FeatureAnalysis `json:"feature_analysis" yaml:"feature_analysis"`
}

// LLMAnalysis is the narrative part of the result
type LLMAnalysis struct {
	Diagnosis      string    `json:"diagnosis" yaml:"diagnosis"`
	Confidence     float64   `json:"confidence" yaml:"confidence"`
	KeyFindings    []string  `json:"key_findings" yaml:"key_findings"`
	Recommendation string    `json:"recommendation" yaml:"recommendation"`
	AnalysisTime   time.Time `json:"analysis_time" yaml:"-"`
}

// ShapleyValues carries signed contributions and the importance ranking
type ShapleyValues struct {
	Values     []Contribution `json:"values" yaml:"values"`
	Importance []Importance   `json:"importance" yaml:"importance"`
}

type Contribution struct {
	Feature  string  `json:"feature" yaml:"feature"`
	Value    float64 `json:"value" yaml:"value"`
	Positive bool    `json:"positive" yaml:"positive"`
}

type Importance struct {
	Feature string  `json:"feature" yaml:"feature"`
	Value   float64 `json:"value" yaml:"value"`
}

// FeatureAnalysis is the measurement table
type FeatureAnalysis struct {
	RadiomicFeatures []Measurement  `json:"radiomic_features" yaml:"radiomic_features"`
	Summary          FeatureSummary `json:"summary" yaml:"summary"`
}

type Measurement struct {
	Category string  `json:"category" yaml:"category"`
	Feature  string  `json:"feature" yaml:"feature"`
	Value    float64 `json:"value" yaml:"value"`
	Unit     string  `json:"unit" yaml:"unit"`
}

type FeatureSummary struct {
	TotalFeatures       int    `json:"total_features" yaml:"total_features"`
	SignificantFeatures int    `json:"significant_features" yaml:"significant_features"`
	AnalysisMethod      string `json:"analysis_method" yaml:"analysis_method"`
}

// Summary is the listing projection of a session
type Summary struct {
	SessionID string    `json:"session_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	FileCount int       `json:"file_count"`
}

// NewSession returns the initial document for a freshly allocated id
func NewSession(id string, now time.Time) *Session {
	return &Session{
		SessionID: id,
		CreatedAt: now,
		Status:    StatusCreated,
		Files:     make(map[string]FileRecord),
	}
}

// Advance moves the status forward; it never moves it back
func (s *Session) Advance(to Status) {
	if statusRank[to] > statusRank[s.Status] {
		s.Status = to
	}
}

// Touch refreshes updated_at
func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = &now
}

// GetSummary returns the listing projection
func (s *Session) GetSummary() Summary {
	return Summary{
		SessionID: s.SessionID,
		Status:    s.Status,
		CreatedAt: s.CreatedAt,
		FileCount: len(s.Files),
	}
}

// HasAnalysis reports whether an analysis payload has been attached
func (s *Session) HasAnalysis() bool {
	return s.AIAnalysis.LLMAnalysis != nil || s.AIAnalysis.ShapleyValues != nil || s.AIAnalysis.FeatureAnalysis != nil
}
