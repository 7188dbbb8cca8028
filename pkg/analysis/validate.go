package analysis

import (
	"fmt"

	"github.com/Azure/btumor-intake/pkg/session"
)

// ValidatePayload checks the shape contract of a result payload
func ValidatePayload(p session.AIAnalysis) error {
	if p.LLMAnalysis == nil || p.ShapleyValues == nil || p.FeatureAnalysis == nil {
		return fmt.Errorf("llm_analysis, shapley_values and feature_analysis are all required")
	}

	llm := p.LLMAnalysis
	if llm.Diagnosis == "" {
		return fmt.Errorf("diagnosis is required")
	}
	if llm.Confidence < 0 || llm.Confidence > 100 {
		return fmt.Errorf("confidence %v outside [0, 100]", llm.Confidence)
	}

	for _, c := range p.ShapleyValues.Values {
		if c.Positive != (c.Value >= 0) {
			return fmt.Errorf("contribution %q: positive flag does not match value %v", c.Feature, c.Value)
		}
	}
	for _, imp := range p.ShapleyValues.Importance {
		if imp.Value < 0 {
			return fmt.Errorf("importance %q is negative", imp.Feature)
		}
	}

	fa := p.FeatureAnalysis
	if fa.Summary.TotalFeatures != len(fa.RadiomicFeatures) {
		return fmt.Errorf("total_features is %d but %d measurements are listed", fa.Summary.TotalFeatures, len(fa.RadiomicFeatures))
	}
	if fa.Summary.SignificantFeatures < 0 || fa.Summary.SignificantFeatures > fa.Summary.TotalFeatures {
		return fmt.Errorf("significant_features %d outside [0, %d]", fa.Summary.SignificantFeatures, fa.Summary.TotalFeatures)
	}
	return nil
}
