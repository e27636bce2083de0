package domain

// AnalysisResult is what the frame analyzer returns for one capture.
type AnalysisResult struct {
	OK           bool          `json:"ok"`
	Embeddings   [][]float64   `json:"embeddings"`
	EmbeddingDim int           `json:"embeddingDim"`
	Liveness     LivenessCheck `json:"liveness"`
	Spoof        SpoofCheck    `json:"spoof"`
	Quality      QualityReport `json:"quality"`
}

type LivenessCheck struct {
	Passed  bool            `json:"passed"`
	Actions map[string]bool `json:"actions"`
}

type SpoofCheck struct {
	Suspicious     bool    `json:"suspicious"`
	Reason         *string `json:"reason"`
	StabilityScore float64 `json:"stabilityScore"`
	Variance       float64 `json:"variance"`
}

type QualityReport struct {
	FacesDetected int     `json:"facesDetected"`
	AvgConfidence float64 `json:"avgConfidence"`
	MinConfidence float64 `json:"minConfidence"`
}

// SpoofReason returns the analyzer's reason or a generic one.
func (s SpoofCheck) SpoofReason() string {
	if s.Reason != nil && *s.Reason != "" {
		return *s.Reason
	}
	return "Spoof suspected"
}

// Metadata flattens the analysis into the map stored on recognition events.
func (a *AnalysisResult) Metadata() map[string]any {
	if a == nil {
		return map[string]any{}
	}
	return map[string]any{
		"liveness": map[string]any{
			"passed":  a.Liveness.Passed,
			"actions": a.Liveness.Actions,
		},
		"spoof": map[string]any{
			"suspicious":     a.Spoof.Suspicious,
			"reason":         a.Spoof.Reason,
			"stabilityScore": a.Spoof.StabilityScore,
			"variance":       a.Spoof.Variance,
		},
		"quality": map[string]any{
			"facesDetected": a.Quality.FacesDetected,
			"avgConfidence": a.Quality.AvgConfidence,
			"minConfidence": a.Quality.MinConfidence,
		},
	}
}
