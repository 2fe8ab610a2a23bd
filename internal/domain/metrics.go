package domain

import (
	"time"
)

// ModelPerformanceMetrics tracks prediction quality per model version.
// Updated only by the feedback step, read by reporting.
type ModelPerformanceMetrics struct {
	ModelVersion   string    `json:"modelVersion"`
	Predictions    int64     `json:"predictions"`
	Correct        int64     `json:"correct"`
	TruePositives  int64     `json:"truePositives"`
	TrueNegatives  int64     `json:"trueNegatives"`
	FalsePositives int64     `json:"falsePositives"`
	FalseNegatives int64     `json:"falseNegatives"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Accuracy is the fraction of predictions whose verdict matched the outcome.
func (m *ModelPerformanceMetrics) Accuracy() float64 {
	if m.Predictions == 0 {
		return 0
	}
	return float64(m.Correct) / float64(m.Predictions)
}

// Precision is TP / (TP + FP).
func (m *ModelPerformanceMetrics) Precision() float64 {
	denom := m.TruePositives + m.FalsePositives
	if denom == 0 {
		return 0
	}
	return float64(m.TruePositives) / float64(denom)
}

// Recall is TP / (TP + FN).
func (m *ModelPerformanceMetrics) Recall() float64 {
	denom := m.TruePositives + m.FalseNegatives
	if denom == 0 {
		return 0
	}
	return float64(m.TruePositives) / float64(denom)
}

// F1 is the harmonic mean of precision and recall.
func (m *ModelPerformanceMetrics) F1() float64 {
	p := m.Precision()
	r := m.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}
