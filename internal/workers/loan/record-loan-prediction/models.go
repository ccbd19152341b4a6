// internal/workers/loan/record-loan-prediction/models.go
package recordloanprediction

import "loan-eligibility/internal/models"

type Input struct {
	PredictionID   string                  `json:"predictionId,omitempty"`
	Applicant      *models.ApplicantRecord `json:"applicant"`
	Probability    *float64                `json:"probability"`
	Interpretation string                  `json:"interpretation"`
	ModelVariant   string                  `json:"modelVariant"`
	SchemaVersion  string                  `json:"schemaVersion"`
	Advice         []string                `json:"advice,omitempty"`
}

type Output struct {
	PredictionID string `json:"predictionId"`
	RecordedAt   string `json:"recordedAt"`
	Indexed      bool   `json:"indexed"`
}
