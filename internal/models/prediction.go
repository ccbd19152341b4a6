// internal/models/prediction.go
package models

// Model variants produced by the training pipeline.
const (
	VariantRandomForest       = "random_forest"
	VariantLogisticRegression = "logistic_regression"
)

// PredictionRecord is a scored application as stored for audit and search.
type PredictionRecord struct {
	ID             string          `json:"id"`
	Applicant      ApplicantRecord `json:"applicant"`
	Probability    float64         `json:"probability"`
	Interpretation string          `json:"interpretation"`
	ModelVariant   string          `json:"modelVariant"`
	SchemaVersion  string          `json:"schemaVersion"`
	Advice         []string        `json:"advice,omitempty"`
	CreatedAt      string          `json:"createdAt"`
}
