// internal/workers/loan/predict-loan-eligibility/models.go
package predictloaneligibility

import "loan-eligibility/internal/models"

type Input struct {
	Applicant    *models.ApplicantRecord `json:"applicant"`
	ModelVariant string                  `json:"modelVariant,omitempty"`
}

type Output struct {
	Probability    float64 `json:"probability"`
	Interpretation string  `json:"interpretation"`
	Color          string  `json:"color"`
	SchemaVersion  string  `json:"schemaVersion"`
	ModelVariant   string  `json:"modelVariant"`
	Cached         bool    `json:"cached"`
}
