// internal/workers/loan/generate-loan-advice/models.go
package generateloanadvice

import (
	"loan-eligibility/internal/advice"
	"loan-eligibility/internal/models"
)

type Input struct {
	Applicant   *models.ApplicantRecord `json:"applicant"`
	Probability *float64                `json:"probability"`
}

type Output struct {
	Interpretation string       `json:"interpretation"`
	Color          string       `json:"color"`
	Advice         []string     `json:"advice"`
	Gauge          advice.Gauge `json:"gauge"`
}
