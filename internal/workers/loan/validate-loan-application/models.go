// internal/workers/loan/validate-loan-application/models.go
package validateloanapplication

import (
	"encoding/json"

	"loan-eligibility/internal/common/validation"
	"loan-eligibility/internal/models"
)

type Input struct {
	Applicant json.RawMessage `json:"applicant"`
}

type Output struct {
	IsValid          bool                         `json:"isValid"`
	ValidationErrors []validation.ValidationError `json:"validationErrors"`
	Applicant        *models.ApplicantRecord      `json:"applicant,omitempty"`
}
