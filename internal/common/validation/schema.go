// internal/common/validation/schema.go
package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"loan-eligibility/internal/models"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// SchemaValidator validates documents against one compiled JSON schema.
// It is safe for concurrent use.
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

// NewSchemaValidator compiles a JSON schema given as a decoded map, the way
// activity registry schemas are stored.
func NewSchemaValidator(schema map[string]interface{}) (*SchemaValidator, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("empty schema")
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &SchemaValidator{schema: compiled}, nil
}

// Validate checks a Go value (struct, map or decoded JSON) against the schema.
func (v *SchemaValidator) Validate(document interface{}) *ValidationResult {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "(root)",
				Message: err.Error(),
				Code:    "INVALID_DOCUMENT",
			}},
		}
	}

	errs := make([]ValidationError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, fromResultError(desc))
	}
	return &ValidationResult{Valid: result.Valid(), Errors: errs}
}

func fromResultError(desc gojsonschema.ResultError) ValidationError {
	field := desc.Field()
	if desc.Type() == "required" {
		if property, ok := desc.Details()["property"].(string); ok {
			if field == "(root)" {
				field = property
			} else {
				field = field + "." + property
			}
		}
	}
	return ValidationError{
		Field:   field,
		Message: desc.Description(),
		Code:    errorCode(desc.Type()),
	}
}

func errorCode(kind string) string {
	switch kind {
	case "required":
		return "REQUIRED_FIELD_MISSING"
	case "enum":
		return "INVALID_ENUM_VALUE"
	case "invalid_type":
		return "INVALID_TYPE"
	case "number_gte", "number_gt":
		return "MINIMUM_VIOLATION"
	case "number_lte", "number_lt":
		return "MAXIMUM_VIOLATION"
	case "additional_property_not_allowed":
		return "EXTRA_FIELD"
	case "string_gte":
		return "MIN_LENGTH_VIOLATION"
	case "pattern":
		return "PATTERN_MISMATCH"
	}
	return strings.ToUpper(kind)
}

// ApplicantSchema returns the JSON schema of a raw loan application. Discrete
// fields that clients may send as numbers accept both spellings; their domain
// is checked by ValidateApplicant after normalisation.
func ApplicantSchema() map[string]interface{} {
	properties := map[string]interface{}{}
	for _, field := range models.ApplicantFields {
		switch field {
		case models.FieldApplicantIncome, models.FieldCoapplicantIncome, models.FieldLoanAmount:
			properties[field] = map[string]interface{}{"type": "number", "minimum": 0}
		case models.FieldDependents, models.FieldLoanAmountTerm, models.FieldCreditHistory:
			properties[field] = map[string]interface{}{"type": []interface{}{"string", "number"}}
		default:
			enum := make([]interface{}, 0, len(models.AllowedValues[field]))
			for _, v := range models.AllowedValues[field] {
				enum = append(enum, v)
			}
			properties[field] = map[string]interface{}{"type": "string", "enum": enum}
		}
	}

	required := make([]interface{}, 0, len(models.ApplicantFields))
	for _, field := range models.ApplicantFields {
		required = append(required, field)
	}

	return map[string]interface{}{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// ValidateApplicant applies the domain rules: required fields, enumerated
// values after normalisation and non-negative amounts.
func ValidateApplicant(applicant models.ApplicantRecord) *ValidationResult {
	fieldErrors := applicant.Validate()
	errs := make([]ValidationError, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		errs = append(errs, ValidationError{Field: fe.Field, Message: fe.Message, Code: fe.Code})
	}
	return &ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// ValidateApplicantDocument validates a raw JSON applicant against schema
// and, when it is well formed, decodes it and applies the domain rules.
func ValidateApplicantDocument(raw json.RawMessage, schema *SchemaValidator) (*models.ApplicantRecord, *ValidationResult) {
	var document interface{}
	if err := json.Unmarshal(raw, &document); err != nil {
		return nil, invalid("(root)", "INVALID_JSON", err.Error())
	}
	if schema != nil {
		if result := schema.Validate(document); !result.Valid {
			return nil, result
		}
	}

	var applicant models.ApplicantRecord
	if err := json.Unmarshal(raw, &applicant); err != nil {
		return nil, invalid("(root)", "INVALID_TYPE", err.Error())
	}
	result := ValidateApplicant(applicant)
	if !result.Valid {
		return nil, result
	}
	normalized := applicant.Normalize()
	return &normalized, result
}

func invalid(field, code, message string) *ValidationResult {
	return &ValidationResult{
		Valid:  false,
		Errors: []ValidationError{{Field: field, Message: message, Code: code}},
	}
}

// ValidateActivityNaming validates activity ID follows naming convention
func ValidateActivityNaming(activityId string) error {
	namingPattern := regexp.MustCompile(`^[a-z]+\.[a-z]+\.[a-z]+$`)
	if !namingPattern.MatchString(activityId) {
		return fmt.Errorf("activity ID must follow format: domain.subdomain.action (e.g., loan.application.validate)")
	}
	return nil
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// GetErrorsForField returns errors for a specific field
func (vr *ValidationResult) GetErrorsForField(field string) []ValidationError {
	var fieldErrors []ValidationError
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") || strings.HasPrefix(err.Field, field+"[") {
			fieldErrors = append(fieldErrors, err)
		}
	}
	return fieldErrors
}
