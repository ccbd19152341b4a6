// internal/models/applicant.go
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Raw applicant field names as they appear in the training CSV and the form.
const (
	FieldLoanID            = "Loan_ID"
	FieldGender            = "Gender"
	FieldMarried           = "Married"
	FieldDependents        = "Dependents"
	FieldEducation         = "Education"
	FieldSelfEmployed      = "Self_Employed"
	FieldApplicantIncome   = "ApplicantIncome"
	FieldCoapplicantIncome = "CoapplicantIncome"
	FieldLoanAmount        = "LoanAmount"
	FieldLoanAmountTerm    = "Loan_Amount_Term"
	FieldCreditHistory     = "Credit_History"
	FieldPropertyArea      = "Property_Area"
	FieldLoanApproved      = "Loan_Approved"
)

// ApplicantFields is the ordered list of raw fields an applicant submits.
var ApplicantFields = []string{
	FieldGender,
	FieldMarried,
	FieldDependents,
	FieldEducation,
	FieldSelfEmployed,
	FieldApplicantIncome,
	FieldCoapplicantIncome,
	FieldLoanAmount,
	FieldLoanAmountTerm,
	FieldCreditHistory,
	FieldPropertyArea,
}

// CategoricalFields are one-hot encoded, in this order.
var CategoricalFields = []string{
	FieldGender,
	FieldMarried,
	FieldDependents,
	FieldEducation,
	FieldSelfEmployed,
	FieldPropertyArea,
}

// NumericFields pass through encoding as numbers.
var NumericFields = []string{
	FieldApplicantIncome,
	FieldCoapplicantIncome,
	FieldLoanAmount,
	FieldLoanAmountTerm,
	FieldCreditHistory,
}

// AllowedValues holds the enumerated domain of every discrete applicant field.
var AllowedValues = map[string][]string{
	FieldGender:         {"Male", "Female"},
	FieldMarried:        {"Yes", "No"},
	FieldDependents:     {"0", "1", "2", "3+"},
	FieldEducation:      {"Graduate", "Not Graduate"},
	FieldSelfEmployed:   {"Yes", "No"},
	FieldLoanAmountTerm: {"360", "180", "120", "240"},
	FieldCreditHistory:  {"1.0", "0.0"},
	FieldPropertyArea:   {"Urban", "Semiurban", "Rural"},
}

// CategoryDomains returns the explicit one-hot domain of every categorical
// field, sorted the way indicator columns are emitted.
func CategoryDomains() map[string][]string {
	domains := make(map[string][]string, len(CategoricalFields))
	for _, field := range CategoricalFields {
		values := append([]string(nil), AllowedValues[field]...)
		sort.Strings(values)
		domains[field] = values
	}
	return domains
}

// FlexString accepts either a JSON string or a JSON number. Form clients send
// "360" and "1.0"; API clients tend to send 360 and 1.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = FlexString(n.String())
	return nil
}

// ApplicantRecord is one raw loan application as captured from the form.
// Numeric fields are pointers so a missing value stays distinguishable from 0.
type ApplicantRecord struct {
	Gender            string     `json:"Gender"`
	Married           string     `json:"Married"`
	Dependents        FlexString `json:"Dependents"`
	Education         string     `json:"Education"`
	SelfEmployed      string     `json:"Self_Employed"`
	ApplicantIncome   *float64   `json:"ApplicantIncome"`
	CoapplicantIncome *float64   `json:"CoapplicantIncome"`
	LoanAmount        *float64   `json:"LoanAmount"`
	LoanAmountTerm    FlexString `json:"Loan_Amount_Term"`
	CreditHistory     FlexString `json:"Credit_History"`
	PropertyArea      string     `json:"Property_Area"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Normalize returns a copy with whitespace trimmed and the numeric-looking
// discrete fields in their canonical spelling ("360", "1.0").
func (r ApplicantRecord) Normalize() ApplicantRecord {
	out := r
	out.Gender = strings.TrimSpace(r.Gender)
	out.Married = strings.TrimSpace(r.Married)
	out.Dependents = FlexString(strings.TrimSpace(string(r.Dependents)))
	out.Education = strings.TrimSpace(r.Education)
	out.SelfEmployed = strings.TrimSpace(r.SelfEmployed)
	out.PropertyArea = strings.TrimSpace(r.PropertyArea)
	out.LoanAmountTerm = FlexString(canonicalNumber(string(r.LoanAmountTerm), -1))
	out.CreditHistory = FlexString(canonicalNumber(string(r.CreditHistory), 1))
	return out
}

func canonicalNumber(raw string, precision int) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return raw
	}
	return strconv.FormatFloat(v, 'f', precision, 64)
}

// Values returns the record as raw field→string cells. Missing values are "".
func (r ApplicantRecord) Values() map[string]string {
	n := r.Normalize()
	return map[string]string{
		FieldGender:            n.Gender,
		FieldMarried:           n.Married,
		FieldDependents:        string(n.Dependents),
		FieldEducation:         n.Education,
		FieldSelfEmployed:      n.SelfEmployed,
		FieldApplicantIncome:   formatOptional(n.ApplicantIncome),
		FieldCoapplicantIncome: formatOptional(n.CoapplicantIncome),
		FieldLoanAmount:        formatOptional(n.LoanAmount),
		FieldLoanAmountTerm:    string(n.LoanAmountTerm),
		FieldCreditHistory:     string(n.CreditHistory),
		FieldPropertyArea:      n.PropertyArea,
	}
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// FieldError describes one rejected applicant field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Validate checks required fields, enumerated domains and non-negative
// numbers. An empty result means the record is acceptable.
func (r ApplicantRecord) Validate() []FieldError {
	var errs []FieldError
	values := r.Values()

	for _, field := range ApplicantFields {
		allowed, discrete := AllowedValues[field]
		value := values[field]
		if value == "" {
			errs = append(errs, FieldError{
				Field:   field,
				Code:    "MISSING_REQUIRED",
				Message: fmt.Sprintf("%s is required", field),
			})
			continue
		}
		if discrete {
			if !contains(allowed, value) {
				errs = append(errs, FieldError{
					Field:   field,
					Code:    "INVALID_VALUE",
					Message: fmt.Sprintf("%s must be one of [%s]", field, strings.Join(allowed, ", ")),
				})
			}
			continue
		}
	}

	numeric := map[string]*float64{
		FieldApplicantIncome:   r.ApplicantIncome,
		FieldCoapplicantIncome: r.CoapplicantIncome,
		FieldLoanAmount:        r.LoanAmount,
	}
	for _, field := range []string{FieldApplicantIncome, FieldCoapplicantIncome, FieldLoanAmount} {
		v := numeric[field]
		if v == nil {
			continue
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
			errs = append(errs, FieldError{
				Field:   field,
				Code:    "OUT_OF_RANGE",
				Message: fmt.Sprintf("%s must be a non-negative number", field),
			})
		}
	}

	return errs
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
