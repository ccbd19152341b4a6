// internal/models/applicant_test.go
package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validApplicant() ApplicantRecord {
	return ApplicantRecord{
		Gender:            "Male",
		Married:           "Yes",
		Dependents:        "0",
		Education:         "Graduate",
		SelfEmployed:      "No",
		ApplicantIncome:   Float(5000),
		CoapplicantIncome: Float(1500),
		LoanAmount:        Float(128),
		LoanAmountTerm:    "360",
		CreditHistory:     "1.0",
		PropertyArea:      "Urban",
	}
}

func TestApplicantRecord_UnmarshalNumbersAndStrings(t *testing.T) {
	payload := `{
		"Gender": "Female", "Married": "No", "Dependents": 2, "Education": "Graduate",
		"Self_Employed": "No", "ApplicantIncome": 2500, "CoapplicantIncome": 0,
		"LoanAmount": 120, "Loan_Amount_Term": 360, "Credit_History": 1,
		"Property_Area": "Rural"
	}`

	var rec ApplicantRecord
	require.NoError(t, json.Unmarshal([]byte(payload), &rec))

	values := rec.Values()
	assert.Equal(t, "2", values[FieldDependents])
	assert.Equal(t, "360", values[FieldLoanAmountTerm])
	assert.Equal(t, "1.0", values[FieldCreditHistory])
	assert.Equal(t, "2500", values[FieldApplicantIncome])
	assert.Empty(t, rec.Validate())
}

func TestApplicantRecord_MissingNumericStaysMissing(t *testing.T) {
	var rec ApplicantRecord
	require.NoError(t, json.Unmarshal([]byte(`{"Gender":"Male","Credit_History":null}`), &rec))

	values := rec.Values()
	assert.Equal(t, "", values[FieldLoanAmount])
	assert.Equal(t, "", values[FieldCreditHistory])
}

func TestApplicantRecord_Validate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(r *ApplicantRecord)
		wantFields []string
	}{
		{
			name:   "valid record",
			mutate: func(r *ApplicantRecord) {},
		},
		{
			name:       "gender outside domain",
			mutate:     func(r *ApplicantRecord) { r.Gender = "Other" },
			wantFields: []string{FieldGender},
		},
		{
			name:       "unsupported loan term",
			mutate:     func(r *ApplicantRecord) { r.LoanAmountTerm = "300" },
			wantFields: []string{FieldLoanAmountTerm},
		},
		{
			name:       "negative income",
			mutate:     func(r *ApplicantRecord) { r.ApplicantIncome = Float(-1) },
			wantFields: []string{FieldApplicantIncome},
		},
		{
			name: "missing fields",
			mutate: func(r *ApplicantRecord) {
				r.Education = ""
				r.LoanAmount = nil
			},
			wantFields: []string{FieldEducation, FieldLoanAmount},
		},
		{
			name:   "numeric credit history is canonicalised",
			mutate: func(r *ApplicantRecord) { r.CreditHistory = "0" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validApplicant()
			tt.mutate(&rec)

			errs := rec.Validate()
			var fields []string
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.ElementsMatch(t, tt.wantFields, fields)
		})
	}
}

func TestCategoryDomains_Sorted(t *testing.T) {
	domains := CategoryDomains()

	assert.Len(t, domains, len(CategoricalFields))
	assert.Equal(t, []string{"0", "1", "2", "3+"}, domains[FieldDependents])
	assert.Equal(t, []string{"Female", "Male"}, domains[FieldGender])
	assert.Equal(t, []string{"Rural", "Semiurban", "Urban"}, domains[FieldPropertyArea])
	// AllowedValues keeps the form order.
	assert.Equal(t, "Male", AllowedValues[FieldGender][0])
}

func TestFeatureSchema(t *testing.T) {
	schema := NewFeatureSchema([]string{"a", "b", "c"})
	require.NoError(t, schema.Verify())
	assert.Empty(t, schema.Duplicates())

	reordered := NewFeatureSchema([]string{"b", "a", "c"})
	assert.NotEqual(t, schema.Version, reordered.Version)

	tampered := schema
	tampered.Features = []string{"a", "b"}
	assert.Error(t, tampered.Verify())

	dup := NewFeatureSchema([]string{"a", "b", "a", "a"})
	assert.Equal(t, []string{"a"}, dup.Duplicates())
}
