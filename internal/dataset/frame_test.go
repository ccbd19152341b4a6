// internal/dataset/frame_test.go
package dataset

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `Loan_ID,Gender,LoanAmount,Loan_Approved
LP001,Male,,Y
LP002,Female,128,N
`

func TestReadCSV(t *testing.T) {
	f, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"Loan_ID", "Gender", "LoanAmount", "Loan_Approved"}, f.Columns)
	assert.Equal(t, []string{"row-0", "row-1"}, f.Keys)
	assert.Equal(t, 2, f.Len())

	amounts, err := f.Column("LoanAmount")
	require.NoError(t, err)
	assert.True(t, IsMissing(amounts[0]))
	assert.Equal(t, "128", amounts[1])

	_, err = f.Column("Unknown")
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestFrame_ConcatAlignsColumns(t *testing.T) {
	a := NewFrame([]string{"Gender", "Married"})
	a.Append("applicant", map[string]string{"Gender": "Male", "Married": "Yes"})

	b := NewFrame([]string{"Married", "Education"})
	b.Append("ref-0", map[string]string{"Married": "No", "Education": "Graduate"})

	out := a.Concat(b)

	assert.Equal(t, []string{"Gender", "Married", "Education"}, out.Columns)
	assert.Equal(t, []string{"applicant", "ref-0"}, out.Keys)
	assert.Equal(t, []string{"Male", "Yes", ""}, out.Rows[0])
	assert.Equal(t, []string{"", "No", "Graduate"}, out.Rows[1])

	// the inputs are untouched
	assert.Len(t, a.Columns, 2)
	assert.Len(t, a.Rows[0], 2)
}

func TestMatrix_RoundTripAndSplit(t *testing.T) {
	m := &Matrix{
		Columns: []string{"ApplicantIncome", "Loan_Approved", "Gender_Male"},
		Keys:    []string{"row-0", "row-1"},
		Rows: [][]float64{
			{5000, 1, 1},
			{math.NaN(), 0, 0},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, m.WriteCSV(&buf))
	assert.Equal(t, "ApplicantIncome,Loan_Approved,Gender_Male\n5000,1,1\n,0,0\n", buf.String())

	path := filepath.Join(t.TempDir(), "nested", "processed.csv")
	require.NoError(t, m.SaveCSV(path))

	loaded, err := LoadMatrix(path)
	require.NoError(t, err)
	assert.Equal(t, m.Columns, loaded.Columns)
	assert.True(t, math.IsNaN(loaded.Rows[1][0]))

	features, target, err := loaded.Split("Loan_Approved")
	require.NoError(t, err)
	assert.Equal(t, []string{"ApplicantIncome", "Gender_Male"}, features.Columns)
	assert.Equal(t, []float64{1, 0}, target)
	assert.Equal(t, []float64{5000, 1}, features.Rows[0])

	row, ok := features.RowByKey("row-0")
	require.True(t, ok)
	assert.Equal(t, 5000.0, row[0])
}

func TestParseMatrix_RejectsText(t *testing.T) {
	f := NewFrame([]string{"a"})
	f.Append("row-0", map[string]string{"a": "abc"})

	_, err := ParseMatrix(f)
	assert.Error(t, err)
}
