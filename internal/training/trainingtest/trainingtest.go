// Package trainingtest writes synthetic raw loan tables for tests that need
// to train a real bundle.
package trainingtest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteRawCSV writes a synthetic loan table where approval follows credit
// history, with a few missing cells for the fill policy to handle.
func WriteRawCSV(t testing.TB, rows int) string {
	t.Helper()

	genders := []string{"Male", "Female"}
	married := []string{"Yes", "No"}
	dependents := []string{"0", "1", "2", "3+"}
	education := []string{"Graduate", "Not Graduate"}
	areas := []string{"Urban", "Semiurban", "Rural"}
	terms := []string{"360", "180", "120", "240"}

	var b strings.Builder
	b.WriteString("Loan_ID,Gender,Married,Dependents,Education,Self_Employed,ApplicantIncome,CoapplicantIncome,LoanAmount,Loan_Amount_Term,Credit_History,Property_Area,Loan_Approved\n")
	for i := 0; i < rows; i++ {
		credit := "1.0"
		status := "Y"
		if i%3 == 0 {
			credit = "0.0"
			status = "N"
		}
		gender := genders[i%2]
		amount := fmt.Sprint(100 + (i*7)%200)
		if i == 5 {
			gender = ""
			amount = ""
		}
		selfEmployed := married[(i/2)%2]
		fmt.Fprintf(&b, "LP%04d,%s,%s,%s,%s,%s,%d,%d,%s,%s,%s,%s,%s\n",
			i, gender, married[(i/3)%2], dependents[i%4], education[(i/5)%2], selfEmployed,
			2000+(i*313)%6000, (i*97)%2500, amount, terms[i%4], credit, areas[(i/2)%3], status)
	}

	path := filepath.Join(t.TempDir(), "loan_data.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}
