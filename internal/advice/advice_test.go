package advice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-eligibility/internal/models"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		probability float64
		wantLabel   string
		wantColor   string
	}{
		{0, VeryUnlikely, "red"},
		{19.999, VeryUnlikely, "red"},
		{20, Unlikely, "orange"},
		{39.99, Unlikely, "orange"},
		{40, SomewhatLikely, "gold"},
		{59.5, SomewhatLikely, "gold"},
		{60, Likely, "limegreen"},
		{79.999, Likely, "limegreen"},
		{80.0, VeryLikely, "green"},
		{100, VeryLikely, "green"},
	}

	for _, tt := range tests {
		label, color := Interpret(tt.probability)
		assert.Equal(t, tt.wantLabel, label, "probability %v", tt.probability)
		assert.Equal(t, tt.wantColor, color, "probability %v", tt.probability)
	}
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name      string
		applicant models.ApplicantRecord
		want      []string
	}{
		{
			name: "low income, large loan, bad credit",
			applicant: models.ApplicantRecord{
				ApplicantIncome: models.Float(2500),
				LoanAmount:      models.Float(250),
				CreditHistory:   "0.0",
			},
			want: []string{LowIncomeAdvice, HighAmountAdvice, CreditHistoryAdvice},
		},
		{
			name: "solid applicant",
			applicant: models.ApplicantRecord{
				ApplicantIncome: models.Float(5000),
				LoanAmount:      models.Float(150),
				CreditHistory:   "1.0",
			},
			want: []string{},
		},
		{
			name: "boundaries are exclusive",
			applicant: models.ApplicantRecord{
				ApplicantIncome: models.Float(3000),
				LoanAmount:      models.Float(200),
				CreditHistory:   "1.0",
			},
			want: []string{},
		},
		{
			name: "numeric zero credit history",
			applicant: models.ApplicantRecord{
				ApplicantIncome: models.Float(8000),
				LoanAmount:      models.Float(100),
				CreditHistory:   "0",
			},
			want: []string{CreditHistoryAdvice},
		},
		{
			name:      "missing income counts as zero",
			applicant: models.ApplicantRecord{CreditHistory: "1.0"},
			want:      []string{LowIncomeAdvice},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Generate(tt.applicant))
		})
	}
}

func TestNewGauge(t *testing.T) {
	g := NewGauge(72.456)

	assert.Equal(t, "Likely - Probability: 72.46%", g.Title)
	assert.Equal(t, "limegreen", g.Color)
	assert.Equal(t, 72.456, g.Value)
	require.Len(t, g.Steps, 5)
	assert.Equal(t, GaugeStep{From: 80, To: 100, Color: "#4dff88"}, g.Steps[4])
	for i := 1; i < len(g.Steps); i++ {
		assert.Equal(t, g.Steps[i-1].To, g.Steps[i].From)
	}
}

func TestAssess(t *testing.T) {
	a := models.ApplicantRecord{ApplicantIncome: models.Float(2000), LoanAmount: models.Float(100), CreditHistory: "1.0"}

	got := Assess(a, 85)
	assert.Equal(t, VeryLikely, got.Interpretation)
	assert.Equal(t, "green", got.Color)
	assert.Equal(t, []string{LowIncomeAdvice}, got.Advice)
	assert.Equal(t, 85.0, got.Gauge.Value)
}
