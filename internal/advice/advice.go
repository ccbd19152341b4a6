// internal/advice/advice.go
package advice

import (
	"fmt"

	"loan-eligibility/internal/models"
)

// Interpretation buckets, lowest first.
const (
	VeryUnlikely   = "Very Unlikely"
	Unlikely       = "Unlikely"
	SomewhatLikely = "Somewhat Likely"
	Likely         = "Likely"
	VeryLikely     = "Very Likely"
)

const (
	LowIncomeAdvice     = "Consider increasing your monthly income to improve eligibility."
	HighAmountAdvice    = "Consider requesting a lower loan amount to enhance approval chances."
	CreditHistoryAdvice = "Building a positive credit history can significantly boost your chances."
)

const (
	lowIncomeThreshold  = 3000
	highAmountThreshold = 200
)

type bucket struct {
	upper float64
	label string
	color string
}

// probability is compared with < against each upper bound in turn
var buckets = []bucket{
	{20, VeryUnlikely, "red"},
	{40, Unlikely, "orange"},
	{60, SomewhatLikely, "gold"},
	{80, Likely, "limegreen"},
}

// Interpret maps a probability in [0,100] to its bucket label and colour.
func Interpret(probability float64) (string, string) {
	for _, b := range buckets {
		if probability < b.upper {
			return b.label, b.color
		}
	}
	return VeryLikely, "green"
}

// Generate returns improvement suggestions for the applicant. A missing
// income or amount counts as zero.
func Generate(applicant models.ApplicantRecord) []string {
	a := applicant.Normalize()
	advice := []string{}

	if value(a.ApplicantIncome) < lowIncomeThreshold {
		advice = append(advice, LowIncomeAdvice)
	}
	if value(a.LoanAmount) > highAmountThreshold {
		advice = append(advice, HighAmountAdvice)
	}
	if a.CreditHistory == "0.0" {
		advice = append(advice, CreditHistoryAdvice)
	}
	return advice
}

func value(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// GaugeStep is one coloured band of the gauge axis.
type GaugeStep struct {
	From  float64 `json:"from"`
	To    float64 `json:"to"`
	Color string  `json:"color"`
}

// Gauge describes the probability dial a client renders.
type Gauge struct {
	Title string      `json:"title"`
	Value float64     `json:"value"`
	Color string      `json:"color"`
	Min   float64     `json:"min"`
	Max   float64     `json:"max"`
	Steps []GaugeStep `json:"steps"`
}

// NewGauge builds the dial for a probability. The pointer colour is the
// interpretation colour.
func NewGauge(probability float64) Gauge {
	interpretation, color := Interpret(probability)
	return Gauge{
		Color: color,
		Title: fmt.Sprintf("%s - Probability: %.2f%%", interpretation, probability),
		Value: probability,
		Min:   0,
		Max:   100,
		Steps: []GaugeStep{
			{From: 0, To: 20, Color: "#ff4d4d"},
			{From: 20, To: 40, Color: "#ffa64d"},
			{From: 40, To: 60, Color: "#ffff66"},
			{From: 60, To: 80, Color: "#b3ff66"},
			{From: 80, To: 100, Color: "#4dff88"},
		},
	}
}

// Assessment is everything shown to an applicant for one scored request.
type Assessment struct {
	Probability    float64  `json:"probability"`
	Interpretation string   `json:"interpretation"`
	Color          string   `json:"color"`
	Advice         []string `json:"advice"`
	Gauge          Gauge    `json:"gauge"`
}

// Assess combines interpretation, advice and gauge for a scored applicant.
func Assess(applicant models.ApplicantRecord, probability float64) Assessment {
	interpretation, color := Interpret(probability)
	return Assessment{
		Probability:    probability,
		Interpretation: interpretation,
		Color:          color,
		Advice:         Generate(applicant),
		Gauge:          NewGauge(probability),
	}
}
