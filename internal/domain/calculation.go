package domain

import "time"

// TaskTypeCompoundInterest is the task type for compound interest
// calculations, the only calculation the remote service currently offers.
const TaskTypeCompoundInterest = "compound_interest"

// CompoundFrequency is how often interest is compounded within a year.
type CompoundFrequency string

// Supported compounding frequencies.
const (
	CompoundMonthly   CompoundFrequency = "monthly"
	CompoundQuarterly CompoundFrequency = "quarterly"
	CompoundYearly    CompoundFrequency = "yearly"
)

// PeriodsPerYear returns the number of compounding periods in a year.
// Unknown frequencies compound monthly.
func (f CompoundFrequency) PeriodsPerYear() int {
	switch f {
	case CompoundQuarterly:
		return 4
	case CompoundYearly:
		return 1
	default:
		return 12
	}
}

// CalculationRequest is the payload of a compound interest task. Amounts
// are in euros. The validate tags mirror the limits the service
// advertises; requests outside them are rejected before any math runs.
type CalculationRequest struct {
	Principal         float64           `json:"principal" validate:"required,gt=0,lte=10000000"`
	MonthlyPayment    float64           `json:"monthly_payment" validate:"gte=0,lte=50000"`
	AnnualRate        float64           `json:"annual_rate" validate:"required,gt=0,lte=20"`
	Years             int               `json:"years" validate:"required,gte=1,lte=50"`
	CompoundFrequency CompoundFrequency `json:"compound_frequency,omitempty" validate:"omitempty,oneof=monthly quarterly yearly"`
}

// YearlyBreakdown is one row of the per-year projection in a
// calculation result.
type YearlyBreakdown struct {
	Year          int     `json:"year"`
	StartAmount   float64 `json:"start_amount"`
	Contributions float64 `json:"contributions"`
	Interest      float64 `json:"interest"`
	EndAmount     float64 `json:"end_amount"`
	GrowthRate    float64 `json:"growth_rate"`
}

// CalculationResult is the outcome of a compound interest calculation.
// All amounts are rounded to cents; AnnualReturn is a percentage.
type CalculationResult struct {
	FinalAmount        float64           `json:"final_amount"`
	TotalContributions float64           `json:"total_contributions"`
	TotalInterest      float64           `json:"total_interest"`
	AnnualReturn       float64           `json:"annual_return"`
	YearlyBreakdown    []YearlyBreakdown `json:"yearly_breakdown"`
	CalculationTime    time.Time         `json:"calculation_time"`
}
