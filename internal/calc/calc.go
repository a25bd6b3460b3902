// Package calc implements the compound interest engine. Calculations
// are pure: money amounts are carried as float64 through the formulas
// and rounded half-up to whole cents only at the result boundary.
package calc

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/zinses-rechner/calcsync/internal/domain"
)

var validate = validator.New()

// Validate checks a calculation request against the published limits.
func Validate(req domain.CalculationRequest) error {
	return validate.Struct(req)
}

// Limits describes the accepted input ranges, published so clients can
// validate before submitting.
type Limits struct {
	MaxPrincipal         int       `json:"max_principal"`
	MinPrincipal         int       `json:"min_principal"`
	MaxMonthlyPayment    int       `json:"max_monthly_payment"`
	MinMonthlyPayment    int       `json:"min_monthly_payment"`
	MaxAnnualRate        float64   `json:"max_annual_rate"`
	MinAnnualRate        float64   `json:"min_annual_rate"`
	MaxYears             int       `json:"max_years"`
	MinYears             int       `json:"min_years"`
	SupportedFrequencies []string  `json:"supported_frequencies"`
	Currency             string    `json:"currency"`
	Locale               string    `json:"locale"`
	Precision            int       `json:"precision"`
	LastUpdated          time.Time `json:"last_updated"`
}

// DefaultLimits returns the published calculation limits. They mirror
// the validate tags on domain.CalculationRequest.
func DefaultLimits() Limits {
	return Limits{
		MaxPrincipal:      10_000_000,
		MinPrincipal:      1,
		MaxMonthlyPayment: 50_000,
		MinMonthlyPayment: 0,
		MaxAnnualRate:     20.0,
		MinAnnualRate:     0.01,
		MaxYears:          50,
		MinYears:          1,
		SupportedFrequencies: []string{
			string(domain.CompoundMonthly),
			string(domain.CompoundQuarterly),
			string(domain.CompoundYearly),
		},
		Currency:  "EUR",
		Locale:    "de_DE",
		Precision: 2,
	}
}

// Calculate runs the compound interest projection for the request. The
// result's CalculationTime is left zero; callers stamp it.
func Calculate(req domain.CalculationRequest) domain.CalculationResult {
	rate := req.AnnualRate / 100
	periods := req.CompoundFrequency.PeriodsPerYear()

	var finalAmount, totalContributions float64
	if req.MonthlyPayment == 0 {
		finalAmount = compound(req.Principal, rate, periods, req.Years)
		totalContributions = req.Principal
	} else {
		finalAmount, totalContributions = compoundWithPayments(
			req.Principal, req.MonthlyPayment, rate, periods, req.Years)
	}

	return domain.CalculationResult{
		FinalAmount:        roundCents(finalAmount),
		TotalContributions: roundCents(totalContributions),
		TotalInterest:      roundCents(finalAmount - totalContributions),
		AnnualReturn:       round2(annualReturn(totalContributions, finalAmount, req.Years)),
		YearlyBreakdown:    yearlyBreakdown(req.Principal, req.MonthlyPayment, rate, req.Years),
	}
}

// compound applies A = P(1 + r/n)^(nt).
func compound(principal, rate float64, periodsPerYear, years int) float64 {
	if rate == 0 {
		return principal
	}
	periodRate := rate / float64(periodsPerYear)
	totalPeriods := float64(periodsPerYear * years)
	return principal * math.Pow(1+periodRate, totalPeriods)
}

// compoundWithPayments compounds the principal and adds the annuity
// future value of the monthly payments, PMT((1+r)^n - 1)/r at the
// monthly rate.
func compoundWithPayments(principal, monthlyPayment, rate float64, periodsPerYear, years int) (finalAmount, totalContributions float64) {
	totalContributions = principal + monthlyPayment*12*float64(years)
	if rate == 0 {
		return totalContributions, totalContributions
	}

	principalFinal := compound(principal, rate, periodsPerYear, years)

	monthlyRate := rate / 12
	totalMonths := float64(years * 12)
	paymentsFinal := monthlyPayment * ((math.Pow(1+monthlyRate, totalMonths) - 1) / monthlyRate)

	return principalFinal + paymentsFinal, totalContributions
}

// annualReturn computes the compound annual growth rate as a percent.
func annualReturn(totalContributions, finalAmount float64, years int) float64 {
	if totalContributions <= 0 || years <= 0 {
		return 0
	}
	cagr := math.Pow(finalAmount/totalContributions, 1/float64(years)) - 1
	return cagr * 100
}

// yearlyBreakdown projects year-by-year rows using the year-average
// approximation: monthly payments count as if invested mid-year at the
// plain annual rate. The unrounded end amount carries into the next
// year; rounding happens per row only.
func yearlyBreakdown(principal, monthlyPayment, rate float64, years int) []domain.YearlyBreakdown {
	rows := make([]domain.YearlyBreakdown, 0, years)
	current := principal

	for year := 1; year <= years; year++ {
		start := current
		contributions := monthlyPayment * 12

		var interest float64
		if rate != 0 {
			interest = (start + contributions/2) * rate
		}
		end := start + contributions + interest

		var growthRate float64
		if start > 0 {
			growthRate = interest / start * 100
		}

		rows = append(rows, domain.YearlyBreakdown{
			Year:          year,
			StartAmount:   roundCents(start),
			Contributions: roundCents(contributions),
			Interest:      roundCents(interest),
			EndAmount:     roundCents(end),
			GrowthRate:    round2(growthRate),
		})
		current = end
	}
	return rows
}

// roundCents rounds a money amount half-up to whole cents.
func roundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// round2 rounds a percentage to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
