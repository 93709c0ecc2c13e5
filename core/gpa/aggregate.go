package gpa

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	percentagePlaces = 1
	gpaPlaces        = 2
)

// CoursePercentage is the input of the aggregator: one course's final percentage.
type CoursePercentage struct {
	Name        string  `json:"name"`
	Percentage  float64 `json:"percentage"`
	CreditHours float64 `json:"credit_hours"`
}

// CreditHoursOrDefault returns the course credit hours, 1.0 when unset.
func (c CoursePercentage) CreditHoursOrDefault() float64 {
	if c.CreditHours <= 0 || math.IsNaN(c.CreditHours) {
		return 1
	}
	return c.CreditHours
}

// Summary is derived per request and never persisted.
type Summary struct {
	AveragePercentage float64 `json:"average_percentage"`
	GPA               float64 `json:"gpa"`
}

// Aggregate returns the unweighted mean of the percentages and the mean of the per-course grade points.
// Each course is converted first, then averaged.
func Aggregate(courses []CoursePercentage) Summary {
	if len(courses) == 0 {
		return Summary{}
	}

	pctSum := decimal.Zero
	ptsSum := decimal.Zero
	for _, c := range courses {
		pts := GradePoint(c.Percentage) // panics on NaN
		pctSum = pctSum.Add(decimal.NewFromFloat(c.Percentage))
		ptsSum = ptsSum.Add(decimal.NewFromFloat(pts))
	}
	n := decimal.NewFromInt(int64(len(courses)))
	return newSummary(pctSum.Div(n), ptsSum.Div(n))
}

// AggregateWeighted weights every course by its credit hours.
// It is reported next to Aggregate, never in place of it.
func AggregateWeighted(courses []CoursePercentage) Summary {
	if len(courses) == 0 {
		return Summary{}
	}

	pctSum := decimal.Zero
	ptsSum := decimal.Zero
	hoursSum := decimal.Zero
	for _, c := range courses {
		pts := GradePoint(c.Percentage)
		hours := decimal.NewFromFloat(c.CreditHoursOrDefault())
		pctSum = pctSum.Add(decimal.NewFromFloat(c.Percentage).Mul(hours))
		ptsSum = ptsSum.Add(decimal.NewFromFloat(pts).Mul(hours))
		hoursSum = hoursSum.Add(hours)
	}
	return newSummary(pctSum.Div(hoursSum), ptsSum.Div(hoursSum))
}

func newSummary(avg, gpa decimal.Decimal) Summary {
	return Summary{
		AveragePercentage: avg.Round(percentagePlaces).InexactFloat64(),
		GPA:               gpa.Round(gpaPlaces).InexactFloat64(),
	}
}

// RoundPercentage rounds half away from zero to one decimal place.
func RoundPercentage(p float64) float64 {
	return decimal.NewFromFloat(p).Round(percentagePlaces).InexactFloat64()
}
