// Package gpa converts course percentages to four-point grades and aggregates them into a GPA summary.
package gpa

import "math"

// Band is one row of the grading scale: percentages >= Min map to Points.
type Band struct {
	Min    float64 `json:"min"`
	Points float64 `json:"points"`
	Letter string  `json:"letter"`
}

// ordered by descending Min; the first band whose Min is met wins.
var scale = []Band{
	{Min: 97, Points: 4.3, Letter: "A+"},
	{Min: 93, Points: 4.0, Letter: "A"},
	{Min: 90, Points: 3.7, Letter: "A-"},
	{Min: 87, Points: 3.3, Letter: "B+"},
	{Min: 83, Points: 3.0, Letter: "B"},
	{Min: 80, Points: 2.7, Letter: "B-"},
	{Min: 77, Points: 2.3, Letter: "C+"},
	{Min: 73, Points: 2.0, Letter: "C"},
	{Min: 70, Points: 1.7, Letter: "C-"},
	{Min: 67, Points: 1.3, Letter: "D+"},
	{Min: 63, Points: 1.0, Letter: "D"},
	{Min: 60, Points: 0.7, Letter: "D-"},
}

var failing = Band{Min: 0, Points: 0.0, Letter: "F"}

// Scale returns a copy of the grading scale, failing band last.
func Scale() []Band {
	bands := make([]Band, 0, len(scale)+1)
	bands = append(bands, scale...)
	return append(bands, failing)
}

// BandFor returns the band a percentage falls in.
// Every real maps to a band: values above 100 get the top band, negatives fail.
// NaN is a programming error and panics.
func BandFor(percentage float64) Band {
	if math.IsNaN(percentage) {
		panic("gpa: percentage is NaN")
	}
	for _, b := range scale {
		if percentage >= b.Min {
			return b
		}
	}
	return failing
}

// GradePoint converts a percentage to its four-point grade value.
func GradePoint(percentage float64) float64 {
	return BandFor(percentage).Points
}

// Letter converts a percentage to its letter grade.
func Letter(percentage float64) string {
	return BandFor(percentage).Letter
}
