package gpa

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradePoint(t *testing.T) {
	tests := []struct {
		name       string
		percentage float64
		want       float64
		wantLetter string
	}{
		{name: "perfect", percentage: 100, want: 4.3, wantLetter: "A+"},
		{name: "above 100", percentage: 105, want: 4.3, wantLetter: "A+"},
		{name: "A+ lower bound", percentage: 97, want: 4.3, wantLetter: "A+"},
		{name: "just below A+", percentage: 96.99, want: 4.0, wantLetter: "A"},
		{name: "A lower bound", percentage: 93, want: 4.0, wantLetter: "A"},
		{name: "A-", percentage: 90, want: 3.7, wantLetter: "A-"},
		{name: "B+", percentage: 89.5, want: 3.3, wantLetter: "B+"},
		{name: "B", percentage: 83, want: 3.0, wantLetter: "B"},
		{name: "B-", percentage: 80.6, want: 2.7, wantLetter: "B-"},
		{name: "C+", percentage: 77.6, want: 2.3, wantLetter: "C+"},
		{name: "C", percentage: 76, want: 2.0, wantLetter: "C"},
		{name: "C-", percentage: 70, want: 1.7, wantLetter: "C-"},
		{name: "D+", percentage: 67, want: 1.3, wantLetter: "D+"},
		{name: "D", percentage: 63, want: 1.0, wantLetter: "D"},
		{name: "D-", percentage: 60, want: 0.7, wantLetter: "D-"},
		{name: "just below D-", percentage: 59.9, want: 0.0, wantLetter: "F"},
		{name: "zero", percentage: 0, want: 0.0, wantLetter: "F"},
		{name: "negative", percentage: -5, want: 0.0, wantLetter: "F"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GradePoint(tt.percentage))
			assert.Equal(t, tt.wantLetter, Letter(tt.percentage))
		})
	}
}

func TestGradePoint_monotonic(t *testing.T) {
	prev := GradePoint(-10)
	for p := -10.0; p <= 110; p += 0.01 {
		got := GradePoint(p)
		if got < prev {
			t.Fatalf("GradePoint(%v) = %v < %v", p, got, prev)
		}
		prev = got
	}
}

func TestGradePoint_NaN(t *testing.T) {
	assert.Panics(t, func() { GradePoint(math.NaN()) })
	assert.Panics(t, func() { Aggregate([]CoursePercentage{{Name: "Math", Percentage: math.NaN()}}) })
}

func TestScale(t *testing.T) {
	bands := Scale()
	require.Len(t, bands, 13)
	assert.Equal(t, Band{Min: 97, Points: 4.3, Letter: "A+"}, bands[0])
	assert.Equal(t, "F", bands[len(bands)-1].Letter)

	// callers cannot alter the table
	bands[0].Points = 5
	assert.Equal(t, 4.3, GradePoint(99))
}

var eightCourses = []CoursePercentage{
	{Name: "Algebra II", Percentage: 77.6},
	{Name: "Biology", Percentage: 83.1},
	{Name: "English 10", Percentage: 78.4},
	{Name: "World History", Percentage: 78.7},
	{Name: "Spanish II", Percentage: 76.0},
	{Name: "Physical Education", Percentage: 81.3},
	{Name: "Art", Percentage: 84.5},
	{Name: "Computer Science", Percentage: 80.6},
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name    string
		courses []CoursePercentage
		want    Summary
	}{
		{name: "nil", courses: nil, want: Summary{}},
		{name: "empty", courses: []CoursePercentage{}, want: Summary{}},
		{name: "single", courses: []CoursePercentage{{Name: "Math", Percentage: 93.25}}, want: Summary{AveragePercentage: 93.3, GPA: 4.0}},
		{
			name:    "out of range absorbed",
			courses: []CoursePercentage{{Name: "A", Percentage: 120}, {Name: "B", Percentage: -20}},
			want:    Summary{AveragePercentage: 50, GPA: 2.15},
		},
		// converting each course first: 20.3 / 8 points, not the GPA of the 80.025 average
		{name: "eight courses", courses: eightCourses, want: Summary{AveragePercentage: 80.0, GPA: 2.54}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate(tt.courses)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Aggregate(tt.courses), "not idempotent")
		})
	}
}

func TestAggregate_ignoresCreditHours(t *testing.T) {
	courses := []CoursePercentage{
		{Name: "Lab", Percentage: 100, CreditHours: 4},
		{Name: "Seminar", Percentage: 60, CreditHours: 1},
	}
	assert.Equal(t, Summary{AveragePercentage: 80, GPA: 2.5}, Aggregate(courses))
}

func TestAggregateWeighted(t *testing.T) {
	tests := []struct {
		name    string
		courses []CoursePercentage
		want    Summary
	}{
		{name: "empty", want: Summary{}},
		{
			name:    "default hours equal unweighted",
			courses: eightCourses,
			want:    Aggregate(eightCourses),
		},
		{
			name: "weighted",
			courses: []CoursePercentage{
				{Name: "Lab", Percentage: 100, CreditHours: 4},
				{Name: "Seminar", Percentage: 60, CreditHours: 1},
			},
			// (400 + 60) / 5 = 92; (17.2 + 0.7) / 5 = 3.58
			want: Summary{AveragePercentage: 92, GPA: 3.58},
		},
		{
			name: "non positive hours default to 1",
			courses: []CoursePercentage{
				{Name: "A", Percentage: 90, CreditHours: 0},
				{Name: "B", Percentage: 70, CreditHours: -3},
			},
			want: Summary{AveragePercentage: 80, GPA: 2.7},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AggregateWeighted(tt.courses))
		})
	}
}

func TestSummary_JSON(t *testing.T) {
	data, err := json.Marshal(Aggregate(eightCourses))
	require.NoError(t, err)
	assert.JSONEq(t, `{"average_percentage": 80, "gpa": 2.54}`, string(data))
}

func TestRoundPercentage(t *testing.T) {
	assert.Equal(t, 80.1, RoundPercentage(80.05))
	assert.Equal(t, 66.7, RoundPercentage(200.0/3))
	assert.Equal(t, 0.0, RoundPercentage(0))
}
