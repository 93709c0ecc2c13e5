package academic

import (
	"strings"
	"time"

	"github.com/schooldriver/schooldriver/core/gpa"
)

// Scope selects the enrollments a report covers.
type Scope string

const (
	// ScopeCurrent covers the active school year only.
	ScopeCurrent Scope = "current"
	// ScopeCumulative covers every school year.
	ScopeCumulative Scope = "cumulative"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeCurrent:
		return ScopeCurrent, nil
	case ScopeCumulative:
		return ScopeCumulative, nil
	default:
		return "", ErrInvalidScope
	}
}

type Student struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id,omitempty"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	StudentNumber string    `json:"student_number"`
	GradeLevel    string    `json:"grade_level"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

type SchoolYear struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	IsActive  bool      `json:"is_active"`
}

type Course struct {
	ID           string  `json:"id"`
	SchoolYearID string  `json:"school_year_id"`
	Name         string  `json:"name"`
	Code         string  `json:"code"`
	TeacherID    string  `json:"teacher_id,omitempty"`
	Room         string  `json:"room,omitempty"`
	CreditHours  float64 `json:"credit_hours"`
}

type Enrollment struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	CourseID   string    `json:"course_id"`
	IsActive   bool      `json:"is_active"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

type Assignment struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	Name        string    `json:"name"`
	MaxPoints   float64   `json:"max_points"`
	DueDate     time.Time `json:"due_date"`
	IsPublished bool      `json:"is_published"`
}

type Grade struct {
	ID           string    `json:"id"`
	AssignmentID string    `json:"assignment_id"`
	StudentID    string    `json:"student_id"`
	PointsEarned float64   `json:"points_earned"`
	GradedAt     time.Time `json:"graded_at"`
}

// EnrollmentGrades holds the graded totals of one enrollment, published assignments only.
type EnrollmentGrades struct {
	EnrollmentID   string
	SchoolYearID   string
	CourseID       string
	CourseName     string
	CourseCode     string
	TeacherName    string
	Room           string
	CreditHours    float64
	PointsEarned   float64
	PointsPossible float64
}

// Percentage is earned / possible * 100, 0 when nothing has been graded yet.
func (eg EnrollmentGrades) Percentage() float64 {
	if eg.PointsPossible <= 0 {
		return 0
	}
	return eg.PointsEarned / eg.PointsPossible * 100
}

type CourseRecord struct {
	Name        string  `json:"name"`
	Code        string  `json:"code"`
	Teacher     string  `json:"teacher"`
	Room        string  `json:"room"`
	CreditHours float64 `json:"credit_hours"`
	Percentage  float64 `json:"percentage"`
	Letter      string  `json:"letter"`
	GradePoint  float64 `json:"grade_point"`
}

// Report is what every portal (student, parent, teacher) shows for a student.
type Report struct {
	Student    Student        `json:"student"`
	Scope      Scope          `json:"scope"`
	SchoolYear *SchoolYear    `json:"school_year"`
	Courses    []CourseRecord `json:"courses"`
	Summary    gpa.Summary    `json:"summary"`
	// WeightedSummary weights courses by credit hours; informational only.
	WeightedSummary gpa.Summary `json:"weighted_summary"`
}

// StudentFilter narrows QueryStudents; zero values are ignored.
type StudentFilter struct {
	IDs      []string
	ParentID string
	UserID   string
	Search   string
	IsActive *bool
}

type NewStudent struct {
	UserID        string `json:"user_id" yaml:"user_id"`
	FirstName     string `json:"first_name" yaml:"first_name" validate:"required"`
	LastName      string `json:"last_name" yaml:"last_name" validate:"required"`
	StudentNumber string `json:"student_number" yaml:"student_number" validate:"required"`
	GradeLevel    string `json:"grade_level" yaml:"grade_level"`
}

type NewSchoolYear struct {
	Name      string    `json:"name" yaml:"name" validate:"required"`
	StartDate time.Time `json:"start_date" yaml:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" yaml:"end_date" validate:"required,gtfield=StartDate"`
	IsActive  bool      `json:"is_active" yaml:"is_active"`
}

type NewCourse struct {
	SchoolYearID string  `json:"school_year_id" yaml:"school_year_id" validate:"required"`
	Name         string  `json:"name" yaml:"name" validate:"required"`
	Code         string  `json:"code" yaml:"code" validate:"required"`
	TeacherID    string  `json:"teacher_id" yaml:"teacher_id"`
	Room         string  `json:"room" yaml:"room"`
	CreditHours  float64 `json:"credit_hours" yaml:"credit_hours" validate:"gte=0"`
}

type NewAssignment struct {
	CourseID    string    `json:"course_id" yaml:"course_id" validate:"required"`
	Name        string    `json:"name" yaml:"name" validate:"required"`
	MaxPoints   float64   `json:"max_points" yaml:"max_points" validate:"gt=0"`
	DueDate     time.Time `json:"due_date" yaml:"due_date"`
	IsPublished bool      `json:"is_published" yaml:"is_published"`
}
