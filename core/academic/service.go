// Package academic assembles per-student course results and hands them to the GPA aggregator,
// so that the student, parent and teacher portals all show the same figures.
package academic

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/gpa"
	"github.com/schooldriver/schooldriver/core/user"
)

var (
	ErrStudentNotFound    = errors.New("student not found")
	ErrNoActiveSchoolYear = errors.New("no active school year")
	ErrInvalidScope       = errors.New("scope must be one of: current, cumulative")
)

type (
	Repository interface {
		CreateStudent(ctx context.Context, st Student, exec ...core.DBExecutor) (Student, error)
		GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (Student, error)
		QueryStudents(ctx context.Context, filter StudentFilter, exec ...core.DBExecutor) ([]Student, error)
		// LinkParent is a no-op when the link already exists.
		LinkParent(ctx context.Context, studentID, parentID string, exec ...core.DBExecutor) error
		IsParentOf(ctx context.Context, parentID, studentID string, exec ...core.DBExecutor) (bool, error)

		CreateSchoolYear(ctx context.Context, sy SchoolYear, exec ...core.DBExecutor) (SchoolYear, error)
		GetActiveSchoolYear(ctx context.Context, exec ...core.DBExecutor) (SchoolYear, error)
		CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		CreateEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		CreateAssignment(ctx context.Context, a Assignment, exec ...core.DBExecutor) (Assignment, error)
		// SaveGrade replaces any previous grade of the student on the assignment.
		SaveGrade(ctx context.Context, g Grade, exec ...core.DBExecutor) (Grade, error)

		// QueryEnrollmentGrades returns the active enrollments of a student with their graded totals.
		// An empty schoolYearID means every school year.
		QueryEnrollmentGrades(ctx context.Context, studentID, schoolYearID string, exec ...core.DBExecutor) ([]EnrollmentGrades, error)
	}

	Service struct {
		db       core.DB
		repo     Repository
		validate *validator.Validate
		logger   core.Logger
	}
)

func NewService(db core.DB, repo Repository, validate *validator.Validate, logger core.Logger) *Service {
	return &Service{db: db, repo: repo, validate: validate, logger: logger}
}

// Report builds the academic report of a student for the given scope.
// A missing active school year yields an empty current report.
func (svc *Service) Report(ctx context.Context, studentID string, scope Scope) (Report, error) {
	st, err := svc.repo.GetStudent(ctx, studentID)
	if err != nil {
		return Report{}, err
	}
	return svc.report(ctx, st, scope)
}

func (svc *Service) report(ctx context.Context, st Student, scope Scope) (Report, error) {
	rpt := Report{Student: st, Scope: scope, Courses: []CourseRecord{}}

	var yearID string
	switch scope {
	case ScopeCurrent:
		sy, err := svc.repo.GetActiveSchoolYear(ctx)
		if err != nil {
			if errors.Cause(err) == ErrNoActiveSchoolYear {
				svc.logger.Warn("academic report: no active school year", map[string]interface{}{"student": st.ID})
				return rpt, nil
			}
			return Report{}, errors.Wrap(err, "getting active school year")
		}
		rpt.SchoolYear = &sy
		yearID = sy.ID
	case ScopeCumulative:
	default:
		return Report{}, ErrInvalidScope
	}

	rows, err := svc.repo.QueryEnrollmentGrades(ctx, st.ID, yearID)
	if err != nil {
		return Report{}, errors.Wrap(err, "querying enrollment grades")
	}

	courses := make([]gpa.CoursePercentage, 0, len(rows))
	for _, row := range rows {
		// cumulative reports only cover courses with grades
		if scope == ScopeCumulative && row.PointsPossible == 0 {
			continue
		}
		pct := gpa.RoundPercentage(row.Percentage())
		cp := gpa.CoursePercentage{Name: row.CourseName, Percentage: pct, CreditHours: row.CreditHours}
		courses = append(courses, cp)
		rpt.Courses = append(rpt.Courses, CourseRecord{
			Name:        row.CourseName,
			Code:        row.CourseCode,
			Teacher:     row.TeacherName,
			Room:        row.Room,
			CreditHours: cp.CreditHoursOrDefault(),
			Percentage:  pct,
			Letter:      gpa.Letter(pct),
			GradePoint:  gpa.GradePoint(pct),
		})
	}
	rpt.Summary = gpa.Aggregate(courses)
	rpt.WeightedSummary = gpa.AggregateWeighted(courses)
	return rpt, nil
}

func (svc *Service) GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (Student, error) {
	return svc.repo.GetStudent(ctx, id, exec...)
}

// CanView reports whether p may see the records of st.
// Admins and teachers see every student, students their own record, parents their linked children.
func (svc *Service) CanView(ctx context.Context, p user.Principal, st Student) (bool, error) {
	if !p.Authenticated {
		return false, nil
	}
	switch p.PrimaryRole() {
	case user.RoleAdmin, user.RoleTeacher:
		return true, nil
	case user.RoleParent:
		return svc.repo.IsParentOf(ctx, p.ID, st.ID)
	case user.RoleStudent:
		return st.UserID != "" && st.UserID == p.ID, nil
	default:
		return false, nil
	}
}

// StudentsFor lists the students visible to p.
func (svc *Service) StudentsFor(ctx context.Context, p user.Principal) ([]Student, error) {
	if !p.Authenticated {
		return []Student{}, nil
	}
	active := true
	filter := StudentFilter{IsActive: &active}
	switch p.PrimaryRole() {
	case user.RoleAdmin, user.RoleTeacher:
	case user.RoleParent:
		filter.ParentID = p.ID
	case user.RoleStudent:
		filter.UserID = p.ID
	default:
		return []Student{}, nil
	}
	return svc.repo.QueryStudents(ctx, filter)
}

// LinkParent gives parentID access to the records of studentID.
func (svc *Service) LinkParent(ctx context.Context, studentID, parentID string, exec ...core.DBExecutor) error {
	return svc.repo.LinkParent(ctx, studentID, parentID, exec...)
}

// Creation helpers

func (svc *Service) AddStudent(ctx context.Context, ns NewStudent) (Student, error) {
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.StudentNumber = core.CleanString(ns.StudentNumber)
	if err := svc.validate.Struct(ns); err != nil {
		return Student{}, err
	}
	return svc.repo.CreateStudent(ctx, Student{
		UserID:        ns.UserID,
		FirstName:     ns.FirstName,
		LastName:      ns.LastName,
		StudentNumber: ns.StudentNumber,
		GradeLevel:    ns.GradeLevel,
		IsActive:      true,
		CreatedAt:     time.Now().UTC(),
	})
}

// AddSchoolYear creates a school year; an active one deactivates the others.
func (svc *Service) AddSchoolYear(ctx context.Context, nsy NewSchoolYear) (SchoolYear, error) {
	if err := svc.validate.Struct(nsy); err != nil {
		return SchoolYear{}, err
	}
	var sy SchoolYear
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		sy, err = svc.repo.CreateSchoolYear(ctx, SchoolYear{
			Name:      core.CleanString(nsy.Name),
			StartDate: nsy.StartDate.UTC(),
			EndDate:   nsy.EndDate.UTC(),
			IsActive:  nsy.IsActive,
		}, tx)
		return err
	})
	return sy, err
}

func (svc *Service) AddCourse(ctx context.Context, nc NewCourse) (Course, error) {
	if err := svc.validate.Struct(nc); err != nil {
		return Course{}, err
	}
	hours := gpa.CoursePercentage{CreditHours: nc.CreditHours}.CreditHoursOrDefault()
	return svc.repo.CreateCourse(ctx, Course{
		SchoolYearID: nc.SchoolYearID,
		Name:         core.CleanString(nc.Name),
		Code:         core.CleanString(nc.Code),
		TeacherID:    nc.TeacherID,
		Room:         core.CleanString(nc.Room),
		CreditHours:  hours,
	})
}

func (svc *Service) Enroll(ctx context.Context, studentID, courseID string) (Enrollment, error) {
	return svc.repo.CreateEnrollment(ctx, Enrollment{
		StudentID:  studentID,
		CourseID:   courseID,
		IsActive:   true,
		EnrolledAt: time.Now().UTC(),
	})
}

func (svc *Service) AddAssignment(ctx context.Context, na NewAssignment) (Assignment, error) {
	if err := svc.validate.Struct(na); err != nil {
		return Assignment{}, err
	}
	return svc.repo.CreateAssignment(ctx, Assignment{
		CourseID:    na.CourseID,
		Name:        core.CleanString(na.Name),
		MaxPoints:   na.MaxPoints,
		DueDate:     na.DueDate.UTC(),
		IsPublished: na.IsPublished,
	})
}

// RecordGrade saves the points a student earned on an assignment.
func (svc *Service) RecordGrade(ctx context.Context, assignmentID, studentID string, points float64) (Grade, error) {
	if points < 0 {
		return Grade{}, core.NewValidationError(nil, core.FieldError{Field: "points_earned", Error: "must be 0 or greater"})
	}
	return svc.repo.SaveGrade(ctx, Grade{
		AssignmentID: assignmentID,
		StudentID:    studentID,
		PointsEarned: points,
		GradedAt:     time.Now().UTC(),
	})
}
