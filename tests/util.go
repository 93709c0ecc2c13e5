// Package testutil holds the database and fixture helpers shared by the repository, service and API tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/academic"
	"github.com/schooldriver/schooldriver/core/user"
	"github.com/schooldriver/schooldriver/storage/database"
)

// PrepareDB returns a migrated in-memory sqlite database, closed at the end of the test.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	rawDB, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)&_time_format=sqlite")
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	// every connection to :memory: is a new database
	rawDB.SetMaxOpenConns(1)
	db := sqlx.NewDb(rawDB, "sqlite3")
	t.Cleanup(func() { _ = db.Close() })

	goose.SetLogger(goose.NopLogger())
	if err = database.Migrate(rawDB, "sqlite3"); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// NopLogger discards every log.
func NopLogger() core.Logger {
	return nopLogger{}
}

// NewValidator returns a validator with every application validator registered.
func NewValidator() *validator.Validate {
	validate := validator.New()
	uni := core.NewUniversalTranslator()
	core.InitValidators(validate, uni)
	user.InitValidators(validate, uni)
	user.LoadCommonPasswords(core.NewTestConfig(), NopLogger())
	return validate
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func CreateStudent(t *testing.T, repo academic.Repository, first, last, number string, userID ...string) academic.Student {
	t.Helper()
	st := academic.Student{
		FirstName:     first,
		LastName:      last,
		StudentNumber: number,
		GradeLevel:    "10",
		IsActive:      true,
		CreatedAt:     time.Now().UTC(),
	}
	if len(userID) > 0 {
		st.UserID = userID[0]
	}
	st, err := repo.CreateStudent(context.Background(), st)
	if err != nil {
		t.Fatalf("createStudent() failed: %v", err)
	}
	return st
}

func CreateSchoolYear(t *testing.T, repo academic.Repository, name string, active bool) academic.SchoolYear {
	t.Helper()
	start := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	sy, err := repo.CreateSchoolYear(context.Background(), academic.SchoolYear{
		Name:      name,
		StartDate: start,
		EndDate:   start.AddDate(0, 10, 0),
		IsActive:  active,
	})
	if err != nil {
		t.Fatalf("createSchoolYear() failed: %v", err)
	}
	return sy
}

var courseSeq int64

// CreateGradedCourse creates a course the student is enrolled in, with one published
// assignment worth 100 points graded at percentage.
func CreateGradedCourse(
	t *testing.T,
	repo academic.Repository,
	st academic.Student,
	sy academic.SchoolYear,
	name string,
	percentage, creditHours float64,
	teacherID ...string,
) academic.Course {
	t.Helper()
	ctx := context.Background()

	c := academic.Course{
		SchoolYearID: sy.ID,
		Name:         name,
		Code:         fmt.Sprintf("C%03d", atomic.AddInt64(&courseSeq, 1)),
		Room:         "101",
		CreditHours:  creditHours,
	}
	if len(teacherID) > 0 {
		c.TeacherID = teacherID[0]
	}
	c, err := repo.CreateCourse(ctx, c)
	if err != nil {
		t.Fatalf("createGradedCourse() failed: %v", err)
	}
	if _, err = repo.CreateEnrollment(ctx, academic.Enrollment{
		StudentID:  st.ID,
		CourseID:   c.ID,
		IsActive:   true,
		EnrolledAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("createGradedCourse() failed: %v", err)
	}
	a, err := repo.CreateAssignment(ctx, academic.Assignment{
		CourseID:    c.ID,
		Name:        "Final exam",
		MaxPoints:   100,
		IsPublished: true,
	})
	if err != nil {
		t.Fatalf("createGradedCourse() failed: %v", err)
	}
	if _, err = repo.SaveGrade(ctx, academic.Grade{
		AssignmentID: a.ID,
		StudentID:    st.ID,
		PointsEarned: percentage,
		GradedAt:     time.Now().UTC(),
	}); err != nil {
		t.Fatalf("createGradedCourse() failed: %v", err)
	}
	return c
}
