package academic_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/academic"
	"github.com/schooldriver/schooldriver/core/gpa"
	"github.com/schooldriver/schooldriver/core/user"
	sqlxrepos "github.com/schooldriver/schooldriver/storage/database/sqlx"
	testutil "github.com/schooldriver/schooldriver/tests"
)

type fixture struct {
	db       *sqlx.DB
	svc      *academic.Service
	repo     academic.Repository
	userRepo user.Repository
}

func setUp(t *testing.T) fixture {
	db := testutil.PrepareDB(t)
	repo := sqlxrepos.NewAcademicRepository(db)
	return fixture{
		db:       db,
		svc:      academic.NewService(db, repo, validator.New(), testutil.NopLogger()),
		repo:     repo,
		userRepo: sqlxrepos.NewUserRepository(db),
	}
}

var eightCourses = []struct {
	name string
	pct  float64
}{
	{"Algebra II", 77.6},
	{"Biology", 83.1},
	{"English 10", 78.4},
	{"World History", 78.7},
	{"Spanish II", 76.0},
	{"Physical Education", 81.3},
	{"Art", 84.5},
	{"Computer Science", 80.6},
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		in      string
		want    academic.Scope
		wantErr bool
	}{
		{in: "", want: academic.ScopeCurrent},
		{in: "current", want: academic.ScopeCurrent},
		{in: " Cumulative ", want: academic.ScopeCumulative},
		{in: "all", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := academic.ParseScope(tt.in)
			if tt.wantErr {
				assert.Equal(t, academic.ErrInvalidScope, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_Report(t *testing.T) {
	f := setUp(t)
	ctx := context.Background()

	teacher := testutil.CreateUser(t, f.userRepo, "Mr Smith", "smith", "smith@test.cd", "", []string{user.RoleTeacher}, true)
	st := testutil.CreateStudent(t, f.repo, "Emma", "Wilson", "S0001")
	current := testutil.CreateSchoolYear(t, f.repo, "2024-2025", true)
	for _, c := range eightCourses {
		testutil.CreateGradedCourse(t, f.repo, st, current, c.name, c.pct, 1, teacher.ID)
	}

	rpt, err := f.svc.Report(ctx, st.ID, academic.ScopeCurrent)
	require.NoError(t, err)

	assert.Equal(t, gpa.Summary{AveragePercentage: 80.0, GPA: 2.54}, rpt.Summary)
	assert.Equal(t, academic.ScopeCurrent, rpt.Scope)
	require.NotNil(t, rpt.SchoolYear)
	assert.Equal(t, current.ID, rpt.SchoolYear.ID)
	require.Len(t, rpt.Courses, 8)

	// ordered by name
	art := rpt.Courses[1]
	assert.Equal(t, "Art", art.Name)
	assert.Equal(t, 84.5, art.Percentage)
	assert.Equal(t, "B", art.Letter)
	assert.Equal(t, 3.0, art.GradePoint)
	assert.Equal(t, "Mr Smith", art.Teacher)
	assert.Equal(t, 1.0, art.CreditHours)

	// identical inputs, identical outputs
	again, err := f.svc.Report(ctx, st.ID, academic.ScopeCurrent)
	require.NoError(t, err)
	assert.Equal(t, rpt, again)
}

func TestService_Report_scopes(t *testing.T) {
	f := setUp(t)
	ctx := context.Background()

	st := testutil.CreateStudent(t, f.repo, "Liam", "Brown", "S0002")
	past := testutil.CreateSchoolYear(t, f.repo, "2023-2024", true)
	testutil.CreateGradedCourse(t, f.repo, st, past, "Geometry", 100, 1)
	current := testutil.CreateSchoolYear(t, f.repo, "2024-2025", true) // deactivates 2023-2024
	testutil.CreateGradedCourse(t, f.repo, st, current, "Chemistry", 60, 1)

	rpt, err := f.svc.Report(ctx, st.ID, academic.ScopeCurrent)
	require.NoError(t, err)
	require.Len(t, rpt.Courses, 1)
	assert.Equal(t, "Chemistry", rpt.Courses[0].Name)
	assert.Equal(t, gpa.Summary{AveragePercentage: 60, GPA: 0.7}, rpt.Summary)

	rpt, err = f.svc.Report(ctx, st.ID, academic.ScopeCumulative)
	require.NoError(t, err)
	assert.Len(t, rpt.Courses, 2)
	assert.Nil(t, rpt.SchoolYear)
	assert.Equal(t, gpa.Summary{AveragePercentage: 80, GPA: 2.5}, rpt.Summary)

	_, err = f.svc.Report(ctx, st.ID, academic.Scope("weekly"))
	assert.Equal(t, academic.ErrInvalidScope, err)
}

func TestService_Report_cumulativeSkipsUngraded(t *testing.T) {
	f := setUp(t)
	ctx := context.Background()

	st := testutil.CreateStudent(t, f.repo, "Mia", "Clark", "S0004")
	sy := testutil.CreateSchoolYear(t, f.repo, "2024-2025", true)
	testutil.CreateGradedCourse(t, f.repo, st, sy, "Biology", 95, 1)
	course, err := f.svc.AddCourse(ctx, academic.NewCourse{SchoolYearID: sy.ID, Name: "Drama", Code: "DRA1"})
	require.NoError(t, err)
	_, err = f.svc.Enroll(ctx, st.ID, course.ID)
	require.NoError(t, err)

	rpt, err := f.svc.Report(ctx, st.ID, academic.ScopeCumulative)
	require.NoError(t, err)
	require.Len(t, rpt.Courses, 1)
	assert.Equal(t, "Biology", rpt.Courses[0].Name)
	assert.Equal(t, gpa.Summary{AveragePercentage: 95, GPA: 4}, rpt.Summary)

	// the current year still lists every enrollment
	rpt, err = f.svc.Report(ctx, st.ID, academic.ScopeCurrent)
	require.NoError(t, err)
	assert.Len(t, rpt.Courses, 2)
	assert.Equal(t, gpa.Summary{AveragePercentage: 47.5, GPA: 2}, rpt.Summary)
}

func TestService_Report_gradeWithoutPoints(t *testing.T) {
	f := setUp(t)
	ctx := context.Background()

	st := testutil.CreateStudent(t, f.repo, "Ava", "Lewis", "S0005")
	sy := testutil.CreateSchoolYear(t, f.repo, "2024-2025", true)
	course := testutil.CreateGradedCourse(t, f.repo, st, sy, "History", 90, 1)
	missed, err := f.svc.AddAssignment(ctx, academic.NewAssignment{CourseID: course.ID, Name: "Essay", MaxPoints: 100, IsPublished: true})
	require.NoError(t, err)

	q := f.db.Rebind("INSERT INTO grade (id, assignment_id, student_id, points_earned, graded_at) VALUES (?, ?, ?, NULL, ?)")
	_, err = f.db.ExecContext(ctx, q, uuid.New().String(), missed.ID, st.ID, time.Now().UTC())
	require.NoError(t, err)

	rpt, err := f.svc.Report(ctx, st.ID, academic.ScopeCurrent)
	require.NoError(t, err)
	require.Len(t, rpt.Courses, 1)
	assert.Equal(t, 45.0, rpt.Courses[0].Percentage)
}

func TestService_Report_edgeCases(t *testing.T) {
	f := setUp(t)
	ctx := context.Background()

	st := testutil.CreateStudent(t, f.repo, "Noah", "Davis", "S0003")

	t.Run("no active school year", func(t *testing.T) {
		rpt, err := f.svc.Report(ctx, st.ID, academic.ScopeCurrent)
		require.NoError(t, err)
		assert.Empty(t, rpt.Courses)
		assert.Nil(t, rpt.SchoolYear)
		assert.Equal(t, gpa.Summary{}, rpt.Summary)
	})

	t.Run("unknown student", func(t *testing.T) {
		_, err := f.svc.Report(ctx, "7b1c1b3e-0000-4000-8000-000000000000", academic.ScopeCurrent)
		assert.Equal(t, academic.ErrStudentNotFound, err)
		_, err = f.svc.Report(ctx, "not-a-uuid", academic.ScopeCurrent)
		assert.Equal(t, academic.ErrStudentNotFound, err)
	})

	t.Run("ungraded and unpublished assignments", func(t *testing.T) {
		sy := testutil.CreateSchoolYear(t, f.repo, "2024-2025", true)
		course, err := f.svc.AddCourse(ctx, academic.NewCourse{SchoolYearID: sy.ID, Name: "Music", Code: "MUS1"})
		require.NoError(t, err)
		assert.Equal(t, 1.0, course.CreditHours)
		_, err = f.svc.Enroll(ctx, st.ID, course.ID)
		require.NoError(t, err)

		// nothing graded yet
		rpt, err := f.svc.Report(ctx, st.ID, academic.ScopeCurrent)
		require.NoError(t, err)
		require.Len(t, rpt.Courses, 1)
		assert.Equal(t, 0.0, rpt.Courses[0].Percentage)
		assert.Equal(t, "F", rpt.Courses[0].Letter)

		graded, err := f.svc.AddAssignment(ctx, academic.NewAssignment{CourseID: course.ID, Name: "Recital", MaxPoints: 50, IsPublished: true})
		require.NoError(t, err)
		draft, err := f.svc.AddAssignment(ctx, academic.NewAssignment{CourseID: course.ID, Name: "Draft", MaxPoints: 50})
		require.NoError(t, err)
		_, err = f.svc.AddAssignment(ctx, academic.NewAssignment{CourseID: course.ID, Name: "Ungraded", MaxPoints: 50, IsPublished: true})
		require.NoError(t, err)

		_, err = f.svc.RecordGrade(ctx, graded.ID, st.ID, 40)
		require.NoError(t, err)
		_, err = f.svc.RecordGrade(ctx, graded.ID, st.ID, 45) // regrade replaces
		require.NoError(t, err)
		_, err = f.svc.RecordGrade(ctx, draft.ID, st.ID, 0)
		require.NoError(t, err)

		rpt, err = f.svc.Report(ctx, st.ID, academic.ScopeCurrent)
		require.NoError(t, err)
		assert.Equal(t, 90.0, rpt.Courses[0].Percentage)
		assert.Equal(t, "A-", rpt.Courses[0].Letter)

		_, err = f.svc.RecordGrade(ctx, graded.ID, st.ID, -1)
		assert.IsType(t, &core.ValidationError{}, err)
	})
}

func TestService_CanView(t *testing.T) {
	f := setUp(t)
	ctx := context.Background()

	stUser := testutil.CreateUser(t, f.userRepo, "Emma Wilson", "emma", "emma@test.cd", "", []string{user.RoleStudent}, true)
	parentUser := testutil.CreateUser(t, f.userRepo, "Jane Wilson", "jane", "jane@test.cd", "", []string{user.RoleParent}, true)
	otherParent := testutil.CreateUser(t, f.userRepo, "Tom Baker", "tom", "tom@test.cd", "", []string{user.RoleParent}, true)
	emma := testutil.CreateStudent(t, f.repo, "Emma", "Wilson", "S0001", stUser.ID)
	liam := testutil.CreateStudent(t, f.repo, "Liam", "Wilson", "S0002")
	require.NoError(t, f.svc.LinkParent(ctx, emma.ID, parentUser.ID))
	require.NoError(t, f.svc.LinkParent(ctx, emma.ID, parentUser.ID)) // no-op

	admin := user.Principal{ID: "a", Roles: []string{user.RoleAdminOwner}, Authenticated: true}
	teacher := user.Principal{ID: "t", Roles: []string{user.RoleTeacher}, Authenticated: true}

	tests := []struct {
		name      string
		principal user.Principal
		student   academic.Student
		want      bool
	}{
		{"anonymous", user.Anonymous, emma, false},
		{"admin", admin, liam, true},
		{"teacher", teacher, liam, true},
		{"own record", stUser.Principal(), emma, true},
		{"other student", stUser.Principal(), liam, false},
		{"linked parent", parentUser.Principal(), emma, true},
		{"unlinked child", parentUser.Principal(), liam, false},
		{"other parent", otherParent.Principal(), emma, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.CanView(ctx, tt.principal, tt.student)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	students, err := f.svc.StudentsFor(ctx, parentUser.Principal())
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, emma.ID, students[0].ID)

	students, err = f.svc.StudentsFor(ctx, teacher)
	require.NoError(t, err)
	assert.Len(t, students, 2)

	students, err = f.svc.StudentsFor(ctx, stUser.Principal())
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, emma.ID, students[0].ID)
}

func TestService_AddSchoolYear(t *testing.T) {
	f := setUp(t)
	ctx := context.Background()

	first := testutil.CreateSchoolYear(t, f.repo, "2023-2024", true)
	nsy := academic.NewSchoolYear{Name: "2024-2025", StartDate: first.EndDate, EndDate: first.EndDate.AddDate(1, 0, 0), IsActive: true}
	second, err := f.svc.AddSchoolYear(ctx, nsy)
	require.NoError(t, err)

	active, err := f.repo.GetActiveSchoolYear(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	_, err = f.svc.AddSchoolYear(ctx, academic.NewSchoolYear{Name: "bad", StartDate: first.EndDate, EndDate: first.StartDate})
	assert.Error(t, err)
}
