package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/academic"
)

const studentColumns = "id, user_id, first_name, last_name, student_number, grade_level, is_active, created_at"

type (
	studentRow struct {
		ID            string      `db:"id"`
		UserID        null.String `db:"user_id"`
		FirstName     string      `db:"first_name"`
		LastName      string      `db:"last_name"`
		StudentNumber string      `db:"student_number"`
		GradeLevel    string      `db:"grade_level"`
		IsActive      bool        `db:"is_active"`
		CreatedAt     time.Time   `db:"created_at"`
	}

	schoolYearRow struct {
		ID        string    `db:"id"`
		Name      string    `db:"name"`
		StartDate time.Time `db:"start_date"`
		EndDate   time.Time `db:"end_date"`
		IsActive  bool      `db:"is_active"`
	}

	enrollmentGradesRow struct {
		EnrollmentID   string      `db:"enrollment_id"`
		SchoolYearID   string      `db:"school_year_id"`
		CourseID       string      `db:"course_id"`
		CourseName     string      `db:"course_name"`
		CourseCode     string      `db:"course_code"`
		TeacherName    null.String `db:"teacher_name"`
		Room           string      `db:"room"`
		CreditHours    float64     `db:"credit_hours"`
		PointsEarned   float64     `db:"points_earned"`
		PointsPossible float64     `db:"points_possible"`
	}
)

func (r studentRow) toStudent() academic.Student {
	return academic.Student{
		ID:            r.ID,
		UserID:        r.UserID.String,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		StudentNumber: r.StudentNumber,
		GradeLevel:    r.GradeLevel,
		IsActive:      r.IsActive,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

func (r schoolYearRow) toSchoolYear() academic.SchoolYear {
	return academic.SchoolYear{
		ID:        r.ID,
		Name:      r.Name,
		StartDate: r.StartDate.UTC(),
		EndDate:   r.EndDate.UTC(),
		IsActive:  r.IsActive,
	}
}

type academicRepository struct {
	db core.DB
}

var _ academic.Repository = (*academicRepository)(nil) // interface compliance check

func NewAcademicRepository(db core.DB) *academicRepository {
	return &academicRepository{db: db}
}

func (repo academicRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.db
}

func (repo academicRepository) CreateStudent(ctx context.Context, st academic.Student, exec ...core.DBExecutor) (academic.Student, error) {
	st.ID = uuid.New().String()
	row := studentRow{
		ID:            st.ID,
		UserID:        null.NewString(st.UserID, st.UserID != ""),
		FirstName:     st.FirstName,
		LastName:      st.LastName,
		StudentNumber: st.StudentNumber,
		GradeLevel:    st.GradeLevel,
		IsActive:      st.IsActive,
		CreatedAt:     st.CreatedAt.UTC(),
	}
	q := `INSERT INTO student (` + studentColumns + `)
		VALUES (:id, :user_id, :first_name, :last_name, :student_number, :grade_level, :is_active, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		return academic.Student{}, errors.Wrap(err, "inserting student")
	}
	return row.toStudent(), nil
}

func (repo academicRepository) GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (academic.Student, error) {
	if _, err := uuid.Parse(id); err != nil {
		return academic.Student{}, academic.ErrStudentNotFound
	}
	e := repo.getExec(exec)
	var row studentRow
	if err := e.GetContext(ctx, &row, e.Rebind("SELECT "+studentColumns+" FROM student WHERE id = ?"), id); err != nil {
		if err == sql.ErrNoRows {
			return academic.Student{}, academic.ErrStudentNotFound
		}
		return academic.Student{}, errors.Wrap(err, "finding student")
	}
	return row.toStudent(), nil
}

func (repo academicRepository) QueryStudents(ctx context.Context, filter academic.StudentFilter, exec ...core.DBExecutor) ([]academic.Student, error) {
	var (
		conds []string
		args  []interface{}
	)
	if len(filter.IDs) > 0 {
		conds = append(conds, "id IN (?)")
		args = append(args, filter.IDs)
	}
	if filter.ParentID != "" {
		conds = append(conds, "id IN (SELECT student_id FROM student_family WHERE parent_id = ?)")
		args = append(args, filter.ParentID)
	}
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Search != "" {
		val := "%" + strings.ToLower(filter.Search) + "%"
		conds = append(conds, "(LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(student_number) LIKE ?)")
		args = append(args, val, val, val)
	}
	if filter.IsActive != nil {
		conds = append(conds, "is_active = ?")
		args = append(args, *filter.IsActive)
	}

	q := "SELECT " + studentColumns + " FROM student"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY last_name, first_name"

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	e := repo.getExec(exec)
	var rows []studentRow
	if err = e.SelectContext(ctx, &rows, e.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]academic.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.toStudent())
	}
	return students, nil
}

func (repo academicRepository) LinkParent(ctx context.Context, studentID, parentID string, exec ...core.DBExecutor) error {
	e := repo.getExec(exec)
	q := e.Rebind(`INSERT INTO student_family (student_id, parent_id, created_at)
		SELECT ?, ?, ? WHERE NOT EXISTS (SELECT 1 FROM student_family WHERE student_id = ? AND parent_id = ?)`)
	if _, err := e.ExecContext(ctx, q, studentID, parentID, time.Now().UTC(), studentID, parentID); err != nil {
		return errors.Wrap(err, "linking parent")
	}
	return nil
}

func (repo academicRepository) IsParentOf(ctx context.Context, parentID, studentID string, exec ...core.DBExecutor) (bool, error) {
	e := repo.getExec(exec)
	var cnt int
	q := e.Rebind("SELECT COUNT(*) FROM student_family WHERE parent_id = ? AND student_id = ?")
	if err := e.GetContext(ctx, &cnt, q, parentID, studentID); err != nil {
		return false, errors.Wrap(err, "checking parent link")
	}
	return cnt > 0, nil
}

// CreateSchoolYear inserts sy; an active year deactivates every other one.
func (repo academicRepository) CreateSchoolYear(ctx context.Context, sy academic.SchoolYear, exec ...core.DBExecutor) (academic.SchoolYear, error) {
	e := repo.getExec(exec)
	if sy.IsActive {
		if _, err := e.ExecContext(ctx, e.Rebind("UPDATE school_year SET is_active = ? WHERE is_active = ?"), false, true); err != nil {
			return academic.SchoolYear{}, errors.Wrap(err, "deactivating school years")
		}
	}
	row := schoolYearRow{
		ID:        uuid.New().String(),
		Name:      sy.Name,
		StartDate: sy.StartDate.UTC(),
		EndDate:   sy.EndDate.UTC(),
		IsActive:  sy.IsActive,
	}
	q := `INSERT INTO school_year (id, name, start_date, end_date, is_active)
		VALUES (:id, :name, :start_date, :end_date, :is_active)`
	if _, err := sqlx.NamedExecContext(ctx, e, q, row); err != nil {
		return academic.SchoolYear{}, errors.Wrap(err, "inserting school year")
	}
	return row.toSchoolYear(), nil
}

func (repo academicRepository) GetActiveSchoolYear(ctx context.Context, exec ...core.DBExecutor) (academic.SchoolYear, error) {
	e := repo.getExec(exec)
	var row schoolYearRow
	q := e.Rebind("SELECT id, name, start_date, end_date, is_active FROM school_year WHERE is_active = ? ORDER BY start_date DESC LIMIT 1")
	if err := e.GetContext(ctx, &row, q, true); err != nil {
		if err == sql.ErrNoRows {
			return academic.SchoolYear{}, academic.ErrNoActiveSchoolYear
		}
		return academic.SchoolYear{}, errors.Wrap(err, "finding active school year")
	}
	return row.toSchoolYear(), nil
}

func (repo academicRepository) CreateCourse(ctx context.Context, c academic.Course, exec ...core.DBExecutor) (academic.Course, error) {
	c.ID = uuid.New().String()
	e := repo.getExec(exec)
	q := e.Rebind(`INSERT INTO course (id, school_year_id, name, code, teacher_id, room, credit_hours)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	teacherID := null.NewString(c.TeacherID, c.TeacherID != "")
	if _, err := e.ExecContext(ctx, q, c.ID, c.SchoolYearID, c.Name, c.Code, teacherID, c.Room, c.CreditHours); err != nil {
		return academic.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo academicRepository) CreateEnrollment(ctx context.Context, en academic.Enrollment, exec ...core.DBExecutor) (academic.Enrollment, error) {
	en.ID = uuid.New().String()
	en.EnrolledAt = en.EnrolledAt.UTC()
	e := repo.getExec(exec)
	q := e.Rebind("INSERT INTO enrollment (id, student_id, course_id, is_active, enrolled_at) VALUES (?, ?, ?, ?, ?)")
	if _, err := e.ExecContext(ctx, q, en.ID, en.StudentID, en.CourseID, en.IsActive, en.EnrolledAt); err != nil {
		return academic.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return en, nil
}

func (repo academicRepository) CreateAssignment(ctx context.Context, a academic.Assignment, exec ...core.DBExecutor) (academic.Assignment, error) {
	a.ID = uuid.New().String()
	a.DueDate = a.DueDate.UTC()
	e := repo.getExec(exec)
	q := e.Rebind("INSERT INTO assignment (id, course_id, name, max_points, due_date, is_published) VALUES (?, ?, ?, ?, ?, ?)")
	dueDate := null.NewTime(a.DueDate, !a.DueDate.IsZero())
	if _, err := e.ExecContext(ctx, q, a.ID, a.CourseID, a.Name, a.MaxPoints, dueDate, a.IsPublished); err != nil {
		return academic.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return a, nil
}

func (repo academicRepository) SaveGrade(ctx context.Context, g academic.Grade, exec ...core.DBExecutor) (academic.Grade, error) {
	e := repo.getExec(exec)
	g.GradedAt = g.GradedAt.UTC()

	var existingID string
	err := e.GetContext(ctx, &existingID, e.Rebind("SELECT id FROM grade WHERE assignment_id = ? AND student_id = ?"), g.AssignmentID, g.StudentID)
	switch {
	case err == nil:
		g.ID = existingID
		q := e.Rebind("UPDATE grade SET points_earned = ?, graded_at = ? WHERE id = ?")
		if _, err = e.ExecContext(ctx, q, g.PointsEarned, g.GradedAt, g.ID); err != nil {
			return academic.Grade{}, errors.Wrap(err, "updating grade")
		}
	case err == sql.ErrNoRows:
		g.ID = uuid.New().String()
		q := e.Rebind("INSERT INTO grade (id, assignment_id, student_id, points_earned, graded_at) VALUES (?, ?, ?, ?, ?)")
		if _, err = e.ExecContext(ctx, q, g.ID, g.AssignmentID, g.StudentID, g.PointsEarned, g.GradedAt); err != nil {
			return academic.Grade{}, errors.Wrap(err, "inserting grade")
		}
	default:
		return academic.Grade{}, errors.Wrap(err, "finding grade")
	}
	return g, nil
}

// QueryEnrollmentGrades sums the graded published assignments of every active enrollment.
// Ungraded assignments count in neither total. A grade without points counts as 0 earned.
func (repo academicRepository) QueryEnrollmentGrades(ctx context.Context, studentID, schoolYearID string, exec ...core.DBExecutor) ([]academic.EnrollmentGrades, error) {
	q := `SELECT e.id AS enrollment_id, c.school_year_id, c.id AS course_id, c.name AS course_name,
			c.code AS course_code, u.name AS teacher_name, c.room, c.credit_hours,
			COALESCE(SUM(g.points_earned), 0) AS points_earned,
			COALESCE(SUM(CASE WHEN g.id IS NULL THEN 0 ELSE a.max_points END), 0) AS points_possible
		FROM enrollment e
		JOIN course c ON c.id = e.course_id
		LEFT JOIN users u ON u.id = c.teacher_id
		LEFT JOIN assignment a ON a.course_id = c.id AND a.is_published = ?
		LEFT JOIN grade g ON g.assignment_id = a.id AND g.student_id = e.student_id
		WHERE e.student_id = ? AND e.is_active = ?`
	args := []interface{}{true, studentID, true}
	if schoolYearID != "" {
		q += " AND c.school_year_id = ?"
		args = append(args, schoolYearID)
	}
	q += `
		GROUP BY e.id, c.school_year_id, c.id, c.name, c.code, u.name, c.room, c.credit_hours
		ORDER BY c.name`

	e := repo.getExec(exec)
	var rows []enrollmentGradesRow
	if err := e.SelectContext(ctx, &rows, e.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying enrollment grades")
	}
	grades := make([]academic.EnrollmentGrades, 0, len(rows))
	for _, r := range rows {
		grades = append(grades, academic.EnrollmentGrades{
			EnrollmentID:   r.EnrollmentID,
			SchoolYearID:   r.SchoolYearID,
			CourseID:       r.CourseID,
			CourseName:     r.CourseName,
			CourseCode:     r.CourseCode,
			TeacherName:    r.TeacherName.String,
			Room:           r.Room,
			CreditHours:    r.CreditHours,
			PointsEarned:   r.PointsEarned,
			PointsPossible: r.PointsPossible,
		})
	}
	return grades, nil
}
