package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/schooldriver/schooldriver/core/academic"
	"github.com/schooldriver/schooldriver/core/user"
	appfs "github.com/schooldriver/schooldriver/fs"
)

const demoFile = "demo/school.yaml"

type (
	demoSchool struct {
		Users       []demoUser       `yaml:"users"`
		SchoolYears []demoSchoolYear `yaml:"school_years"`
		Students    []demoStudent    `yaml:"students"`
	}

	demoUser struct {
		Name     string   `yaml:"name"`
		Username string   `yaml:"username"`
		Email    string   `yaml:"email"`
		Password string   `yaml:"password"`
		Roles    []string `yaml:"roles"`
	}

	demoSchoolYear struct {
		academic.NewSchoolYear `yaml:",inline"`
		Courses                []demoCourse `yaml:"courses"`
		// Assignments are created in every course of the year.
		Assignments []academic.NewAssignment `yaml:"assignments"`
	}

	demoCourse struct {
		academic.NewCourse `yaml:",inline"`
		Teacher            string `yaml:"teacher"` // username
	}

	demoStudent struct {
		academic.NewStudent `yaml:",inline"`
		Username            string   `yaml:"username"`
		Parents             []string `yaml:"parents"` // usernames
		// Grades holds the points earned per course code, in assignment order.
		Grades map[string][]float64 `yaml:"grades"`
	}
)

func readDemoSchool(file string) (demoSchool, error) {
	var (
		data []byte
		err  error
	)
	if file == "" {
		data, err = fs.ReadFile(appfs.FS, demoFile)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return demoSchool{}, errors.Wrap(err, "reading demo data")
	}

	var school demoSchool
	if err = yaml.Unmarshal(data, &school); err != nil {
		return demoSchool{}, errors.Wrap(err, "parsing demo data")
	}
	return school, nil
}

// loadDemo fills an empty database with the demo school.
func (cli *commandLine) loadDemo(file string) error {
	school, err := readDemoSchool(file)
	if err != nil {
		return err
	}
	ctx := context.Background()

	userIDs := make(map[string]string, len(school.Users))
	for _, du := range school.Users {
		usr, err := cli.saveDemoUser(ctx, du)
		if err != nil {
			return errors.Wrapf(err, "saving user %q", du.Username)
		}
		userIDs[usr.Username] = usr.ID
	}
	lookupUser := func(uname string) (string, error) {
		if uname == "" {
			return "", nil
		}
		id, ok := userIDs[uname]
		if !ok {
			return "", fmt.Errorf("%q: unknown demo user", uname)
		}
		return id, nil
	}

	// assignments per course code
	assignments := make(map[string][]academic.Assignment)
	for _, dsy := range school.SchoolYears {
		sy, err := cli.acadSvc.AddSchoolYear(ctx, dsy.NewSchoolYear)
		if err != nil {
			return errors.Wrapf(err, "adding school year %q", dsy.Name)
		}
		for _, dc := range dsy.Courses {
			nc := dc.NewCourse
			nc.SchoolYearID = sy.ID
			if nc.TeacherID, err = lookupUser(dc.Teacher); err != nil {
				return err
			}
			c, err := cli.acadSvc.AddCourse(ctx, nc)
			if err != nil {
				return errors.Wrapf(err, "adding course %q", dc.Code)
			}
			for _, na := range dsy.Assignments {
				na.CourseID = c.ID
				if na.DueDate.IsZero() {
					na.DueDate = sy.EndDate
				}
				a, err := cli.acadSvc.AddAssignment(ctx, na)
				if err != nil {
					return errors.Wrapf(err, "adding assignment %q to %q", na.Name, dc.Code)
				}
				assignments[c.Code] = append(assignments[c.Code], a)
			}
		}
	}

	for _, ds := range school.Students {
		ns := ds.NewStudent
		if ns.UserID, err = lookupUser(ds.Username); err != nil {
			return err
		}
		st, err := cli.acadSvc.AddStudent(ctx, ns)
		if err != nil {
			return errors.Wrapf(err, "adding student %q", ds.StudentNumber)
		}
		for _, uname := range ds.Parents {
			parentID, err := lookupUser(uname)
			if err != nil {
				return err
			}
			if err = cli.acadSvc.LinkParent(ctx, st.ID, parentID); err != nil {
				return errors.Wrapf(err, "linking parent %q", uname)
			}
		}
		if err = cli.gradeDemoStudent(ctx, st, ds.Grades, assignments); err != nil {
			return err
		}
	}

	fmt.Fprintf(cli.out, "demo school loaded: %d users, %d school years, %d students\n",
		len(school.Users), len(school.SchoolYears), len(school.Students))
	return nil
}

func (cli *commandLine) saveDemoUser(ctx context.Context, du demoUser) (user.User, error) {
	now := time.Now().UTC()
	usr := user.User{
		Name:      du.Name,
		Username:  du.Username,
		Email:     du.Email,
		IsActive:  true,
		Roles:     du.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(du.Password); err != nil {
		return user.User{}, err
	}
	return cli.usrRepo.CreateUser(ctx, usr)
}

func (cli *commandLine) gradeDemoStudent(
	ctx context.Context,
	st academic.Student,
	grades map[string][]float64,
	assignments map[string][]academic.Assignment,
) error {
	for code, points := range grades {
		as, ok := assignments[code]
		if !ok {
			return fmt.Errorf("%q: unknown demo course", code)
		}
		if len(points) > len(as) {
			return fmt.Errorf("%q: %d grades for %d assignments", code, len(points), len(as))
		}
		if _, err := cli.acadSvc.Enroll(ctx, st.ID, as[0].CourseID); err != nil {
			return errors.Wrapf(err, "enrolling %q in %q", st.StudentNumber, code)
		}
		for i, pts := range points {
			if _, err := cli.acadSvc.RecordGrade(ctx, as[i].ID, st.ID, pts); err != nil {
				return errors.Wrapf(err, "grading %q in %q", st.StudentNumber, code)
			}
		}
	}
	return nil
}
