package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/schooldriver/schooldriver/core/academic"
	"github.com/schooldriver/schooldriver/core/gpa"
)

const contextStudentKey = "student"

type studentApi struct {
	svc *academic.Service
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := studentApi{svc: deps.AcademicSvc}

	sg := g.Group("/students", jwt, roleMiddleware(deps.Conf))
	sg.GET("", api.query)

	dg := sg.Group("/:id", canViewMiddleware(api.svc))
	dg.GET("/grades", api.grades)
	dg.GET("/gpa", api.gpa)
}

func (api *studentApi) query(ctx echo.Context) error {
	students, err := api.svc.StudentsFor(ctx.Request().Context(), getContextPrincipal(ctx))
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []academic.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) grades(ctx echo.Context) error {
	rpt, err := api.report(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rpt)
}

func (api *studentApi) gpa(ctx echo.Context) error {
	rpt, err := api.report(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, GPAResponse{
		StudentID:       rpt.Student.ID,
		Scope:           rpt.Scope,
		SchoolYear:      rpt.SchoolYear,
		Summary:         rpt.Summary,
		WeightedSummary: rpt.WeightedSummary,
	})
}

func (api *studentApi) report(ctx echo.Context) (academic.Report, error) {
	st, ok := ctx.Get(contextStudentKey).(academic.Student)
	if !ok {
		return academic.Report{}, errors.New("student not found in echo.Context")
	}
	scope, err := bindScope(ctx)
	if err != nil {
		return academic.Report{}, err
	}
	rpt, err := api.svc.Report(ctx.Request().Context(), st.ID, scope)
	return rpt, errors.Wrap(err, "building academic report")
}

// canViewMiddleware loads the :id student into the context if the principal may see it.
// Students out of reach are reported as not found.
func canViewMiddleware(svc *academic.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			reqCtx := ctx.Request().Context()
			st, err := svc.GetStudent(reqCtx, ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == academic.ErrStudentNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "getting student")
			}
			ok, err := svc.CanView(reqCtx, getContextPrincipal(ctx), st)
			if err != nil {
				return errors.Wrap(err, "checking student access")
			}
			if !ok {
				return errHttpNotFound
			}
			ctx.Set(contextStudentKey, st)
			return next(ctx)
		}
	}
}

type GPAResponse struct {
	StudentID       string               `json:"student_id"`
	Scope           academic.Scope       `json:"scope"`
	SchoolYear      *academic.SchoolYear `json:"school_year"`
	Summary         gpa.Summary          `json:"summary"`
	WeightedSummary gpa.Summary          `json:"weighted_summary"`
}
