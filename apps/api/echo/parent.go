package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/academic"
	"github.com/schooldriver/schooldriver/core/parent"
	"github.com/schooldriver/schooldriver/core/user"
)

type parentApi struct {
	conf     *core.Config
	svc      *parent.Service
	users    user.ServiceInterface
	validate *validator.Validate
}

func registerParentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := parentApi{
		conf:     deps.Conf,
		svc:      deps.ParentSvc,
		users:    deps.UserSvc,
		validate: deps.Validate,
	}
	staff := roleMiddleware(deps.Conf, user.RoleAdmin, user.RoleTeacher)

	pg := g.Group("/parents")

	// un-authed endpoints
	pg.POST("/register", api.register)

	// authed endpoints
	ag := pg.Group("", jwt)
	ag.POST("/link", api.link, roleMiddleware(deps.Conf))

	cg := ag.Group("/verification-codes", staff)
	cg.POST("", api.issueCode)
	cg.GET("", api.queryCodes)
	cg.GET("/:code", api.verifyCode)
}

func (api *parentApi) issueCode(ctx echo.Context) error {
	var data parent.NewCode
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCode")
	}
	data.CreatedByID = getContextPrincipal(ctx).ID

	vc, err := api.svc.Issue(ctx.Request().Context(), data)
	if err != nil {
		if errors.Cause(err) == academic.ErrStudentNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
		}
		return errors.Wrap(err, "issuing verification code")
	}
	return ctx.JSON(http.StatusCreated, vc)
}

func (api *parentApi) queryCodes(ctx echo.Context) error {
	var query CodesQuery
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to CodesQuery")
	}
	if err := api.validate.Struct(query); err != nil {
		return err
	}

	codes, err := api.svc.CodesFor(ctx.Request().Context(), query.StudentID)
	if err != nil {
		return errors.Wrap(err, "querying verification codes")
	}
	if codes == nil {
		codes = []parent.VerificationCode{}
	}
	return ctx.JSON(http.StatusOK, codes)
}

func (api *parentApi) verifyCode(ctx echo.Context) error {
	vc, err := api.svc.Verify(ctx.Request().Context(), ctx.Param("code"))
	if err != nil {
		return errors.Wrap(err, "verifying code")
	}
	return ctx.JSON(http.StatusOK, vc)
}

func (api *parentApi) register(ctx echo.Context) error {
	var data parent.NewParent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewParent")
	}

	usr, st, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering parent")
	}
	token, err := GenerateToken(api.conf, GetUserClaims(api.conf, usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusCreated, LinkResponse{
		User:        &usr,
		Student:     st,
		Token:       token,
		RedirectURL: user.PortalURL(usr.Roles),
	})
}

func (api *parentApi) link(ctx echo.Context) error {
	var data LinkRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LinkRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	st, err := api.svc.Redeem(ctx.Request().Context(), data.Code, usr)
	if err != nil {
		return errors.Wrap(err, "redeeming verification code")
	}

	// roles may have changed: issue a fresh token
	usr, err = api.users.GetByID(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "finding user by ID")
	}
	token, err := GenerateToken(api.conf, GetUserClaims(api.conf, usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LinkResponse{
		Student:     st,
		Token:       token,
		RedirectURL: user.PortalURL(usr.Roles),
	})
}

type (
	CodesQuery struct {
		StudentID string `query:"student_id" json:"student_id" validate:"required"`
	}

	LinkRequest struct {
		Code string `json:"code" validate:"required"`
	}

	LinkResponse struct {
		User        *user.User       `json:"user,omitempty"`
		Student     academic.Student `json:"student"`
		Token       string           `json:"token"`
		RedirectURL string           `json:"redirect_url"`
	}
)
