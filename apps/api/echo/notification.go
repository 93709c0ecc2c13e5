package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/schooldriver/schooldriver/core/notification"
	"github.com/schooldriver/schooldriver/core/user"
)

type notificationApi struct {
	svc *notification.Service
}

func registerNotificationAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := notificationApi{svc: deps.NotificationSvc}

	ng := g.Group("/notifications", jwt)
	ng.POST("/test", api.sendTest, roleMiddleware(deps.Conf, user.RoleAdmin))

	dg := ng.Group("/devices", roleMiddleware(deps.Conf))
	dg.POST("", api.registerDevice)
	dg.DELETE("/:token", api.unregisterDevice)
}

func (api *notificationApi) registerDevice(ctx echo.Context) error {
	var data notification.NewDevice
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDevice")
	}

	d, err := api.svc.RegisterDevice(ctx.Request().Context(), getContextPrincipal(ctx).ID, data)
	if err != nil {
		return errors.Wrap(err, "registering device")
	}
	return ctx.JSON(http.StatusCreated, d)
}

func (api *notificationApi) unregisterDevice(ctx echo.Context) error {
	err := api.svc.UnregisterDevice(ctx.Request().Context(), getContextPrincipal(ctx).ID, ctx.Param("token"))
	if err != nil {
		return errors.Wrap(err, "unregistering device")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *notificationApi) sendTest(ctx echo.Context) error {
	var data TestPushRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TestPushRequest")
	}

	id, err := api.svc.SendTest(ctx.Request().Context(), data.Token, data.Title, data.Body)
	if err != nil {
		return errors.Wrap(err, "sending test notification")
	}
	return ctx.JSON(http.StatusOK, TestPushResponse{MessageID: id})
}

type (
	TestPushRequest struct {
		Token string `json:"token"`
		Title string `json:"title"`
		Body  string `json:"body"`
	}

	TestPushResponse struct {
		MessageID string `json:"message_id"`
	}
)
