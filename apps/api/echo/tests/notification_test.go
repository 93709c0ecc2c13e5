package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/schooldriver/schooldriver/apps/api/echo"
	"github.com/schooldriver/schooldriver/core/notification"
	"github.com/schooldriver/schooldriver/core/user"
)

func Test_notificationApi_devices(t *testing.T) {
	app := setup(t)
	f := setupSchool(t, app)
	devicesPath := "/v1/notifications/devices"

	app.run(t, []httpTest{
		{
			name: "Auth required", method: http.MethodPost, path: devicesPath, body: []byte(`{"token": "abc"}`),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "invalid platform", method: http.MethodPost, path: devicesPath, token: f.parentToken,
			body:     []byte(`{"token": "abc", "platform": "blackberry"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"platform": "platform must be one of [android ios web]"}`),
		},
		{
			name: "unknown device", method: http.MethodDelete, path: devicesPath + "/nope", token: f.parentToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: notification.ErrDeviceNotFound.Error()}),
		},
	})

	rec := app.do(http.MethodPost, devicesPath, f.parentToken, []byte(`{"token": " phone-1 ", "platform": "iOS"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var d notification.Device
	unmarshal(t, rec, &d)
	assert.Equal(t, "phone-1", d.Token)
	assert.Equal(t, "ios", d.Platform)
	assert.True(t, d.IsActive)

	// only the owner can unregister it
	rec = app.do(http.MethodDelete, devicesPath+"/phone-1", f.strangerToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = app.do(http.MethodDelete, devicesPath+"/phone-1", f.parentToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func Test_notificationApi_sendTest(t *testing.T) {
	app := setup(t)
	f := setupSchool(t, app)
	testPath := "/v1/notifications/test"

	app.run(t, []httpTest{
		{
			name: "Admin required", method: http.MethodPost, path: testPath, body: []byte(`{"token": "abc"}`), token: f.teacherToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: user.PermissionDeniedMessage}),
		},
		{
			name: "token required", method: http.MethodPost, path: testPath, body: []byte(`{}`), token: f.adminToken,
			wantCode: http.StatusBadRequest,
		},
	})

	rec := app.do(http.MethodPost, testPath, f.adminToken, []byte(`{"token": "abc", "title": "Hello"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res TestPushResponse
	unmarshal(t, rec, &res)
	assert.NotEmpty(t, res.MessageID)

	require.Len(t, app.push.Sent(), 1)
	assert.Equal(t, "abc", app.push.Sent()[0].Token)
	assert.Equal(t, "Hello", app.push.Sent()[0].Title)
	assert.Equal(t, "Push notifications are working.", app.push.Sent()[0].Body)
}
