package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/schooldriver/schooldriver/apps/api/echo"
	"github.com/schooldriver/schooldriver/core/parent"
	"github.com/schooldriver/schooldriver/core/user"
	emailsvc "github.com/schooldriver/schooldriver/services/email"
	testutil "github.com/schooldriver/schooldriver/tests"
)

func issueCode(t *testing.T, app *testApp, token, studentID string) parent.VerificationCode {
	t.Helper()
	rec := app.do(http.MethodPost, "/v1/parents/verification-codes", token, marchallObj(t, parent.NewCode{
		StudentID:   studentID,
		ParentEmail: "jane@test.cd",
		ParentName:  "Jane Wilson",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var vc parent.VerificationCode
	unmarshal(t, rec, &vc)
	return vc
}

func Test_parentApi_verificationCodes(t *testing.T) {
	app := setup(t)
	f := setupSchool(t, app)
	codesPath := "/v1/parents/verification-codes"

	vc := issueCode(t, app, f.teacherToken, f.emma.ID)
	assert.Len(t, vc.Code, parent.CodeLength)
	assert.Equal(t, f.emma.ID, vc.StudentID)
	assert.NotEmpty(t, vc.CreatedByID)
	require.Len(t, emailsvc.GetSentMessages(), 1)
	assert.Equal(t, "jane@test.cd", emailsvc.GetSentMessages()[0].To[0].Address)

	invalidCode := []byte(`{"code": "Invalid or expired verification code."}`)
	app.run(t, []httpTest{
		{
			name: "Auth required", method: http.MethodPost, path: codesPath, body: []byte(`{}`),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "Staff required", method: http.MethodPost, path: codesPath, body: []byte(`{}`), token: f.parentToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: user.PermissionDeniedMessage}),
		},
		{
			name: "unknown student", method: http.MethodPost, path: codesPath, token: f.adminToken,
			body:     []byte(`{"student_id": "lol", "parent_email": "a@test.cd", "parent_name": "A"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"student_id": "student not found"}`),
		},
		{
			name: "list requires student_id", path: codesPath, token: f.adminToken,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"student_id": "this field is required"}`),
		},
		{
			name: "list", path: codesPath + "?student_id=" + f.emma.ID, token: f.adminToken,
			wantData: marchallObj(t, []parent.VerificationCode{vc}),
		},
		{name: "verify", path: codesPath + "/" + vc.Code, token: f.teacherToken, wantData: marchallObj(t, vc)},
		{name: "verify unknown", path: codesPath + "/ZZZZZZZZ", token: f.teacherToken, wantCode: http.StatusBadRequest, wantData: invalidCode},
	})
}

func Test_parentApi_register(t *testing.T) {
	app := setup(t)
	f := setupSchool(t, app)
	vc := issueCode(t, app, f.adminToken, f.emma.ID)

	register := func(email, code string) []byte {
		return marchallObj(t, parent.NewParent{
			Name:            "Sam Wilson",
			Email:           email,
			Password:        "Sunflower#42",
			PasswordConfirm: "Sunflower#42",
			Code:            code,
		})
	}

	rec := app.do(http.MethodPost, "/v1/parents/register", "", register("sam@test.cd", vc.Code))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res LinkResponse
	unmarshal(t, rec, &res)
	require.NotNil(t, res.User)
	assert.Equal(t, "sam@test.cd", res.User.Email)
	assert.Equal(t, []string{user.RoleParent}, res.User.Roles)
	assert.Equal(t, f.emma.ID, res.Student.ID)
	assert.Equal(t, "/parent/", res.RedirectURL)

	// the new account sees its child right away
	assert.Equal(t, []string{f.emma.ID}, studentIDs(t, app, res.Token))

	app.run(t, []httpTest{
		{
			name: "code already used", method: http.MethodPost, path: "/v1/parents/register", body: register("kim@test.cd", vc.Code),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"code": "Invalid or expired verification code."}`),
		},
		{
			name: "missing code", method: http.MethodPost, path: "/v1/parents/register", body: register("kim@test.cd", ""),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"code": "this field is required"}`),
		},
	})
}

func Test_parentApi_link(t *testing.T) {
	app := setup(t)
	f := setupSchool(t, app)
	vc := issueCode(t, app, f.adminToken, f.emma.ID)

	tom := testutil.CreateUser(t, app.usrRepo, "Tom", "tomcat", "tomcat@test.cd", "", nil, true)
	tomToken := app.getToken(t, tom)
	assert.Empty(t, studentIDs(t, app, tomToken))
	pupil := testutil.CreateUser(t, app.usrRepo, "Pupil", "pupil", "pupil@test.cd", "", []string{user.RoleStudent}, true)
	pupilToken := app.getToken(t, pupil)

	app.run(t, []httpTest{
		{
			name: "Auth required", method: http.MethodPost, path: "/v1/parents/link", body: []byte(`{"code": "` + vc.Code + `"}`),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "invalid code", method: http.MethodPost, path: "/v1/parents/link", body: []byte(`{"code": "nope"}`), token: tomToken,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"code": "Invalid or expired verification code."}`),
		},
		{
			name: "student account", method: http.MethodPost, path: "/v1/parents/link", body: []byte(`{"code": "` + vc.Code + `"}`), token: pupilToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: parent.ErrStudentAccount.Error()}),
		},
	})

	rec := app.do(http.MethodPost, "/v1/parents/link", tomToken, []byte(`{"code": "`+vc.Code+`"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res LinkResponse
	unmarshal(t, rec, &res)
	assert.Nil(t, res.User)
	assert.Equal(t, f.emma.ID, res.Student.ID)
	assert.Equal(t, "/parent/", res.RedirectURL)

	// the fresh token carries the parent role
	assert.Equal(t, []string{f.emma.ID}, studentIDs(t, app, res.Token))
	tom, err := app.usrRepo.GetUser(context.Background(), user.GetFilter{ID: tom.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{user.RoleParent}, tom.Roles)
}
