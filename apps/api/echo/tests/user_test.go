package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/schooldriver/schooldriver/apps/api/echo"
	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/user"
	testutil "github.com/schooldriver/schooldriver/tests"
)

func Test_home(t *testing.T) {
	app := setup(t)

	req, rec := newRequest(http.MethodGet, "/")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to SchoolDriver API!", rec.Body.String())
}

func Test_userApi_login(t *testing.T) {
	app := setup(t, func(conf *core.Config) { conf.RateLimit.Login.Limit = 100 })

	testutil.CreateUser(t, app.usrRepo, "Jane Wilson", "jane", "jane@test.cd", "Sunflower#42", []string{user.RoleParent}, true)
	testutil.CreateUser(t, app.usrRepo, "N Dog", "ndog", "ndog@test.cd", "Sunflower#42", []string{user.RoleStudent}, false)

	login := func(uname, pwd string) []byte {
		return marchallObj(t, LoginRequest{Username: uname, Password: pwd})
	}
	app.run(t, []httpTest{
		{
			name: "missing fields", method: http.MethodPost, path: "/v1/users/login", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"username": "this field is required", "password": "this field is required"}`),
		},
		{
			name: "missing fields (es)", method: http.MethodPost, path: "/v1/users/login?lang=es", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"username": "este campo es obligatorio", "password": "este campo es obligatorio"}`),
		},
		{
			name: "unknown user", method: http.MethodPost, path: "/v1/users/login", body: login("lol", "Sunflower#42"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/users/login", body: login("jane", "lol"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/v1/users/login", body: login("ndog", "Sunflower#42"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	t.Run("success", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/users/login", "", login(" JANE@test.cd ", "Sunflower#42"))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res LoginResponse
		unmarshal(t, rec, &res)
		assert.NotEmpty(t, res.Token)
		assert.Equal(t, "/parent/", res.RedirectURL)

		// the token is accepted
		rec = app.do(http.MethodGet, "/v1/users/me", res.Token)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func Test_userApi_me(t *testing.T) {
	app := setup(t)

	teacher := testutil.CreateUser(t, app.usrRepo, "Bob Teacher", "bob", "bob@test.cd", "", []string{user.RoleTeacher}, true)

	app.run(t, []httpTest{
		{name: "Auth required", path: "/v1/users/me", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "invalid token", path: "/v1/users/me", token: "lol",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
	})

	rec := app.do(http.MethodGet, "/v1/users/me", app.getToken(t, teacher))
	require.Equal(t, http.StatusOK, rec.Code)
	var res struct {
		ID          string   `json:"id"`
		Username    string   `json:"username"`
		Roles       []string `json:"roles"`
		RedirectURL string   `json:"redirect_url"`
	}
	unmarshal(t, rec, &res)
	assert.Equal(t, teacher.ID, res.ID)
	assert.Equal(t, "bob", res.Username)
	assert.Equal(t, []string{user.RoleTeacher}, res.Roles)
	assert.Equal(t, "/dashboard/", res.RedirectURL)
}

func Test_userApi_tokenRefresh(t *testing.T) {
	app := setup(t)

	usr := testutil.CreateUser(t, app.usrRepo, "Jane", "jane", "", "", []string{user.RoleParent}, true)
	token := app.getToken(t, usr)

	rec := app.do(http.MethodPost, "/v1/users/token-refresh", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var res LoginResponse
	unmarshal(t, rec, &res)
	assert.NotEmpty(t, res.Token)

	// deactivated users cannot refresh
	usr.IsActive = false
	_, err := app.usrRepo.UpdateUser(context.Background(), usr)
	require.NoError(t, err)
	rec = app.do(http.MethodPost, "/v1/users/token-refresh", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func Test_userApi_create(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, app.usrRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	adminToken := app.getToken(t, admin)

	newUser := func(uname, email string, roles ...string) []byte {
		return marchallObj(t, user.NewUser{
			Name:            "New User",
			Username:        uname,
			Email:           email,
			Password:        "Sunflower#42",
			PasswordConfirm: "Sunflower#42",
			Roles:           roles,
		})
	}

	app.run(t, []httpTest{
		{
			name: "Auth required", method: http.MethodPost, path: "/v1/users/register", body: newUser("newbie", ""),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "Admin required", method: http.MethodPost, path: "/v1/users/register", body: newUser("newbie", ""),
			token: app.getToken(t, teacher), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: user.PermissionDeniedMessage}),
		},
		{
			name: "username taken", method: http.MethodPost, path: "/v1/users/register", body: newUser("teacher", ""),
			token: adminToken, wantCode: http.StatusBadRequest,
			wantData: []byte(`{"username": "a user with this username already exists"}`),
		},
		{
			name: "role above own", method: http.MethodPost, path: "/v1/users/register", body: newUser("boss", "", user.RoleAdminOwner),
			token: adminToken, wantCode: http.StatusBadRequest,
			wantData: []byte(`{"roles": "not enough rights to set these roles"}`),
		},
	})

	rec := app.do(http.MethodPost, "/v1/users/register", adminToken, newUser("Newbie", "NEW@test.cd", user.RoleTeacher))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var usr user.User
	unmarshal(t, rec, &usr)
	assert.Equal(t, "newbie", usr.Username)
	assert.Equal(t, "new@test.cd", usr.Email)
	assert.True(t, usr.IsActive)
	assert.Equal(t, []string{user.RoleTeacher}, usr.Roles)
}

func Test_userApi_query(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	testutil.CreateUser(t, app.usrRepo, "Bob Teacher", "bob", "bob@test.cd", "", []string{user.RoleTeacher}, true)
	student := testutil.CreateUser(t, app.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	testutil.CreateUser(t, app.usrRepo, "N Dog", "ndog", "ndog@test.cd", "", []string{user.RoleStudent}, false)
	adminToken := app.getToken(t, admin)

	app.run(t, []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/v1/users", token: app.getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: user.PermissionDeniedMessage}),
		},
		{name: "roles", path: "/v1/users/roles", token: adminToken, wantData: marchallObj(t, user.Roles)},
	})

	tests := []struct {
		name string
		path string
		want []string
	}{
		{name: "all", path: "/v1/users?ordering=username", want: []string{"admin", "bob", "hero", "ndog"}},
		{name: "search", path: "/v1/users?search=TEACH", want: []string{"bob"}},
		{name: "role", path: "/v1/users?role=student:&ordering=-username", want: []string{"ndog", "hero"}},
		{name: "is_active", path: "/v1/users?role=student:&is_active=true", want: []string{"hero"}},
		{name: "unknown ordering field is ignored", path: "/v1/users?search=bob&ordering=password_hash", want: []string{"bob"}},
		{name: "no match", path: "/v1/users?search=lol", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(http.MethodGet, tt.path, adminToken)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var users []user.User
			unmarshal(t, rec, &users)
			got := make([]string, 0, len(users))
			for _, u := range users {
				got = append(got, u.Username)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
