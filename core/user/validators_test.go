package user

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schooldriver/schooldriver/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func newValidator(t *testing.T) *validator.Validate {
	t.Helper()
	validate := validator.New()
	uni := core.NewUniversalTranslator()
	core.InitValidators(validate, uni)
	InitValidators(validate, uni)
	LoadCommonPasswords(core.NewTestConfig(), nopLogger{})
	return validate
}

func TestNewUser_validation(t *testing.T) {
	validate := newValidator(t)

	valid := func(nu NewUser) NewUser {
		if nu.Name == "" {
			nu.Name = "Jane Doe"
		}
		if nu.Email == "" && nu.Username == "" {
			nu.Email = "jane@test.cd"
		}
		if nu.PasswordConfirm == "" {
			nu.PasswordConfirm = nu.Password
		}
		return nu
	}

	tests := []struct {
		name    string
		nu      NewUser
		wantTag string // empty when valid
		wantFld string
	}{
		{name: "valid", nu: valid(NewUser{Password: "Gr@des2024x", Roles: []string{RoleParent}})},
		{name: "min len", nu: valid(NewUser{Password: "Ab1!"}), wantFld: "password", wantTag: pwdMinLenTag},
		{name: "whitespace", nu: valid(NewUser{Password: "Ab1! cdefgh"}), wantFld: "password", wantTag: pwdNoSpaceTag},
		{name: "all numeric", nu: valid(NewUser{Password: "1234567890"}), wantFld: "password", wantTag: pwdNotAllNumTag},
		{name: "complexity", nu: valid(NewUser{Password: "abcdefgh1"}), wantFld: "password", wantTag: pwdComplexityTag},
		{name: "similar to email", nu: valid(NewUser{Email: "jane@test.cd", Password: "Jane@test.cd1"}), wantFld: "password", wantTag: pwdAttrSimTag},
		{name: "common", nu: valid(NewUser{Password: "P@ssw0rd!"}), wantFld: "password", wantTag: pwdNoCommonTag},
		{name: "unknown role", nu: valid(NewUser{Password: "Gr@des2024x", Roles: []string{"lol"}}), wantFld: "roles", wantTag: allRolesTag},
		{name: "username or email", nu: NewUser{Name: "Jane", Password: "Gr@des2024x", PasswordConfirm: "Gr@des2024x"}, wantFld: "username", wantTag: usernameOrEmailTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.nu)
			if tt.wantTag == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			vErrs, ok := err.(validator.ValidationErrors)
			require.True(t, ok)
			var found bool
			for _, fe := range vErrs {
				if fe.Field() == tt.wantFld && fe.Tag() == tt.wantTag {
					found = true
				}
			}
			assert.True(t, found, "want %s on %s, got %v", tt.wantTag, tt.wantFld, vErrs)
		})
	}
}

func TestValidationTranslations(t *testing.T) {
	validate := validator.New()
	uni := core.NewUniversalTranslator()
	core.InitValidators(validate, uni)
	InitValidators(validate, uni)

	err := validate.Struct(NewUser{Name: "Jane", Email: "jane@test.cd", Password: "abc", PasswordConfirm: "abc"})
	require.Error(t, err)
	fe := err.(validator.ValidationErrors)[0]
	assert.Equal(t, "password must contain at least 8 characters", fe.Translate(core.GetTranslator(uni, core.LangEN)))
	assert.Equal(t, "la contraseña debe contener al menos 8 caracteres", fe.Translate(core.GetTranslator(uni, core.LangES)))
	// unknown locales fall back to english
	assert.Equal(t, "password must contain at least 8 characters", fe.Translate(core.GetTranslator(uni, "fr")))
}
