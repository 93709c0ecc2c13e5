package user

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/schooldriver/schooldriver/core"
)

var (
	allRolesTag  = "allroles"
	allRolesText = core.Text{
		core.LangEN: "invalid roles",
		core.LangES: "roles inválidos",
	}

	usernameOrEmailTag  = "username_or_email"
	usernameOrEmailText = core.Text{
		core.LangEN: "one of username or email is required",
		core.LangES: "se requiere un nombre de usuario o un correo electrónico",
	}

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = core.Text{
		core.LangEN: fmt.Sprintf("password must contain at least %d characters", pwdMinLen),
		core.LangES: fmt.Sprintf("la contraseña debe contener al menos %d caracteres", pwdMinLen),
	}

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = core.Text{
		core.LangEN: "password must not contain whitespace",
		core.LangES: "la contraseña no debe contener espacios",
	}

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = core.Text{
		core.LangEN: "password cannot be entirely numeric",
		core.LangES: "la contraseña no puede ser completamente numérica",
	}

	pwdComplexityTag  = "pwdcplx"
	pwdComplexityText = core.Text{
		core.LangEN: "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character",
		core.LangES: "la contraseña debe contener al menos 1 mayúscula, 1 minúscula, 1 dígito y 1 carácter especial",
	}
	specialRegex = regexp.MustCompile("[^A-Za-z0-9]")

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = core.Text{
		core.LangEN: "password cannot be similar to user attributes",
		core.LangES: "la contraseña no puede parecerse a los datos del usuario",
	}

	pwdNoCommonTag  = "pwdnocommon"
	pwdNoCommonText = core.Text{
		core.LangEN: "password is too common",
		core.LangES: "la contraseña es demasiado común",
	}
	commonPasswords   []string
	commonPasswordsMu sync.RWMutex
)

// InitValidators registers the user validators and their translations.
func InitValidators(validate *validator.Validate, uni *ut.UniversalTranslator) {
	_ = validate.RegisterValidation(allRolesTag, allRolesValidation)
	core.RegisterCustomTranslation(validate, uni, allRolesTag, allRolesText)

	validate.RegisterStructValidation(userStructValidation, NewUser{})
	core.RegisterCustomTranslation(validate, uni, usernameOrEmailTag, usernameOrEmailText)
	core.RegisterCustomTranslation(validate, uni, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, uni, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, uni, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(validate, uni, pwdComplexityTag, pwdComplexityText)
	core.RegisterCustomTranslation(validate, uni, pwdAttrSimTag, pwdAttrSimText)
	core.RegisterCustomTranslation(validate, uni, pwdNoCommonTag, pwdNoCommonText)
}

// LoadCommonPasswords loads the common passwords list from <WorkDir>/assets/common-passwords.txt.gz.
func LoadCommonPasswords(conf *core.Config, logger core.Logger) {
	pwds := make([]string, 0, 512)

	pwdAssetPath := filepath.Join(conf.WorkDir, "assets", "common-passwords.txt.gz")
	file, err := os.Open(pwdAssetPath)
	if err != nil {
		logger.Error(fmt.Sprintf("opening common passwords: %v", err), err)
		return
	}
	//goland:noinspection GoUnhandledErrorResult
	defer file.Close()

	gzRdr, err := gzip.NewReader(file)
	if err != nil {
		logger.Error(fmt.Sprintf("reading common passwords: %v", err), err)
		return
	}
	scanner := bufio.NewScanner(gzRdr)
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			pwds = append(pwds, strings.ToLower(pwd))
		}
	}
	sort.Strings(pwds)

	commonPasswordsMu.Lock()
	commonPasswords = pwds
	commonPasswordsMu.Unlock()
}

func isCommonPassword(pwd string) bool {
	commonPasswordsMu.RLock()
	defer commonPasswordsMu.RUnlock()
	lpwd := strings.ToLower(pwd)
	idx := sort.SearchStrings(commonPasswords, lpwd)
	return idx < len(commonPasswords) && commonPasswords[idx] == lpwd
}

// Custom Validators

// allRolesValidation checks that provided user roles are all in AllRoles
func allRolesValidation(fl validator.FieldLevel) bool {
	if roles, ok := fl.Field().Interface().([]string); ok {
		for _, role := range roles {
			if !core.StringInSlice(role, AllRoles) {
				return false
			}
		}
		return true
	}
	return false
}

// userStructValidation does struct level validation on NewUser.
func userStructValidation(sl validator.StructLevel) {
	if usr, ok := sl.Current().Interface().(NewUser); ok {
		validateUsernameAndEmail(usr, sl)
		ValidatePassword(sl, usr.Password, usr.Name, usr.Username, usr.Email)
	}
}

// validateUsernameAndEmail checks that one of Username or Email is provided
func validateUsernameAndEmail(nu NewUser, sl validator.StructLevel) {
	if len(nu.Username) == 0 && len(nu.Email) == 0 {
		sl.ReportError(nu.Username, "username", "Username", usernameOrEmailTag, "")
		sl.ReportError(nu.Email, "email", "Email", usernameOrEmailTag, "")
	}
}

// ValidatePassword applies the password policy, reporting the first failure on the "password" field:
// - minLen: 8
// - no whitespace
// - no all numeric
// - complexity: 1 upper, 1 lower, 1 digit, 1 special
// - no user attrs similarity
// - no common password
func ValidatePassword(sl validator.StructLevel, pwd, name, uname, email string) {
	reportErr := func(tag string) {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}

	var (
		digitCount         int
		hasUpper, hasLower bool
	)

	runes := []rune(pwd)
	if len(runes) < pwdMinLen {
		reportErr(pwdMinLenTag)
		return
	}
	for _, char := range runes {
		if unicode.IsSpace(char) {
			reportErr(pwdNoSpaceTag)
			return
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
		if !hasUpper && unicode.IsUpper(char) {
			hasUpper = true
		}
		if !hasLower && unicode.IsLower(char) {
			hasLower = true
		}
	}

	if digitCount == len(runes) {
		reportErr(pwdNotAllNumTag)
		return
	}

	if !(hasUpper && hasLower && digitCount > 0 && specialRegex.MatchString(pwd)) {
		reportErr(pwdComplexityTag)
		return
	}

	getRatio := func(pass, usrAttr string) float64 {
		if usrAttr == "" {
			return 0
		}
		return difflib.NewMatcher(strings.Split(strings.ToLower(pass), ""), strings.Split(usrAttr, "")).QuickRatio()
	}
	if getRatio(pwd, strings.ToLower(name)) >= pwdMaxSim ||
		getRatio(pwd, uname) >= pwdMaxSim ||
		getRatio(pwd, email) >= pwdMaxSim {
		reportErr(pwdAttrSimTag)
		return
	}

	if isCommonPassword(pwd) {
		reportErr(pwdNoCommonTag)
		return
	}
}
