package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/schooldriver/schooldriver/core"
)

// Roles
const (
	// Admin
	RoleAdmin          = "admin:"
	RoleAdminOwner     = "admin:owner"
	RoleAdminPrincipal = "admin:principal"

	// Teacher (school staff)
	RoleTeacher = "teacher:"

	// Parent
	RoleParent = "parent:"

	// Student
	RoleStudent = "student:"
)

// role families, by descending priority
var families = []string{RoleAdmin, RoleTeacher, RoleParent, RoleStudent}

var (
	AdminRoles   = []string{RoleAdmin, RoleAdminOwner, RoleAdminPrincipal}
	TeacherRoles = []string{RoleTeacher}
	ParentRoles  = []string{RoleParent}
	StudentRoles = []string{RoleStudent}
	AllRoles     = getAllRoles()

	rolePriorities = map[string]int{
		// Admins: 30 - 21
		RoleAdminOwner:     30,
		RoleAdminPrincipal: 29,
		RoleAdmin:          21,

		// Teachers: 20 - 11
		RoleTeacher: 11,

		// Parents: 10 - 6
		RoleParent: 6,

		// Students: 5 - 1
		RoleStudent: 1,
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Parent", Value: RoleParent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Admin Principal", Value: RoleAdminPrincipal},
		{Name: "Admin Owner", Value: RoleAdminOwner},
	}

	// portal home per role family
	portalURLs = map[string]string{
		RoleAdmin:   "/admin/",
		RoleTeacher: "/dashboard/",
		RoleParent:  "/parent/",
		RoleStudent: "/student/",
	}
	defaultPortalURL = "/dashboard/"
)

func getAllRoles() []string {
	all := make([]string, 0, 6)
	all = append(all, AdminRoles...)
	all = append(all, TeacherRoles...)
	all = append(all, ParentRoles...)
	all = append(all, StudentRoles...)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

// PrimaryRole returns the family ("admin:", "teacher:", ...) of the highest priority role, or "".
func PrimaryRole(roles []string) string {
	for _, family := range families {
		for _, role := range roles {
			if strings.HasPrefix(role, family) {
				return family
			}
		}
	}
	return ""
}

// PortalURL returns the home page of the portal matching the primary role.
func PortalURL(roles []string) string {
	if url, ok := portalURLs[PrimaryRole(roles)]; ok {
		return url
	}
	return defaultPortalURL
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u *User) IsTeacher() bool {
	return u.RoleStartsWith(RoleTeacher)
}

func (u *User) IsParent() bool {
	return u.RoleStartsWith(RoleParent)
}

func (u *User) IsStudent() bool {
	return u.RoleStartsWith(RoleStudent)
}

func (u *User) Principal() Principal {
	return Principal{ID: u.ID, Username: u.Username, Roles: u.Roles, Authenticated: true}
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Clean() {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
}

// Validate cleans and validates nu, then checks that username and email are not taken.
func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc ServiceInterface) error {
	nu.Clean()
	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single user; the first non-empty field is used.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail string
}
