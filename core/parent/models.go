package parent

import (
	"strings"
	"time"

	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/user"
)

const (
	// CodeLength is the length of a verification code.
	CodeLength = 8
	// CodeAlphabet omits the look-alike characters 0 O 1 I L.
	CodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

	DefaultCodeTTL = 7 * 24 * time.Hour
)

// VerificationCode lets a parent link their account to a student, once.
type VerificationCode struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	Code        string    `json:"code"`
	ParentEmail string    `json:"parent_email"`
	ParentName  string    `json:"parent_name"`
	IsUsed      bool      `json:"is_used"`
	UsedByID    string    `json:"used_by_id,omitempty"`
	UsedAt      time.Time `json:"used_at,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedByID string    `json:"created_by_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Notes       string    `json:"notes"`
}

func (vc VerificationCode) IsExpired(now time.Time) bool {
	return now.After(vc.ExpiresAt)
}

// IsValid reports whether the code can still be redeemed.
func (vc VerificationCode) IsValid(now time.Time) bool {
	return !vc.IsUsed && !vc.IsExpired(now)
}

// NormalizeCode upper-cases the code and strips whitespace and dashes users tend to type.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.NewReplacer(" ", "", "-", "", "\t", "").Replace(code))
}

type NewCode struct {
	StudentID   string `json:"student_id" validate:"required"`
	ParentEmail string `json:"parent_email" validate:"required,email"`
	ParentName  string `json:"parent_name" validate:"required"`
	Notes       string `json:"notes"`
	CreatedByID string `json:"-"`
}

func (nc *NewCode) Clean() {
	nc.ParentEmail = core.CleanString(nc.ParentEmail, true /* lower */)
	nc.ParentName = core.CleanString(nc.ParentName)
	nc.Notes = strings.TrimSpace(nc.Notes)
}

// NewParent is a parent self-registration: a new account plus a verification code.
type NewParent struct {
	Name            string `json:"name"`
	Username        string `json:"username"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	Code            string `json:"code" validate:"required"`
}

// NewUser returns the account to create, with the parent role.
func (np NewParent) NewUser() user.NewUser {
	nu := user.NewUser{
		Name:            np.Name,
		Username:        np.Username,
		Email:           np.Email,
		Password:        np.Password,
		PasswordConfirm: np.PasswordConfirm,
		Roles:           []string{user.RoleParent},
	}
	nu.Clean()
	return nu
}
