package user

import (
	"net/url"
	"strings"
)

const PermissionDeniedMessage = "You don't have permission to access this page."

// Principal is whoever is making the request.
type Principal struct {
	ID            string
	Username      string
	Roles         []string
	Authenticated bool
}

// Anonymous is the principal of unauthenticated requests.
var Anonymous = Principal{}

func (p Principal) PrimaryRole() string {
	return PrimaryRole(p.Roles)
}

func (p Principal) IsAdmin() bool   { return p.PrimaryRole() == RoleAdmin }
func (p Principal) IsTeacher() bool { return p.PrimaryRole() == RoleTeacher }
func (p Principal) IsParent() bool  { return p.PrimaryRole() == RoleParent }
func (p Principal) IsStudent() bool { return p.PrimaryRole() == RoleStudent }

type Outcome int

const (
	Allow Outcome = iota
	Redirect
	Deny
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	default:
		return "deny"
	}
}

// Decision is the result of a role check.
// RedirectTo is set on Redirect, Reason on Deny.
type Decision struct {
	Outcome    Outcome
	RedirectTo string
	Reason     string
}

type GuardOptions struct {
	LoginURL string
	// Next is the path to come back to after login.
	Next string
	// RaiseException denies instead of redirecting to the login page.
	RaiseException bool
}

// Authorize checks the primary role of p against the allowed role families.
// An empty allowed list admits any authenticated principal.
func Authorize(p Principal, opts GuardOptions, allowed ...string) Decision {
	if p.Authenticated && roleAllowed(p.PrimaryRole(), allowed) {
		return Decision{Outcome: Allow}
	}
	if opts.RaiseException {
		return Decision{Outcome: Deny, Reason: PermissionDeniedMessage}
	}
	return Decision{Outcome: Redirect, RedirectTo: loginRedirect(opts.LoginURL, opts.Next)}
}

func roleAllowed(primary string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	if primary == "" {
		return false
	}
	for _, role := range allowed {
		// allowed roles are reduced to their family: "admin:owner" admits any admin
		if PrimaryRole([]string{role}) == primary {
			return true
		}
	}
	return false
}

func loginRedirect(loginURL, next string) string {
	if loginURL == "" {
		loginURL = "/login"
	}
	if next == "" {
		return loginURL
	}
	sep := "?"
	if strings.Contains(loginURL, "?") {
		sep = "&"
	}
	return loginURL + sep + url.Values{"next": {next}}.Encode()
}
