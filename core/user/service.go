package user

import (
	"context"
	"errors"
	"time"

	"github.com/schooldriver/schooldriver/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
)

type (
	Repository interface {
		// CheckUsernameUniqueness returns ErrUsernameExists or ErrEmailExists when taken by a user not in excludedUsers.
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		AddRoles(ctx context.Context, userID string, roles []string, exec ...core.DBExecutor) error
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	ServiceInterface interface {
		CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error
		Create(ctx context.Context, nu NewUser, exec ...core.DBExecutor) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		AddRoles(ctx context.Context, id string, roles []string, exec ...core.DBExecutor) error
		SetLastLogin(ctx context.Context, usr User) (User, error)
		SetPassword(ctx context.Context, uname, pwd string) error
	}

	Service struct {
		repo Repository
	}
)

var _ ServiceInterface = (*Service)(nil)

var orderingFields = []string{"name", "username", "email", "is_active", "created_at", "updated_at", "last_login"}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, exclUsers); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// Create saves a new active user. nu is expected to be validated.
func (svc *Service) Create(ctx context.Context, nu NewUser, exec ...core.DBExecutor) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr, exec...)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: false}}
	}
	return svc.repo.QueryUsers(ctx, filter, core.CleanOrderings(ordering, orderingFields...))
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	uname = core.CleanString(uname, true /* lower */)
	if uname == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: uname})
}

// AddRoles grants roles the user does not have yet.
func (svc *Service) AddRoles(ctx context.Context, id string, roles []string, exec ...core.DBExecutor) error {
	return svc.repo.AddRoles(ctx, id, roles, exec...)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) SetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}
