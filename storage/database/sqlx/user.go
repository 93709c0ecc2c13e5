package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/user"
)

const userColumns = "id, name, username, email, is_active, password_hash, created_at, updated_at, last_login"

type userRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Username     null.String `db:"username"`
	Email        null.String `db:"email"`
	IsActive     bool        `db:"is_active"`
	PasswordHash string      `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

type userRoleRow struct {
	UserID string `db:"user_id"`
	Role   string `db:"role"`
}

type userRepository struct {
	db core.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db core.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.db
}

func (repo userRepository) toRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		IsActive:     usr.IsActive,
		PasswordHash: string(usr.PasswordHash),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) fromRow(row userRow, roles []string) user.User {
	if roles == nil {
		roles = []string{}
	}
	usr := user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username.String,
		Email:        row.Email.String,
		IsActive:     row.IsActive,
		Roles:        roles,
		PasswordHash: []byte(row.PasswordHash),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.LastLogin.Valid {
		usr.LastLogin = row.LastLogin.Time.UTC()
	}
	return usr
}

// loadRoles returns the roles of the given users, keyed by user ID.
func (repo userRepository) loadRoles(ctx context.Context, exec core.DBExecutor, ids []string) (map[string][]string, error) {
	roles := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return roles, nil
	}
	q, args, err := sqlx.In("SELECT user_id, role FROM user_role WHERE user_id IN (?) ORDER BY role", ids)
	if err != nil {
		return nil, err
	}
	var rows []userRoleRow
	if err = exec.SelectContext(ctx, &rows, exec.Rebind(q), args...); err != nil {
		return nil, err
	}
	for _, r := range rows {
		roles[r.UserID] = append(roles[r.UserID], r.Role)
	}
	return roles, nil
}

func (repo userRepository) fromRows(ctx context.Context, exec core.DBExecutor, rows []userRow) ([]user.User, error) {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	roles, err := repo.loadRoles(ctx, exec, ids)
	if err != nil {
		return nil, errors.Wrap(err, "loading user roles")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, repo.fromRow(r, roles[r.ID]))
	}
	return users, nil
}

func (repo userRepository) saveRoles(ctx context.Context, exec core.DBExecutor, userID string, roles []string) error {
	q := exec.Rebind(`INSERT INTO user_role (user_id, role)
		SELECT ?, ? WHERE NOT EXISTS (SELECT 1 FROM user_role WHERE user_id = ? AND role = ?)`)
	for _, role := range roles {
		if _, err := exec.ExecContext(ctx, q, userID, role, userID, role); err != nil {
			return err
		}
	}
	return nil
}

// trapNoRowsErr maps "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	var (
		conds []string
		args  []interface{}
	)
	if username != "" {
		conds = append(conds, "username = ?")
		args = append(args, username)
	}
	if email != "" {
		conds = append(conds, "email = ?")
		args = append(args, email)
	}
	if len(conds) == 0 {
		return nil
	}
	q := "SELECT " + userColumns + " FROM users WHERE (" + strings.Join(conds, " OR ") + ")"
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		q += " AND id NOT IN (?)"
		args = append(args, ids)
	}
	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}

	e := repo.getExec(exec)
	var rows []userRow
	if err = e.SelectContext(ctx, &rows, e.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, r := range rows {
		if username != "" && r.Username.String == username {
			return user.ErrUsernameExists
		}
	}
	if len(rows) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	e := repo.getExec(exec)
	row := repo.toRow(usr)
	q := `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :name, :username, :email, :is_active, :password_hash, :created_at, :updated_at, :last_login)`
	if _, err := sqlx.NamedExecContext(ctx, e, q, row); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	if err := repo.saveRoles(ctx, e, usr.ID, usr.Roles); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user roles")
	}
	return repo.fromRow(row, usr.Roles), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	var (
		conds []string
		args  []interface{}
	)

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + strings.ToLower(filter.Search) + "%"
			conds = append(conds, "(LOWER(name) LIKE ? OR LOWER(username) LIKE ? OR LOWER(email) LIKE ?)")
			args = append(args, val, val, val)
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			roleConds := make([]string, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				roleConds = append(roleConds, "role LIKE ?")
				args = append(args, role+"%")
			}
			conds = append(conds, "id IN (SELECT user_id FROM user_role WHERE "+strings.Join(roleConds, " OR ")+")")
		}
		if filter.IsActive != nil {
			conds = append(conds, "is_active = ?")
			args = append(args, *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			conds = append(conds, "created_at >= ?")
			args = append(args, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			conds = append(conds, "created_at <= ?")
			args = append(args, filter.CreatedTo.UTC())
		}
	}

	q := "SELECT " + userColumns + " FROM users"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	if len(ordering) > 0 {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderList = append(orderList, ord.String())
		}
		q += " ORDER BY " + strings.Join(orderList, ", ")
	}

	e := repo.getExec(exec)
	var rows []userRow
	if err := e.SelectContext(ctx, &rows, e.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return repo.fromRows(ctx, e, rows)
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var (
		cond string
		args []interface{}
	)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		cond, args = "id = ?", []interface{}{filter.ID}
	case filter.Username != "":
		cond, args = "username = ?", []interface{}{filter.Username}
	case filter.Email != "":
		cond, args = "email = ?", []interface{}{filter.Email}
	case filter.UsernameOrEmail != "":
		cond, args = "username = ? OR email = ?", []interface{}{filter.UsernameOrEmail, filter.UsernameOrEmail}
	default:
		return user.User{}, user.ErrNotFound
	}

	e := repo.getExec(exec)
	var row userRow
	if err := e.GetContext(ctx, &row, e.Rebind("SELECT "+userColumns+" FROM users WHERE "+cond), args...); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user")
	}
	users, err := repo.fromRows(ctx, e, []userRow{row})
	if err != nil {
		return user.User{}, err
	}
	return users[0], nil
}

// UpdateUser saves every field of usr and replaces its roles.
func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	e := repo.getExec(exec)
	row := repo.toRow(usr)
	q := `UPDATE users SET name = :name, username = :username, email = :email, is_active = :is_active,
		password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, e, q, row)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}

	if _, err = e.ExecContext(ctx, e.Rebind("DELETE FROM user_role WHERE user_id = ?"), usr.ID); err != nil {
		return user.User{}, errors.Wrap(err, "updating user roles")
	}
	if err = repo.saveRoles(ctx, e, usr.ID, usr.Roles); err != nil {
		return user.User{}, errors.Wrap(err, "updating user roles")
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID}, e)
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo userRepository) AddRoles(ctx context.Context, userID string, roles []string, exec ...core.DBExecutor) error {
	if err := repo.saveRoles(ctx, repo.getExec(exec), userID, roles); err != nil {
		return errors.Wrap(err, "adding user roles")
	}
	return nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	e := repo.getExec(exec)

	q, args, err := sqlx.In("DELETE FROM user_role WHERE user_id IN (?)", ids)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	if _, err = e.ExecContext(ctx, e.Rebind(q), args...); err != nil {
		return 0, errors.Wrap(err, "deleting user roles")
	}

	q, args, err = sqlx.In("DELETE FROM users WHERE id IN (?)", ids)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	res, err := e.ExecContext(ctx, e.Rebind(q), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(cnt), nil
}
