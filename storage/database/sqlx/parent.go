package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/parent"
)

const codeColumns = `id, student_id, code, parent_email, parent_name, is_used, used_by_id, used_at,
	expires_at, created_by_id, created_at, notes`

type codeRow struct {
	ID          string      `db:"id"`
	StudentID   string      `db:"student_id"`
	Code        string      `db:"code"`
	ParentEmail string      `db:"parent_email"`
	ParentName  string      `db:"parent_name"`
	IsUsed      bool        `db:"is_used"`
	UsedByID    null.String `db:"used_by_id"`
	UsedAt      null.Time   `db:"used_at"`
	ExpiresAt   time.Time   `db:"expires_at"`
	CreatedByID null.String `db:"created_by_id"`
	CreatedAt   time.Time   `db:"created_at"`
	Notes       string      `db:"notes"`
}

func (r codeRow) toCode() parent.VerificationCode {
	vc := parent.VerificationCode{
		ID:          r.ID,
		StudentID:   r.StudentID,
		Code:        r.Code,
		ParentEmail: r.ParentEmail,
		ParentName:  r.ParentName,
		IsUsed:      r.IsUsed,
		UsedByID:    r.UsedByID.String,
		ExpiresAt:   r.ExpiresAt.UTC(),
		CreatedByID: r.CreatedByID.String,
		CreatedAt:   r.CreatedAt.UTC(),
		Notes:       r.Notes,
	}
	if r.UsedAt.Valid {
		vc.UsedAt = r.UsedAt.Time.UTC()
	}
	return vc
}

type codeRepository struct {
	db core.DB
}

var _ parent.Repository = (*codeRepository)(nil) // interface compliance check

func NewCodeRepository(db core.DB) *codeRepository {
	return &codeRepository{db: db}
}

func (repo codeRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.db
}

func (repo codeRepository) CreateCode(ctx context.Context, vc parent.VerificationCode, exec ...core.DBExecutor) (parent.VerificationCode, error) {
	row := codeRow{
		ID:          uuid.New().String(),
		StudentID:   vc.StudentID,
		Code:        vc.Code,
		ParentEmail: vc.ParentEmail,
		ParentName:  vc.ParentName,
		ExpiresAt:   vc.ExpiresAt.UTC(),
		CreatedByID: null.NewString(vc.CreatedByID, vc.CreatedByID != ""),
		CreatedAt:   vc.CreatedAt.UTC(),
		Notes:       vc.Notes,
	}
	q := `INSERT INTO parent_verification_code (` + codeColumns + `)
		VALUES (:id, :student_id, :code, :parent_email, :parent_name, :is_used, :used_by_id, :used_at,
			:expires_at, :created_by_id, :created_at, :notes)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		return parent.VerificationCode{}, errors.Wrap(err, "inserting verification code")
	}
	return row.toCode(), nil
}

func (repo codeRepository) CodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error) {
	e := repo.getExec(exec)
	var cnt int
	if err := e.GetContext(ctx, &cnt, e.Rebind("SELECT COUNT(*) FROM parent_verification_code WHERE code = ?"), code); err != nil {
		return false, errors.Wrap(err, "checking verification code")
	}
	return cnt > 0, nil
}

func (repo codeRepository) GetCode(ctx context.Context, code string, exec ...core.DBExecutor) (parent.VerificationCode, error) {
	e := repo.getExec(exec)
	var row codeRow
	if err := e.GetContext(ctx, &row, e.Rebind("SELECT "+codeColumns+" FROM parent_verification_code WHERE code = ?"), code); err != nil {
		if err == sql.ErrNoRows {
			return parent.VerificationCode{}, parent.ErrInvalidCode
		}
		return parent.VerificationCode{}, errors.Wrap(err, "finding verification code")
	}
	return row.toCode(), nil
}

func (repo codeRepository) QueryCodes(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]parent.VerificationCode, error) {
	e := repo.getExec(exec)
	var rows []codeRow
	q := e.Rebind("SELECT " + codeColumns + " FROM parent_verification_code WHERE student_id = ? ORDER BY created_at DESC")
	if err := e.SelectContext(ctx, &rows, q, studentID); err != nil {
		return nil, errors.Wrap(err, "querying verification codes")
	}
	codes := make([]parent.VerificationCode, 0, len(rows))
	for _, r := range rows {
		codes = append(codes, r.toCode())
	}
	return codes, nil
}

// MarkUsed relies on a conditional update so that only one of concurrent redemptions wins.
func (repo codeRepository) MarkUsed(ctx context.Context, code, userID string, now time.Time, exec ...core.DBExecutor) error {
	e := repo.getExec(exec)
	q := e.Rebind(`UPDATE parent_verification_code SET is_used = ?, used_by_id = ?, used_at = ?
		WHERE code = ? AND is_used = ? AND expires_at > ?`)
	res, err := e.ExecContext(ctx, q, true, userID, now.UTC(), code, false, now.UTC())
	if err != nil {
		return errors.Wrap(err, "marking verification code used")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "marking verification code used")
	}
	if n == 0 {
		return parent.ErrInvalidCode
	}
	return nil
}

func (repo codeRepository) DeleteExpired(ctx context.Context, before time.Time, exec ...core.DBExecutor) (int, error) {
	e := repo.getExec(exec)
	q := e.Rebind("DELETE FROM parent_verification_code WHERE is_used = ? AND expires_at < ?")
	res, err := e.ExecContext(ctx, q, false, before.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "deleting expired verification codes")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting expired verification codes")
	}
	return int(n), nil
}
