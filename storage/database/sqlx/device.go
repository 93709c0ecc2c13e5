package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/notification"
)

const deviceColumns = "id, user_id, token, platform, is_active, created_at, last_seen_at"

type deviceRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	Token      string    `db:"token"`
	Platform   string    `db:"platform"`
	IsActive   bool      `db:"is_active"`
	CreatedAt  time.Time `db:"created_at"`
	LastSeenAt time.Time `db:"last_seen_at"`
}

func (r deviceRow) toDevice() notification.Device {
	return notification.Device{
		ID:         r.ID,
		UserID:     r.UserID,
		Token:      r.Token,
		Platform:   r.Platform,
		IsActive:   r.IsActive,
		CreatedAt:  r.CreatedAt.UTC(),
		LastSeenAt: r.LastSeenAt.UTC(),
	}
}

type deviceRepository struct {
	db core.DB
}

var _ notification.Repository = (*deviceRepository)(nil) // interface compliance check

func NewDeviceRepository(db core.DB) *deviceRepository {
	return &deviceRepository{db: db}
}

func (repo deviceRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.db
}

func (repo deviceRepository) SaveDevice(ctx context.Context, d notification.Device, exec ...core.DBExecutor) (notification.Device, error) {
	e := repo.getExec(exec)

	var row deviceRow
	err := e.GetContext(ctx, &row, e.Rebind("SELECT "+deviceColumns+" FROM device WHERE token = ?"), d.Token)
	switch {
	case err == sql.ErrNoRows:
		row = deviceRow{
			ID:         uuid.New().String(),
			UserID:     d.UserID,
			Token:      d.Token,
			Platform:   d.Platform,
			IsActive:   true,
			CreatedAt:  d.CreatedAt.UTC(),
			LastSeenAt: d.LastSeenAt.UTC(),
		}
		q := e.Rebind("INSERT INTO device (" + deviceColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?)")
		if _, err = e.ExecContext(ctx, q, row.ID, row.UserID, row.Token, row.Platform, row.IsActive, row.CreatedAt, row.LastSeenAt); err != nil {
			return notification.Device{}, errors.Wrap(err, "inserting device")
		}
	case err == nil:
		row.UserID = d.UserID
		row.IsActive = true
		row.LastSeenAt = d.LastSeenAt.UTC()
		if d.Platform != "" {
			row.Platform = d.Platform
		}
		q := e.Rebind("UPDATE device SET user_id = ?, platform = ?, is_active = ?, last_seen_at = ? WHERE id = ?")
		if _, err = e.ExecContext(ctx, q, row.UserID, row.Platform, row.IsActive, row.LastSeenAt, row.ID); err != nil {
			return notification.Device{}, errors.Wrap(err, "updating device")
		}
	default:
		return notification.Device{}, errors.Wrap(err, "finding device")
	}
	return row.toDevice(), nil
}

func (repo deviceRepository) QueryDevices(ctx context.Context, userID string, exec ...core.DBExecutor) ([]notification.Device, error) {
	e := repo.getExec(exec)
	var rows []deviceRow
	q := e.Rebind("SELECT " + deviceColumns + " FROM device WHERE user_id = ? ORDER BY created_at")
	if err := e.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying devices")
	}
	devices := make([]notification.Device, 0, len(rows))
	for _, r := range rows {
		devices = append(devices, r.toDevice())
	}
	return devices, nil
}

func (repo deviceRepository) DeactivateDevice(ctx context.Context, userID, token string, exec ...core.DBExecutor) error {
	e := repo.getExec(exec)
	res, err := e.ExecContext(ctx, e.Rebind("UPDATE device SET is_active = ? WHERE user_id = ? AND token = ?"), false, userID, token)
	if err != nil {
		return errors.Wrap(err, "deactivating device")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "deactivating device")
	}
	if n == 0 {
		return notification.ErrDeviceNotFound
	}
	return nil
}

func (repo deviceRepository) DeactivateToken(ctx context.Context, token string, exec ...core.DBExecutor) error {
	e := repo.getExec(exec)
	if _, err := e.ExecContext(ctx, e.Rebind("UPDATE device SET is_active = ? WHERE token = ?"), false, token); err != nil {
		return errors.Wrap(err, "deactivating device token")
	}
	return nil
}
