package core

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx.
	DBExecutor interface {
		sqlx.ExtContext
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	}

	DB interface {
		DBExecutor

		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
		Close() error
	}
)

// InTx runs fn inside a transaction, rolling back on error.
func InTx(ctx context.Context, db DB, fn func(tx DBExecutor) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// CleanOrderings drops orderings on fields that are not in allowed.
func CleanOrderings(orderings []DBOrdering, allowed ...string) []DBOrdering {
	cleaned := make([]DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		for _, fld := range allowed {
			if ord.Field == fld {
				cleaned = append(cleaned, ord)
				break
			}
		}
	}
	return cleaned
}
