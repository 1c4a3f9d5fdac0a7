package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether the provided error references a unique
// constraint failure (Postgres or SQLite). When constraintName is provided,
// the helper also requires the constraint text in the error.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return constraintName == "" || pgErr.ConstraintName == constraintName
	}
	msg := err.Error()
	unique := strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
	if !unique {
		return false
	}
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return true
}

// IsTimeout reports whether err (or ctx) stems from an expired deadline.
func IsTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// Classify converts a storage failure into the typed error surfaced to callers.
// Typed errors pass through untouched so domain rejections keep their code.
func Classify(ctx context.Context, err error, op string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	switch {
	case IsTimeout(ctx, err):
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, op+": deadline exceeded; the operation was not committed")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, op+": record not found")
	case IsUniqueViolation(err, ""):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, op+": unique constraint violated")
	default:
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, op)
	}
}
