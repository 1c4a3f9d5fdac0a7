package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Diagnostics is the log-only view of a failure. It never reaches a response
// body.
type Diagnostics struct {
	Message string
	Code    Code
	Chain   []string
	DB      *DatabaseDetail
}

// DatabaseDetail carries the driver fields of a Postgres error, whichever of
// pgx or lib/pq raised it.
type DatabaseDetail struct {
	SQLState   string
	Constraint string
	Table      string
	Column     string
	Detail     string
	Message    string
}

func Diagnose(err error) Diagnostics {
	if err == nil {
		return Diagnostics{}
	}
	diag := Diagnostics{Message: err.Error(), Code: CodeOf(err), DB: databaseDetail(err)}
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		diag.Chain = append(diag.Chain, fmt.Sprintf("%T: %v", cur, cur))
	}
	return diag
}

func databaseDetail(err error) *DatabaseDetail {
	if pgxErr := (*pgconn.PgError)(nil); errors.As(err, &pgxErr) {
		return &DatabaseDetail{
			SQLState:   pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	if pqErr := (*pq.Error)(nil); errors.As(err, &pqErr) {
		return &DatabaseDetail{
			SQLState:   string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}

// Fields flattens the diagnostics for structured logging. Database fields are
// only present when a driver error sits in the chain.
func (d Diagnostics) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.Message,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	if d.DB != nil {
		fields["pg_code"] = d.DB.SQLState
		fields["pg_constraint"] = d.DB.Constraint
		fields["pg_table"] = d.DB.Table
		fields["pg_column"] = d.DB.Column
		fields["pg_detail"] = d.DB.Detail
		fields["pg_message"] = d.DB.Message
	}
	return fields
}
