package errors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// StorageFields extracts structured log fields from a storage failure. The
// error text itself is left to the logger.
func StorageFields(err error) map[string]any {
	if err == nil {
		return nil
	}
	fields := map[string]any{}
	if te := As(err); te != nil {
		fields["error_code"] = string(te.Code())
	}

	depth := 0
	for e := err; e != nil; e = errors.Unwrap(e) {
		depth++
	}
	fields["error_depth"] = depth

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		addPG(fields, pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName)
		return fields
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		addPG(fields, string(pqErr.Code), pqErr.Constraint, pqErr.Table)
	}
	return fields
}

func addPG(fields map[string]any, code, constraint, table string) {
	fields["pg_code"] = code
	if constraint != "" {
		fields["pg_constraint"] = constraint
	}
	if table != "" {
		fields["pg_table"] = table
	}
}
