package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestStorageFieldsPGX(t *testing.T) {
	err := fmt.Errorf("upsert guest list: %w", &pgconn.PgError{Code: "23505", ConstraintName: "guest_lists_pkey", TableName: "guest_lists"})
	fields := StorageFields(err)
	assert.Equal(t, "23505", fields["pg_code"])
	assert.Equal(t, "guest_lists_pkey", fields["pg_constraint"])
	assert.Equal(t, "guest_lists", fields["pg_table"])
	assert.Equal(t, 2, fields["error_depth"])
}

func TestStorageFieldsPQAndCoded(t *testing.T) {
	err := Wrap(CodeDependency, &pq.Error{Code: "57P01"}, "guest store unavailable")
	fields := StorageFields(err)
	assert.Equal(t, "57P01", fields["pg_code"])
	assert.Equal(t, string(CodeDependency), fields["error_code"])
	assert.NotContains(t, fields, "pg_table")
}

func TestStorageFieldsNil(t *testing.T) {
	assert.Nil(t, StorageFields(nil))
}
