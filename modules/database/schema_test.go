package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(context.Background(), testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeDB(db) })
	return db
}

func TestModelSchema_Missing(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	schema := NewModelSchema(false, &widget{})

	missing, err := schema.Missing(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []string{"widgets"}, missing)

	require.NoError(t, db.Exec("CREATE TABLE widgets (id integer PRIMARY KEY)").Error)

	missing, err = schema.Missing(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []string{"widgets.name"}, missing)
}

func TestModelSchema_Ensure(t *testing.T) {
	ctx := context.Background()

	t.Run("compatible schema passes", func(t *testing.T) {
		db := openTestDB(t)
		require.NoError(t, db.AutoMigrate(&widget{}))
		assert.NoError(t, NewModelSchema(false, &widget{}).Ensure(ctx, db))
	})

	t.Run("missing table without auto migrate", func(t *testing.T) {
		db := openTestDB(t)
		err := NewModelSchema(false, &widget{}).Ensure(ctx, db)

		var schemaErr *SchemaError
		require.True(t, errors.As(err, &schemaErr))
		assert.Equal(t, []string{"widgets"}, schemaErr.Missing)
		assert.EqualError(t, err, "schema incompatible: missing widgets")
	})

	t.Run("missing column is migrated", func(t *testing.T) {
		db := openTestDB(t)
		require.NoError(t, db.Exec("CREATE TABLE widgets (id integer PRIMARY KEY)").Error)

		schema := NewModelSchema(true, &widget{})
		require.NoError(t, schema.Ensure(ctx, db))

		missing, err := schema.Missing(ctx, db)
		require.NoError(t, err)
		assert.Empty(t, missing)
	})

	t.Run("failed migration", func(t *testing.T) {
		db := openTestDB(t)
		// A view occupying the table name makes CREATE TABLE fail.
		require.NoError(t, db.Exec("CREATE VIEW widgets AS SELECT 1 AS id").Error)

		err := NewModelSchema(true, &widget{}).Ensure(ctx, db)

		var migrationErr *MigrationError
		require.True(t, errors.As(err, &migrationErr), "got %v", err)
		assert.Contains(t, err.Error(), "schema migration failed")
	})
}
