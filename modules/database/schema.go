package database

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// SchemaChecker verifies, and where allowed repairs, the schema of a freshly
// opened connection. It returns *MigrationError when a migration was
// attempted and failed, *SchemaError when the schema is incompatible, and any
// other error when the check itself could not run.
type SchemaChecker interface {
	Ensure(ctx context.Context, db *gorm.DB) error
}

// MigrationError reports a failed schema migration.
type MigrationError struct {
	Err error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("schema migration failed: %v", e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// SchemaError reports tables or columns missing from the database.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema incompatible: missing %s", strings.Join(e.Missing, ", "))
}

// ModelSchema checks that every table and column of a set of gorm models exists.
type ModelSchema struct {
	models      []any
	autoMigrate bool
}

var _ SchemaChecker = (*ModelSchema)(nil)

// NewModelSchema creates a checker for models. With autoMigrate set, missing
// pieces are created with gorm's AutoMigrate.
func NewModelSchema(autoMigrate bool, models ...any) *ModelSchema {
	return &ModelSchema{models: models, autoMigrate: autoMigrate}
}

// Ensure implements SchemaChecker.
func (s *ModelSchema) Ensure(ctx context.Context, db *gorm.DB) error {
	missing, err := s.Missing(ctx, db)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}
	if !s.autoMigrate {
		return &SchemaError{Missing: missing}
	}

	if err := db.WithContext(ctx).AutoMigrate(s.models...); err != nil {
		return &MigrationError{Err: err}
	}

	missing, err = s.Missing(ctx, db)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}
	return nil
}

// Missing lists absent tables ("products") and columns ("products.price").
func (s *ModelSchema) Missing(ctx context.Context, db *gorm.DB) ([]string, error) {
	tx := db.WithContext(ctx)
	migrator := tx.Migrator()

	var missing []string
	for _, model := range s.models {
		stmt := &gorm.Statement{DB: tx}
		if err := stmt.Parse(model); err != nil {
			return nil, fmt.Errorf("failed to parse model %T: %w", model, err)
		}
		table := stmt.Schema.Table

		if !migrator.HasTable(model) {
			missing = append(missing, table)
			continue
		}
		for _, column := range stmt.Schema.DBNames {
			if !migrator.HasColumn(model, column) {
				missing = append(missing, table+"."+column)
			}
		}
	}
	return missing, nil
}
