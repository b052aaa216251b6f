package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Migrate enables the pgvector extension and auto-migrates the given models.
func (p *Postgres) Migrate(ctx context.Context, models ...interface{}) error {
	return migrate(ctx, p.DB(), models...)
}

func migrate(ctx context.Context, db *gorm.DB, models ...interface{}) error {
	db = db.WithContext(ctx)
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("failed to enable pgvector extension: %w", err)
	}
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate models: %w", TranslateError(err))
	}
	return nil
}
