package postgres

import (
	"context"

	"gorm.io/gorm"
)

// txClient is the Client handed to Transaction callbacks. Its DB is the
// transaction handle, and nested Transaction calls become savepoints.
type txClient struct {
	tx *gorm.DB
	pg *Postgres
}

func (t *txClient) DB() *gorm.DB { return t.tx }

func (t *txClient) Transaction(ctx context.Context, fn func(tx Client) error) error {
	return t.tx.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		return fn(&txClient{tx: inner, pg: t.pg})
	})
}

func (t *txClient) Migrate(ctx context.Context, models ...interface{}) error {
	return migrate(ctx, t.tx, models...)
}

// Transaction executes fn within a database transaction. If fn returns an
// error the transaction is rolled back, otherwise committed.
//
// Example:
//
//	err := pg.Transaction(ctx, func(tx postgres.Client) error {
//		if err := tx.DB().Create(&run).Error; err != nil {
//			return err
//		}
//		return tx.DB().Create(&assignments).Error
//	})
func (p *Postgres) Transaction(ctx context.Context, fn func(tx Client) error) error {
	return p.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txClient{tx: tx, pg: p})
	})
}
