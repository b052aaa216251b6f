// Package postgres wraps gorm with the PostgreSQL driver.
//
// It keeps the active *gorm.DB behind an atomic pointer so a background
// monitor can swap in a fresh connection after a failure without blocking
// readers, exposes Transaction for atomic multi-table writes, Migrate for
// AutoMigrate plus extension setup (pgvector), and TranslateError to map driver
// errors to package sentinels.
//
// Repositories in corpus, vectordb and runstore take a Client and always go
// through DB().WithContext(ctx) so that a connection swap is picked up on the
// next call.
package postgres
