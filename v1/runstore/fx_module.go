package runstore

import "go.uber.org/fx"

// FXModule provides the PostgreSQL Store. It expects a postgres.Client in the
// graph; the tables are created by migrating Models().
var FXModule = fx.Module("runstore",
	fx.Provide(
		NewPGStore,
		func(s *PGStore) Store { return s },
	),
)

// MemoryFXModule provides an in-process Store.
var MemoryFXModule = fx.Module("runstore-memory",
	fx.Provide(
		NewMemoryStore,
		func(s *MemoryStore) Store { return s },
	),
)
