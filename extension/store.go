package extension

import (
	"context"
	"fmt"

	"github.com/xraph/patron/store"
	"github.com/xraph/patron/store/memory"
	"github.com/xraph/patron/store/mongo"
	"github.com/xraph/patron/store/postgres"
	"github.com/xraph/patron/store/sqlite"
)

// openStore constructs the backend named by cfg.Driver.
func openStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return memory.New(), nil
	case DriverPostgres:
		return postgres.Open(ctx, cfg.DSN)
	case DriverSQLite:
		return sqlite.Open(ctx, cfg.DSN)
	case DriverMongo:
		database := cfg.Database
		if database == "" {
			database = DefaultConfig().Store.Database
		}
		return mongo.Open(ctx, cfg.DSN, database)
	default:
		return nil, fmt.Errorf("patron: unknown store driver %q", cfg.Driver)
	}
}
