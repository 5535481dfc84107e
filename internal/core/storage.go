package core

import (
	"fmt"
	"os"

	"calcore/internal/infra/persistence/memory"
	"calcore/internal/infra/persistence/mongo"
	"calcore/internal/infra/persistence/postgres"
	"calcore/internal/infra/persistence/sqlite"
	"calcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageMongo    StorageDriver = "mongo"    // MongoDB server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	CALCORE_STORAGE_DRIVER: memory|sqlite|postgres|mongo (default sqlite)
//	CALCORE_SQLITE_PATH: path to sqlite file (default ./calcore.db)
//	CALCORE_POSTGRES_DSN: postgres DSN when driver=postgres
//	CALCORE_MONGO_URI / CALCORE_MONGO_DB: connection when driver=mongo
func OpenPersistentStore(engine *domain.RulesEngine) (domain.PersistentStore, error) {
	driver := os.Getenv("CALCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		path := os.Getenv("CALCORE_SQLITE_PATH")
		return sqlite.NewStore(path, engine)
	case StoragePostgres:
		dsn := os.Getenv("CALCORE_POSTGRES_DSN")
		return postgres.NewStore(dsn, engine)
	case StorageMongo:
		uri := os.Getenv("CALCORE_MONGO_URI")
		db := os.Getenv("CALCORE_MONGO_DB")
		return mongo.NewStore(uri, db, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
