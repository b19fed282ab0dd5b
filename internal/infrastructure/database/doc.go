// Package database provides SQLite connectivity for the camcore event inventory.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations read from any fs.FS (normally the embedded
//     migrations package)
//   - Connection lifecycle
//
// The database is an optional adapter. Nothing in the camera runtime
// depends on it; it only records hot-plug events for later inspection.
//
// Usage:
//
//	db, err := database.Open(database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive-only: new columns must be NULLABLE or have
// DEFAULT values, and each migration ships both .up.sql and .down.sql.
package database
