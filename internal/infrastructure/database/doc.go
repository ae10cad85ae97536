// Package database provides SQLite connectivity for HydroCore.
//
// The store is small: job records and the schema_migrations bookkeeping
// table. It runs in WAL mode with a single connection so background job
// goroutines serialize their writes instead of failing with "database is
// locked".
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations live in the top-level migrations package as
// YYYYMMDD_HHMMSS_name.up.sql / .down.sql pairs and are embedded into the
// binary.
package database
