// Package database provides SQLite database connectivity for MQTT Vault.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Foreign key enforcement (topic hierarchies cascade on delete)
//   - Schema migrations embedded into the binary
//   - Connection lifecycle management
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Performance Characteristics:
//   - WAL mode allows concurrent reads during writes
//   - Busy timeout prevents lock contention errors
//   - A single open connection matches SQLite's one-writer model; callers
//     serialise writes above this layer
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
