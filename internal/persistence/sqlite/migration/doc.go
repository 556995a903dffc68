// Package migration applies versioned schema changes to SQLite databases.
//
// Migrations are plain SQL files named {version}_{description}.sql (for example
// "001_create_meetings.sql"). They are read from an fs.FS so the binary can embed
// them, executed in ascending version order inside a transaction each, and recorded
// in a schema_migrations table together with a checksum of the file contents.
//
// Example usage:
//
//	manager := NewManager(NewScanner(migrationsFS, "migrations"), NewSQLiteExecutor(db), logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
