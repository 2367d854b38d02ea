// Package migration applies versioned SQL files to a SQLite database.
//
// Files are named {version}_{description}.sql (e.g. "001_initial_schema.sql")
// and are read from an fs.FS, usually an embedded directory. Each file runs
// in its own transaction and is recorded in the schema_migrations table
// together with its checksum and execution time.
//
//	db, err := migration.OpenDB(migration.DefaultSQLiteConfig("scheduler.db"))
//	...
//	manager := migration.NewManager(migration.NewFileScanner(),
//		migration.NewSQLiteExecutor(db, logger), files, migration.WithLogger(logger))
//	if err := manager.RunMigrations(ctx); err != nil {
//		...
//	}
package migration
