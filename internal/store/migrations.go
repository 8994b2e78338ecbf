package store

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"submind/internal/logging"
)

// Schema versions:
// v1: agents, thoughts, tasks, questions, answers, research, likes
// v2: task dependency edges and issues, agent leases, directive document,
//     subtask parent links, related-thought scores
const CurrentSchemaVersion = 2

// Migration defines a database schema migration.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists column additions for databases created at v1.
// Tables added in v2 are created by the schema itself (CREATE IF NOT EXISTS).
var pendingMigrations = []Migration{
	{"agents", "directive_uuid", "TEXT NOT NULL DEFAULT ''"},
	{"tasks", "parent_task_id", "INTEGER"},
	{"related_thoughts", "score", "REAL NOT NULL DEFAULT 0"},
	{"questions", "context_id", "INTEGER"},
}

// RunMigrations applies schema migrations for existing databases and records
// the resulting version. A file-backed database is copied aside before any
// column is added.
func RunMigrations(db *sql.DB, dbPath string) error {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()

	from := GetSchemaVersion(db)
	if from >= CurrentSchemaVersion {
		logging.StoreDebug("Schema at version %d, nothing to migrate", from)
		if !tableExists(db, "schema_versions") {
			return SetSchemaVersion(db, from)
		}
		return nil
	}

	if from > 0 && dbPath != "" && dbPath != ":memory:" {
		if _, err := CreateBackup(dbPath); err != nil {
			return fmt.Errorf("backup before migration: %w", err)
		}
	}

	logging.Store("Running schema migrations v%d -> v%d (%d column checks)", from, CurrentSchemaVersion, len(pendingMigrations))

	applied := 0
	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			logging.StoreDebug("Table missing, skipping migration: %s.%s", m.Table, m.Column)
			continue
		}
		if columnExists(db, m.Table, m.Column) {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("migration %s.%s failed: %w", m.Table, m.Column, err)
		}
		logging.Store("Migration applied: added %s.%s", m.Table, m.Column)
		applied++
	}

	if err := SetSchemaVersion(db, CurrentSchemaVersion); err != nil {
		return err
	}
	logging.Store("Schema migrations complete: applied=%d", applied)
	return nil
}

// columnExists checks if a column exists in a table using PRAGMA table_info.
func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		logging.StoreDebug("PRAGMA table_info(%s) failed: %v", table, err)
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

// tableExists checks if a table exists in the database.
func tableExists(db *sql.DB, table string) bool {
	var count int
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	if err := db.QueryRow(query, table).Scan(&count); err != nil {
		logging.StoreDebug("Table existence check failed for %s: %v", table, err)
		return false
	}
	return count > 0
}

// GetSchemaVersion returns the recorded schema version, inferring it from the
// table structure when no version has been recorded.
func GetSchemaVersion(db *sql.DB) int {
	if tableExists(db, "schema_versions") {
		var version int
		query := "SELECT version FROM schema_versions ORDER BY id DESC LIMIT 1"
		if err := db.QueryRow(query).Scan(&version); err == nil {
			return version
		}
	}
	return inferSchemaVersion(db)
}

func inferSchemaVersion(db *sql.DB) int {
	if !tableExists(db, "agents") {
		return 0
	}
	if columnExists(db, "agents", "directive_uuid") && columnExists(db, "tasks", "parent_task_id") {
		return 2
	}
	return 1
}

// SetSchemaVersion records a new schema version in the database.
func SetSchemaVersion(db *sql.DB, version int) error {
	createTable := `
		CREATE TABLE IF NOT EXISTS schema_versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			description TEXT
		)
	`
	if _, err := db.Exec(createTable); err != nil {
		return fmt.Errorf("failed to create schema_versions table: %w", err)
	}

	desc := fmt.Sprintf("Migrated to schema version %d", version)
	if _, err := db.Exec("INSERT INTO schema_versions (version, description) VALUES (?, ?)", version, desc); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	logging.Store("Schema version set to %d", version)
	return nil
}

// CreateBackup creates a backup copy of the database file.
func CreateBackup(dbPath string) (string, error) {
	timer := logging.StartTimer(logging.CategoryStore, "CreateBackup")
	defer timer.Stop()

	backupPath := dbPath + fmt.Sprintf(".backup_%s", time.Now().Format("20060102_150405"))

	src, err := os.Open(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to open source database: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(backupPath)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	bytesCopied, err := io.Copy(dst, src)
	if err != nil {
		return "", fmt.Errorf("failed to copy database to backup: %w", err)
	}
	if err := dst.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync backup to disk: %w", err)
	}

	logging.Store("Database backup created: %s (%d bytes)", backupPath, bytesCopied)
	return backupPath, nil
}
