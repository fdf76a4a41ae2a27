package sqlite

import (
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the journal database at path and creates its schema.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite serialises writers; one connection avoids SQLITE_BUSY between workers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS intake_outcomes (
		id INTEGER PRIMARY KEY,
		intake_id TEXT NOT NULL,
		lane TEXT NOT NULL,
		file_name TEXT NOT NULL,
		source_path TEXT NOT NULL,
		status TEXT NOT NULL,
		destination TEXT,
		output_path TEXT,
		error TEXT,
		instance_id TEXT,
		size INTEGER,
		started_at TEXT,
		finished_at TEXT,
		swept_at TEXT
	)`); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create intake_outcomes table: %w", err)
	}

	// journals created before the retention sweep lack swept_at
	if err := ensureColumn(db, "intake_outcomes", "swept_at", "TEXT"); err != nil {
		db.Close()

		return nil, err
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_intake_outcomes_lane ON intake_outcomes (lane, finished_at)`); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create intake_outcomes index: %w", err)
	}

	return db, nil
}

func ensureColumn(db *sql.DB, table, column, typ string) error {
	var n int

	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n); err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}

	if n > 0 {
		return nil
	}

	if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, typ)); err != nil {
		return fmt.Errorf("failed to add %s.%s: %w", table, column, err)
	}

	return nil
}
