package sqlite

import "database/sql"

const schemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
    id                TEXT PRIMARY KEY,
    environment       TEXT NOT NULL,
    state             TEXT NOT NULL
                      CHECK(state IN ('queued','running','completed','timed_out','resource_exceeded','crash_failed','cancelled')),
    owner             TEXT NOT NULL DEFAULT '',
    correlation_token TEXT NOT NULL DEFAULT '',
    created_at        DATETIME NOT NULL,
    ended_at          DATETIME,
    document          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_owner ON runs(owner);
CREATE INDEX IF NOT EXISTS idx_runs_ended ON runs(ended_at DESC);
`

func runMigrations(db *sql.DB) error {
	var current int
	row := db.QueryRow("SELECT version FROM schema_version LIMIT 1")
	if err := row.Scan(&current); err != nil {
		current = 0
	}

	if current >= schemaVersion {
		return nil
	}

	if current < 1 {
		if _, err := db.Exec(schemaV1); err != nil {
			return err
		}
	}

	_, err := db.Exec(`
		DELETE FROM schema_version;
		INSERT INTO schema_version (version) VALUES (?)`, schemaVersion)
	return err
}
