package sqlstore

import (
	"database/sql"
	"fmt"
)

// dialect holds what differs between the supported databases. Queries use
// "?" placeholders, which both drivers accept.
type dialect struct {
	name   string
	schema []string

	// forUpdate and forShare are appended to row-locking reads. SQLite has no
	// row locks; its transactions are serializable and a writer that read a
	// snapshot another connection has since changed fails with SQLITE_BUSY.
	forUpdate string
	forShare  string

	// txOptions is used for every read-write transaction.
	txOptions *sql.TxOptions
}

// Groups must be created BEFORE the ledger tables due to foreign key constraints.
// "groups" is a reserved word in MySQL 8, hence expense_groups.
var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT NOT NULL UNIQUE,
    created_at INTEGER NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS expense_groups (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS group_members (
    group_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (group_id, user_id),
    FOREIGN KEY (group_id) REFERENCES expense_groups(id) ON DELETE CASCADE,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
)`,
		`CREATE TABLE IF NOT EXISTS expenses (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL,
    description TEXT NOT NULL,
    amount TEXT NOT NULL,
    paid_by TEXT NOT NULL,
    split_type TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    FOREIGN KEY (group_id) REFERENCES expense_groups(id) ON DELETE CASCADE
)`,
		`CREATE TABLE IF NOT EXISTS expense_splits (
    expense_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    amount TEXT NOT NULL,
    percentage TEXT,
    PRIMARY KEY (expense_id, user_id),
    FOREIGN KEY (expense_id) REFERENCES expenses(id) ON DELETE CASCADE
)`,
		`CREATE TABLE IF NOT EXISTS settlements (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL,
    from_user_id TEXT NOT NULL,
    to_user_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    description TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    FOREIGN KEY (group_id) REFERENCES expense_groups(id) ON DELETE CASCADE
)`,
		`CREATE INDEX IF NOT EXISTS idx_group_members_user_id ON group_members(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_group_id ON expenses(group_id)`,
		`CREATE INDEX IF NOT EXISTS idx_settlements_group_id ON settlements(group_id)`,
	},
}

// Read-write transactions run at READ COMMITTED so that reads issued after a
// row lock is granted see every transaction that held the lock before.
var mysqlDialect = dialect{
	name:      "mysql",
	forUpdate: " FOR UPDATE",
	forShare:  " LOCK IN SHARE MODE",
	txOptions: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
	schema: []string{
		`CREATE TABLE IF NOT EXISTS users (
    id VARCHAR(36) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    email VARCHAR(255) NOT NULL UNIQUE,
    created_at BIGINT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS expense_groups (
    id VARCHAR(36) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    description TEXT NOT NULL,
    created_at BIGINT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS group_members (
    group_id VARCHAR(36) NOT NULL,
    user_id VARCHAR(36) NOT NULL,
    position INT NOT NULL,
    PRIMARY KEY (group_id, user_id),
    INDEX idx_group_members_user_id (user_id),
    FOREIGN KEY (group_id) REFERENCES expense_groups(id) ON DELETE CASCADE,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
)`,
		`CREATE TABLE IF NOT EXISTS expenses (
    id VARCHAR(36) PRIMARY KEY,
    group_id VARCHAR(36) NOT NULL,
    description VARCHAR(255) NOT NULL,
    amount DECIMAL(20,2) NOT NULL,
    paid_by VARCHAR(36) NOT NULL,
    split_type VARCHAR(16) NOT NULL,
    created_at BIGINT NOT NULL,
    seq BIGINT NOT NULL,
    INDEX idx_expenses_group_id (group_id),
    FOREIGN KEY (group_id) REFERENCES expense_groups(id) ON DELETE CASCADE
)`,
		`CREATE TABLE IF NOT EXISTS expense_splits (
    expense_id VARCHAR(36) NOT NULL,
    user_id VARCHAR(36) NOT NULL,
    position INT NOT NULL,
    amount DECIMAL(20,2) NOT NULL,
    percentage DECIMAL(12,6) NULL,
    PRIMARY KEY (expense_id, user_id),
    FOREIGN KEY (expense_id) REFERENCES expenses(id) ON DELETE CASCADE
)`,
		`CREATE TABLE IF NOT EXISTS settlements (
    id VARCHAR(36) PRIMARY KEY,
    group_id VARCHAR(36) NOT NULL,
    from_user_id VARCHAR(36) NOT NULL,
    to_user_id VARCHAR(36) NOT NULL,
    amount DECIMAL(20,2) NOT NULL,
    description VARCHAR(255) NOT NULL,
    created_at BIGINT NOT NULL,
    seq BIGINT NOT NULL,
    INDEX idx_settlements_group_id (group_id),
    FOREIGN KEY (group_id) REFERENCES expense_groups(id) ON DELETE CASCADE
)`,
	},
}

// runMigrations executes the schema setup one statement at a time
// (the MySQL driver rejects multi-statement Exec by default).
func runMigrations(db *sql.DB, d dialect) error {
	for i, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("%s migration %d: %w", d.name, i, err)
		}
	}
	return nil
}
