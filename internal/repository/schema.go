package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaCategories = `
CREATE TABLE IF NOT EXISTS categories (
    id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    name TEXT NOT NULL,
    color TEXT,
    rules TEXT NOT NULL,
    logic TEXT NOT NULL DEFAULT 'or',
    query TEXT,
    expression TEXT,
    position INTEGER NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, account_id)
);

CREATE INDEX IF NOT EXISTS idx_categories_account ON categories(account_id);
CREATE INDEX IF NOT EXISTS idx_categories_position ON categories(account_id, position);
`

const schemaClassifications = `
CREATE TABLE IF NOT EXISTS classifications (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    message_id TEXT NOT NULL,
    matched INTEGER NOT NULL,
    category_id TEXT,
    category_name TEXT,
    color TEXT,
    timestamp TIMESTAMP NOT NULL,
    process_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_classifications_account ON classifications(account_id);
CREATE INDEX IF NOT EXISTS idx_classifications_message ON classifications(account_id, message_id);
CREATE INDEX IF NOT EXISTS idx_classifications_category ON classifications(account_id, category_id);
CREATE INDEX IF NOT EXISTS idx_classifications_timestamp ON classifications(account_id, timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCategories,
		schemaClassifications,
	}
}
