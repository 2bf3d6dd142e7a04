package snapshot

// Timestamps are stored as unix seconds (UTC). Decimal attributes are stored
// as strings inside the attributes JSON so precision survives round-trips.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS operators (
		address TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		website TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		twitter TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS avs (
		address TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		website TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		twitter TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS strategies (
		address TEXT PRIMARY KEY,
		symbol TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		underlying_token TEXT NOT NULL DEFAULT '',
		coingecko_id TEXT NOT NULL DEFAULT '',
		decimals INTEGER NOT NULL DEFAULT 18
	)`,
	`CREATE TABLE IF NOT EXISTS snapshot_facts (
		entity_id TEXT NOT NULL,
		entity_kind TEXT NOT NULL,
		strategy_id TEXT NOT NULL DEFAULT '',
		ts INTEGER NOT NULL,
		attributes TEXT NOT NULL,
		PRIMARY KEY (entity_id, entity_kind, strategy_id, ts)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_facts_kind_ts ON snapshot_facts (entity_kind, ts)`,
	`CREATE TABLE IF NOT EXISTS registrations (
		operator_id TEXT NOT NULL,
		service_id TEXT NOT NULL,
		registered_at INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (operator_id, service_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_registrations_active ON registrations (active)`,
}
