package storage

import "database/sql"

// migrateV001 creates the initial auditrec schema: all tables, indexes,
// and default exclusion rules. Every statement uses IF NOT EXISTS for
// idempotency.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		// ── Tables ──────────────────────────────────────────────

		`CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at   DATETIME,
			source     TEXT NOT NULL DEFAULT 'daemon'
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			action     TEXT NOT NULL CHECK (action IN ('clickDetected', 'formInteraction', 'pageChanged')),
			url        TEXT NOT NULL,
			domain     TEXT NOT NULL DEFAULT '',
			title      TEXT NOT NULL DEFAULT '',
			text       TEXT NOT NULL DEFAULT '',
			ts         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			payload    TEXT NOT NULL CHECK (json_valid(payload))
		)`,

		`CREATE TABLE IF NOT EXISTS control (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS exclusions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			rule_type  TEXT NOT NULL CHECK (rule_type IN ('domain', 'regex')),
			rule_value TEXT NOT NULL,
			reason     TEXT NOT NULL DEFAULT '',
			is_default BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(rule_type, rule_value)
		)`,

		// ── Indexes ────────────────────────────────────────────

		`CREATE INDEX IF NOT EXISTS idx_sessions_started   ON sessions(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session   ON messages(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_ts        ON messages(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_action    ON messages(action)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_domain    ON messages(domain)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_ts_domain ON messages(ts, domain)`,
		`CREATE INDEX IF NOT EXISTS idx_exclusions_rule    ON exclusions(rule_type, rule_value)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	// ── Default exclusion rules ────────────────────────────────
	if err := seedDefaultExclusions(tx); err != nil {
		return err
	}

	return nil
}

// seedDefaultExclusions inserts the curated denylist. Interactions on
// these domains must never land in an audit trail. Uses INSERT OR
// IGNORE so re-running is safe.
func seedDefaultExclusions(tx *sql.Tx) error {
	type rule struct {
		RuleType  string
		RuleValue string
		Reason    string
	}

	defaults := []rule{
		// Banking & Financial
		{"domain", "chase.com", "Banking - financial privacy"},
		{"domain", "bankofamerica.com", "Banking - financial privacy"},
		{"domain", "wellsfargo.com", "Banking - financial privacy"},
		{"domain", "capitalone.com", "Banking - financial privacy"},
		{"domain", "fidelity.com", "Banking - financial privacy"},
		{"domain", "vanguard.com", "Banking - financial privacy"},
		{"domain", "paypal.com", "Payment - financial privacy"},
		{"domain", "venmo.com", "Payment - financial privacy"},
		// Password Managers
		{"domain", "1password.com", "Password manager - credential privacy"},
		{"domain", "bitwarden.com", "Password manager - credential privacy"},
		{"domain", "lastpass.com", "Password manager - credential privacy"},
		{"domain", "dashlane.com", "Password manager - credential privacy"},
		// Auth Providers
		{"domain", "accounts.google.com", "Auth provider - credential privacy"},
		{"domain", "login.microsoftonline.com", "Auth provider - credential privacy"},
		{"domain", "auth0.com", "Auth provider - credential privacy"},
		{"domain", "okta.com", "Auth provider - credential privacy"},
		// Healthcare
		{"domain", "mychart.com", "Healthcare - HIPAA privacy"},
		// Tax / Government
		{"domain", "irs.gov", "Tax - financial privacy"},
		{"domain", "turbotax.intuit.com", "Tax - financial privacy"},
		// SSO hosts (regex)
		{"regex", `.*\.okta\.com$`, "SSO tenant - credential privacy"},
		{"regex", `^sso\..*`, "SSO host - credential privacy"},
	}

	const insertSQL = `INSERT OR IGNORE INTO exclusions (rule_type, rule_value, reason, is_default) VALUES (?, ?, ?, 1)`

	for _, r := range defaults {
		if _, err := tx.Exec(insertSQL, r.RuleType, r.RuleValue, r.Reason); err != nil {
			return err
		}
	}

	return nil
}
