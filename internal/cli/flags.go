package cli

import "database/sql"

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	DBPath  string `long:"db" description:"Override database path"`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// ServeCommand — run the audit capture daemon (local HTTP service).
type ServeCommand struct {
	Port     int    `long:"port" description:"Override daemon port"`
	LogLevel string `long:"log-level" description:"Override log level"`

	globals *GlobalFlags
	version string
}

// StatusCommand — show daemon health, database stats, recording state.
type StatusCommand struct {
	globals *GlobalFlags
	version string
}

// SessionsCommand — list recording sessions with message counts.
type SessionsCommand struct {
	Limit  int `long:"limit" description:"Maximum sessions" default:"20"`
	Offset int `long:"offset" description:"Skip first N sessions" default:"0"`

	globals *GlobalFlags
	version string
}

// SearchCommand — search captured audit messages by keyword with filters.
type SearchCommand struct {
	Since   string   `long:"since" description:"Only messages newer than duration (e.g., 7d, 24h, 2w)" default:"30d"`
	Until   string   `long:"until" description:"Only messages older than duration"`
	Action  string   `long:"action" description:"Filter by action: clickDetected | formInteraction | pageChanged"`
	Session string   `long:"session" description:"Filter by session ID"`
	Domain  []string `long:"domain" description:"Filter by domain (repeatable)"`
	Limit   int      `long:"limit" description:"Maximum results" default:"10"`
	Offset  int      `long:"offset" description:"Skip first N results" default:"0"`

	globals *GlobalFlags
	version string
}

// ExportCommand — export a session's messages as JSON Lines.
type ExportCommand struct {
	Session string `long:"session" description:"Session ID to export (required)"`
	Output  string `long:"output" description:"Write to file instead of stdout"`

	globals *GlobalFlags
	version string
}

// PruneCommand — apply retention pruning to remove old messages.
type PruneCommand struct {
	OlderThan string `long:"older-than" description:"Override retention period (e.g., 30d)"`
	DryRun    bool   `long:"dry-run" description:"Show what would be pruned without deleting"`

	globals *GlobalFlags
	version string
}

// PurgeCommand — delete ALL captured data with safety confirmation.
type PurgeCommand struct {
	All   bool `long:"all" description:"Required flag to confirm purge intent"`
	Force bool `long:"force" description:"Skip safety confirmation prompt"`

	globals *GlobalFlags
	version string
	db      *sql.DB // injectable for testing; nil means open default DB
}
