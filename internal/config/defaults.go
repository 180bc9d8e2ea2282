package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			SettleMS:        100,
			DenylistDomains: []string{},
			DenylistRegex:   []string{},
		},
		Daemon: DaemonConfig{
			Host:           "127.0.0.1",
			Port:           8126,
			AuthToken:      "",
			MaxRequestSize: 1048576,
			AllowedOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			Path:              "~/.config/codeweaver/auditrec",
			SQLiteFile:        "auditrec.db",
			SQLiteJournalMode: "wal",
		},
		Retention: RetentionConfig{
			Days:               30,
			PruneIntervalHours: 24,
		},
		Relay: RelayConfig{
			Enabled:   false,
			RedisAddr: "localhost:6379",
			Channel:   "auditrec.messages",
		},
		Logging: LoggingConfig{
			Level:      "info",
			RedactText: true,
		},
	}
}
