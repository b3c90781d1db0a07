package config

// DaemonConfig represents daemon-specific configuration
type DaemonConfig struct {
	HTTP          HTTPConfig     `yaml:"http"`
	WebhookSecret string         `yaml:"webhook_secret,omitempty"`
	AdminToken    string         `yaml:"admin_token,omitempty"` // guards /api routes when set
	Queue         QueueConfig    `yaml:"queue"`
	Debounce      DebounceConfig `yaml:"debounce"`
	Schedule      string         `yaml:"schedule,omitempty"` // cron expression for periodic full runs
	Storage       StorageConfig  `yaml:"storage"`
	NATS          NATSConfig     `yaml:"nats,omitempty"`
}

// HTTPConfig represents HTTP server configuration
type HTTPConfig struct {
	WebhookPort int `yaml:"webhook_port"` // Webhook reception port
	AdminPort   int `yaml:"admin_port"`   // Admin/status endpoints port
}

// QueueConfig sizes the run queue.
type QueueConfig struct {
	Size    int `yaml:"size"`    // Max queued run requests
	Workers int `yaml:"workers"` // Concurrent run workers; 1 keeps runs strictly serial
}

// DebounceConfig coalesces webhook bursts into single runs.
type DebounceConfig struct {
	Quiet    string `yaml:"quiet,omitempty"`     // quiet window before a run starts
	MaxDelay string `yaml:"max_delay,omitempty"` // upper bound on total deferral
}

// StorageConfig represents storage configuration
type StorageConfig struct {
	HistoryDB      string `yaml:"history_db"`      // SQLite run history path
	WorkspaceDir   string `yaml:"workspace_dir"`   // Base directory for run workspaces
	KeepWorkspaces bool   `yaml:"keep_workspaces"` // Keep run workspaces after completion
}

// NATSConfig points run notifications at a NATS server. Empty URL disables.
type NATSConfig struct {
	URL           string `yaml:"url,omitempty"`
	SubjectPrefix string `yaml:"subject_prefix,omitempty"`
}
