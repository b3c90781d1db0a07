package config

// applyDefaults fills unset fields with sensible defaults. It runs after
// unmarshal and before validation so canonical values drive validation.
func applyDefaults(cfg *Config) error {
	if cfg.Repository.Branch == "" {
		cfg.Repository.Branch = "main"
	}

	// An omitted allow-list means "the repository's default branch".
	if len(cfg.Trigger.Branches) == 0 {
		cfg.Trigger.Branches = []string{cfg.Repository.Branch}
	}

	if cfg.Output.Directory == "" {
		cfg.Output.Directory = "site"
	}

	applyPublishDefaults(cfg)
	applyRetryDefaults(&cfg.Retry)
	applyLogDefaults(&cfg.Log)

	if cfg.Daemon != nil {
		applyDaemonDefaults(cfg.Daemon)
	}

	return nil
}

func applyPublishDefaults(cfg *Config) {
	if cfg.Publish.Mode == "" {
		cfg.Publish.Mode = PublishModeBranch
	} else if m := NormalizePublishMode(string(cfg.Publish.Mode)); m != "" {
		cfg.Publish.Mode = m
	}

	if cfg.Publish.Mode == PublishModeBranch {
		if cfg.Publish.Branch == nil {
			cfg.Publish.Branch = &BranchTarget{}
		}
		b := cfg.Publish.Branch
		if b.Name == "" {
			b.Name = "gh-pages"
		}
		if b.Remote == "" {
			b.Remote = cfg.Repository.URL
		}
		if b.ForceOrphan == nil {
			t := true
			b.ForceOrphan = &t
		}
		if b.AuthorName == "" {
			b.AuthorName = "pagesmith"
		}
		if b.AuthorEmail == "" {
			b.AuthorEmail = "pagesmith@localhost"
		}
	}

	if cfg.Publish.Mode == PublishModeBucket && cfg.Publish.Bucket != nil {
		if cfg.Publish.Bucket.UseSSL == nil {
			t := true
			cfg.Publish.Bucket.UseSSL = &t
		}
	}
}

func applyRetryDefaults(r *RetryConfig) {
	if r.Backoff == "" {
		r.Backoff = RetryBackoffLinear
	} else if m := NormalizeRetryBackoff(string(r.Backoff)); m != "" {
		r.Backoff = m
	} else {
		r.Backoff = RetryBackoffLinear
	}
	if r.InitialDelay == "" {
		r.InitialDelay = "1s"
	}
	if r.MaxDelay == "" {
		r.MaxDelay = "30s"
	}
	if r.MaxRetries == nil { // default 2 retries (3 total attempts); explicit 0 disables
		retries := 2
		r.MaxRetries = &retries
	}
}

func applyLogDefaults(l *LogConfig) {
	if l.Level == "" {
		l.Level = LogLevelInfo
	} else {
		l.Level = NormalizeLogLevel(string(l.Level))
	}
	if l.Format == "" {
		l.Format = LogFormatText
	} else {
		l.Format = NormalizeLogFormat(string(l.Format))
	}
}

func applyDaemonDefaults(d *DaemonConfig) {
	if d.HTTP.WebhookPort == 0 {
		d.HTTP.WebhookPort = 8081
	}
	if d.HTTP.AdminPort == 0 {
		d.HTTP.AdminPort = 8082
	}
	if d.Queue.Size <= 0 {
		d.Queue.Size = 100
	}
	if d.Queue.Workers <= 0 {
		d.Queue.Workers = 1
	}
	if d.Debounce.Quiet == "" {
		d.Debounce.Quiet = "5s"
	}
	if d.Debounce.MaxDelay == "" {
		d.Debounce.MaxDelay = "30s"
	}
	if d.Storage.HistoryDB == "" {
		d.Storage.HistoryDB = "./pagesmith.db"
	}
	if d.Storage.WorkspaceDir == "" {
		d.Storage.WorkspaceDir = "./workspaces"
	}
	if d.NATS.URL != "" && d.NATS.SubjectPrefix == "" {
		d.NATS.SubjectPrefix = "pagesmith"
	}
}
