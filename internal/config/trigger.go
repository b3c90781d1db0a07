package config

// TriggerConfig describes which push events start a run. A run starts only
// when both the branch allow-list and the repository filter match.
type TriggerConfig struct {
	// Branches is the branch allow-list. Entries may be exact names ("main")
	// or glob patterns ("release/*"). Empty means no branch ever matches.
	Branches []string `yaml:"branches"`
	// Repository restricts runs to events from this full repository name
	// (e.g. "org/project"). Empty accepts any repository.
	Repository string `yaml:"repository,omitempty"`
}
