package config

// StepConfig is one ordered build step. Command runs via the shell with the
// checkout directory as working directory and the pipeline environment applied.
type StepConfig struct {
	Name    string `yaml:"name"`
	Command string `yaml:"command"`
	Timeout string `yaml:"timeout,omitempty"` // duration string, empty = no per-step timeout
}
