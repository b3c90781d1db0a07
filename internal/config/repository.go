package config

// RepositoryConfig identifies the Git repository the pipeline builds.
type RepositoryConfig struct {
	URL    string      `yaml:"url"`
	Name   string      `yaml:"name"`             // full name, e.g. "org/project"
	Branch string      `yaml:"branch,omitempty"` // default branch for manual runs
	Auth   *AuthConfig `yaml:"auth,omitempty"`
}
