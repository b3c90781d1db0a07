package config

import "strings"

// PublishMode enumerates supported publish target kinds.
type PublishMode string

const (
	PublishModeBranch PublishMode = "branch"
	PublishModeBucket PublishMode = "bucket"
)

// NormalizePublishMode canonicalizes user input returning empty string if unknown.
func NormalizePublishMode(raw string) PublishMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(PublishModeBranch):
		return PublishModeBranch
	case string(PublishModeBucket):
		return PublishModeBucket
	default:
		return ""
	}
}

// PublishConfig selects and parameterizes the publish target. Exactly one
// target block must match the mode.
type PublishConfig struct {
	Mode   PublishMode   `yaml:"mode"`
	Branch *BranchTarget `yaml:"branch,omitempty"`
	Bucket *BucketTarget `yaml:"bucket,omitempty"`
}

// BranchTarget publishes the output directory as a fresh orphan commit on a
// branch, replacing whatever the branch held before.
type BranchTarget struct {
	Name        string `yaml:"name"`
	Remote      string `yaml:"remote,omitempty"` // defaults to repository.url
	ForceOrphan *bool  `yaml:"force_orphan,omitempty"`
	TokenEnv    string `yaml:"token_env,omitempty"` // env var holding the push token
	AuthorName  string `yaml:"author_name,omitempty"`
	AuthorEmail string `yaml:"author_email,omitempty"`
}

// BucketTarget mirrors the output directory into an S3-compatible bucket.
type BucketTarget struct {
	Endpoint     string `yaml:"endpoint"` // host:port, no scheme
	Name         string `yaml:"name"`
	Prefix       string `yaml:"prefix,omitempty"`
	Region       string `yaml:"region,omitempty"`
	AccessKeyEnv string `yaml:"access_key_env,omitempty"`
	SecretKeyEnv string `yaml:"secret_key_env,omitempty"`
	UseSSL       *bool  `yaml:"use_ssl,omitempty"`
}
