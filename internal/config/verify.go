package config

// VerifyConfig controls pre-publish output checks. The non-empty check always
// runs; link checking is opt-in.
type VerifyConfig struct {
	Links  bool `yaml:"links,omitempty"`  // verify relative links between emitted HTML files
	Strict bool `yaml:"strict,omitempty"` // broken links fail the run instead of warning
}
