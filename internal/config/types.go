package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ZebulonRouseFrantzich/repomirror/internal/mirror"
)

// Config is the parsed contents of a repomirror config file.
type Config struct {
	Repo RepoConfig

	// Source selects how the branch tip is resolved: SourceGitHub (REST API)
	// or SourceGit (smart protocol ref listing).
	Source string

	// DataDir holds the snapshot and its metadata (supports ~)
	DataDir string

	APIURL     string
	ArchiveURL string
	// GitURL is a template for SourceGit remotes ({owner}, {repo}, {branch})
	GitURL string

	// Exclude lists doublestar patterns of archive paths not to extract
	Exclude []string

	// Interval is the watch loop period
	Interval time.Duration

	Verify VerifyConfig
}

// RepoConfig identifies the mirrored repository.
type RepoConfig struct {
	Owner  string
	Name   string
	Branch string
}

// VerifyConfig enables OpenPGP verification of downloaded archives.
type VerifyConfig struct {
	Keyring      string
	SignatureURL string
}

// Enabled reports whether signature verification is configured.
func (v VerifyConfig) Enabled() bool {
	return v.Keyring != "" || v.SignatureURL != ""
}

// Locator returns the repository as a mirror.Locator.
func (c *Config) Locator() mirror.Locator {
	return mirror.Locator{
		Owner:  c.Repo.Owner,
		Name:   c.Repo.Name,
		Branch: c.Repo.Branch,
	}
}

// applyDefaults fills fields the config left unset.
func (c *Config) applyDefaults() error {
	if c.Repo.Branch == "" {
		c.Repo.Branch = DefaultBranch
	}
	if c.Source == "" {
		c.Source = SourceGitHub
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}

	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	} else {
		expanded, err := expandHome(c.DataDir)
		if err != nil {
			return err
		}
		c.DataDir = expanded
	}

	if c.Verify.Keyring != "" {
		expanded, err := expandHome(c.Verify.Keyring)
		if err != nil {
			return err
		}
		c.Verify.Keyring = expanded
	}

	return nil
}

// Validate checks a config after defaults have been applied.
func (c *Config) Validate() error {
	if err := c.Locator().Validate(); err != nil {
		return &ValidationError{Field: "repo", Message: err.Error()}
	}

	switch c.Source {
	case SourceGitHub, SourceGit:
	default:
		return &ValidationError{
			Field:   "source",
			Message: fmt.Sprintf("unknown source %q (expected %q or %q)", c.Source, SourceGitHub, SourceGit),
		}
	}

	if strings.TrimSpace(c.DataDir) == "" {
		return &ValidationError{Field: "data_dir", Message: "cannot be empty"}
	}

	urls := []struct {
		field string
		value string
	}{
		{"api_url", c.APIURL},
		{"archive_url", c.ArchiveURL},
	}
	for _, u := range urls {
		if u.value == "" {
			continue
		}
		if err := validateHTTPURL(u.value); err != nil {
			return &ValidationError{Field: u.field, Message: err.Error()}
		}
	}

	if c.GitURL != "" {
		if err := validateGitRemote(c.GitURL); err != nil {
			return &ValidationError{Field: "git_url", Message: err.Error()}
		}
	}

	if c.Interval < MinInterval {
		return &ValidationError{
			Field:   "interval",
			Message: fmt.Sprintf("must be at least %s (got %s)", MinInterval, c.Interval),
		}
	}

	if len(c.Exclude) > MaxExcludePatterns {
		return &ValidationError{
			Field:   "exclude",
			Message: fmt.Sprintf("too many patterns (%d), maximum is %d", len(c.Exclude), MaxExcludePatterns),
		}
	}
	for i, pattern := range c.Exclude {
		if pattern == "" || !doublestar.ValidatePattern(pattern) {
			return &ValidationError{
				Field:   fmt.Sprintf("exclude[%d]", i),
				Message: fmt.Sprintf("invalid glob pattern %q", pattern),
			}
		}
	}

	if c.Verify.Enabled() {
		if c.Verify.Keyring == "" || c.Verify.SignatureURL == "" {
			return &ValidationError{Field: "verify", Message: "keyring and signature_url must be set together"}
		}
		if err := validateHTTPURL(c.Verify.SignatureURL); err != nil {
			return &ValidationError{Field: "verify.signature_url", Message: err.Error()}
		}
	}

	return nil
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("URL must use https:// or http:// scheme (got: %q)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host: %s", raw)
	}
	return nil
}

// validateGitRemote accepts HTTPS, SSH (ssh:// or git@host:path) and git://
// remotes.
func validateGitRemote(remote string) error {
	if strings.HasPrefix(remote, "git@") {
		if strings.Count(remote, ":") != 1 {
			return fmt.Errorf("invalid SSH git URL format")
		}
		return nil
	}

	u, err := url.Parse(remote)
	if err != nil {
		return fmt.Errorf("invalid git URL: %w", err)
	}

	switch u.Scheme {
	case "https", "http", "ssh", "git":
		return nil
	default:
		return fmt.Errorf("git URL must use https, ssh or git scheme (got: %q)", u.Scheme)
	}
}
