package config

import "time"

// Lua schema field names and globals
const (
	luaGlobalMirror    = "mirror"
	luaFieldRepo       = "repo"
	luaFieldOwner      = "owner"
	luaFieldName       = "name"
	luaFieldBranch     = "branch"
	luaFieldSource     = "source"
	luaFieldDataDir    = "data_dir"
	luaFieldAPIURL     = "api_url"
	luaFieldArchiveURL = "archive_url"
	luaFieldGitURL     = "git_url"
	luaFieldExclude    = "exclude"
	luaFieldInterval   = "interval"
	luaFieldVerify     = "verify"
	luaFieldKeyring    = "keyring"
	luaFieldSigURL     = "signature_url"
)

// Source kinds
const (
	SourceGitHub = "github"
	SourceGit    = "git"
)

const (
	// AppName names the XDG subdirectories
	AppName = "repomirror"

	// EnvConfig overrides the config file location
	EnvConfig = "REPOMIRROR_CONFIG"

	DefaultBranch   = "master"
	DefaultInterval = 15 * time.Minute
	MinInterval     = 10 * time.Second

	// MaxConfigSize bounds the config files we are willing to execute
	MaxConfigSize = 10 << 20

	// ParseTimeout bounds Lua execution when the caller sets no deadline
	ParseTimeout = 5 * time.Second

	MaxExcludePatterns = 1000
)
