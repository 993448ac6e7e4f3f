// Package config loads repomirror's Lua configuration.
//
// # Overview
//
// A configuration file is a Lua script that assigns a global "mirror" table:
//
//	mirror = {
//	  repo = { owner = "NotEnoughUpdates", name = "NotEnoughUpdates-REPO", branch = "master" },
//	  source = "github",            -- or "git"
//	  data_dir = "~/.local/share/repomirror",
//	  exclude = { ".github/**" },
//	  interval = "15m",
//	  verify = { keyring = "~/.config/repomirror/keys.asc", signature_url = "https://..." },
//	}
//
// Scripts run in gopher-lua with the platform table from the platform
// package injected, so one file can serve several machines:
//
//	mirror = {
//	  repo = { owner = "acme", name = "data" },
//	  data_dir = platform.when(platform.is_linux, "/srv/repomirror"),
//	}
//
// # Security Model
//
// User Lua code runs in a restricted sandbox that removes:
//   - System command execution and environment access (os)
//   - Filesystem access (io)
//   - External code loading (require, dofile, loadfile, load, loadstring)
//   - Metatable and raw table access (getmetatable, setmetatable, rawget, rawset)
//   - Garbage collection control and the debug library
//
// Configs larger than MaxConfigSize are rejected before they are executed and
// execution is bounded by ParseTimeout unless the caller's context has an
// earlier deadline.
//
// # Error Types
//
// Lua failures and schema violations surface as *ParseError, whose Detail
// keeps the raw message for verbose output. Validate reports the offending
// field through *ValidationError.
//
// # File Location
//
// DefaultPath resolves, in order, the REPOMIRROR_CONFIG environment variable
// and $XDG_CONFIG_HOME/repomirror/config.lua. The default data directory is
// $XDG_DATA_HOME/repomirror.
package config
