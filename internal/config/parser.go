package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/ZebulonRouseFrantzich/repomirror/internal/platform"
)

// ErrConfigNotFound is returned by ParseFile when the file does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// Parser represents a Lua config parser with platform detection.
type Parser struct {
	detector platform.Detector
}

// NewParser creates a new config parser. A nil detector leaves the platform
// table undefined.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector}
}

// ParseFile reads and parses the config at path.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("stat config: %w", err)
	}
	if info.Size() > MaxConfigSize {
		return nil, &ParseError{
			Message: "config file too large",
			Detail:  fmt.Sprintf("%s is %d bytes, maximum is %d", path, info.Size(), MaxConfigSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return p.ParseString(ctx, string(data))
}

// ParseString parses a Lua config from a string.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Config, error) {
	if len(luaCode) > MaxConfigSize {
		return nil, &ParseError{
			Message: "config too large",
			Detail:  fmt.Sprintf("%d bytes, maximum is %d", len(luaCode), MaxConfigSize),
		}
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ParseTimeout)
		defer cancel()
	}

	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	if p.detector != nil {
		info, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, info); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		if ctx.Err() != nil {
			return nil, &ParseError{Message: "config evaluation timed out", Detail: err.Error()}
		}
		return nil, &ParseError{Message: "Lua syntax error", Detail: err.Error()}
	}

	return extractConfig(L)
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// extractConfig reads the global "mirror" table.
func extractConfig(L *lua.LState) (*Config, error) {
	root, ok := L.GetGlobal(luaGlobalMirror).(*lua.LTable)
	if !ok {
		return nil, &ParseError{
			Message: "missing or invalid 'mirror' table",
			Detail:  fmt.Sprintf("expected table, got %s", L.GetGlobal(luaGlobalMirror).Type()),
		}
	}

	cfg := &Config{}
	var err error

	repo, ok := root.RawGetString(luaFieldRepo).(*lua.LTable)
	if !ok {
		return nil, &ParseError{Message: "missing or invalid 'mirror.repo' table", Detail: "repo = { owner = ..., name = ... } is required"}
	}
	if cfg.Repo.Owner, err = optionalString(repo, luaFieldOwner); err != nil {
		return nil, err
	}
	if cfg.Repo.Name, err = optionalString(repo, luaFieldName); err != nil {
		return nil, err
	}
	if cfg.Repo.Branch, err = optionalString(repo, luaFieldBranch); err != nil {
		return nil, err
	}

	fields := []struct {
		field string
		dst   *string
	}{
		{luaFieldSource, &cfg.Source},
		{luaFieldDataDir, &cfg.DataDir},
		{luaFieldAPIURL, &cfg.APIURL},
		{luaFieldArchiveURL, &cfg.ArchiveURL},
		{luaFieldGitURL, &cfg.GitURL},
	}
	for _, f := range fields {
		if *f.dst, err = optionalString(root, f.field); err != nil {
			return nil, err
		}
	}

	if cfg.Exclude, err = extractStringList(root, luaFieldExclude); err != nil {
		return nil, err
	}

	if cfg.Interval, err = extractDuration(root, luaFieldInterval); err != nil {
		return nil, err
	}

	if verifyVal := root.RawGetString(luaFieldVerify); verifyVal != lua.LNil {
		verify, ok := verifyVal.(*lua.LTable)
		if !ok {
			return nil, &ParseError{Message: "invalid 'verify' field", Detail: fmt.Sprintf("expected table, got %s", verifyVal.Type())}
		}
		if cfg.Verify.Keyring, err = optionalString(verify, luaFieldKeyring); err != nil {
			return nil, err
		}
		if cfg.Verify.SignatureURL, err = optionalString(verify, luaFieldSigURL); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, &ParseError{Message: "config defaults failed", Detail: err.Error()}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ParseError{Message: "config validation failed", Detail: err.Error()}
	}

	return cfg, nil
}

// optionalString returns the string at field, "" for nil, and an error for
// any other type.
func optionalString(table *lua.LTable, field string) (string, error) {
	switch v := table.RawGetString(field).(type) {
	case *lua.LNilType:
		return "", nil
	case lua.LString:
		return strings.TrimSpace(string(v)), nil
	default:
		return "", &ParseError{
			Message: fmt.Sprintf("invalid '%s' field", field),
			Detail:  fmt.Sprintf("expected string, got %s", v.Type()),
		}
	}
}

// extractStringList reads an array of strings. Nil entries (from
// platform.when) are skipped.
func extractStringList(table *lua.LTable, field string) ([]string, error) {
	val := table.RawGetString(field)
	if val == lua.LNil {
		return nil, nil
	}

	list, ok := val.(*lua.LTable)
	if !ok {
		return nil, &ParseError{
			Message: fmt.Sprintf("invalid '%s' field", field),
			Detail:  fmt.Sprintf("expected list of strings, got %s", val.Type()),
		}
	}

	var out []string
	var bad lua.LValue
	list.ForEach(func(_, value lua.LValue) {
		switch v := value.(type) {
		case *lua.LNilType:
		case lua.LString:
			out = append(out, string(v))
		default:
			if bad == nil {
				bad = value
			}
		}
	})
	if bad != nil {
		return nil, &ParseError{
			Message: fmt.Sprintf("invalid '%s' entry", field),
			Detail:  fmt.Sprintf("expected string, got %s", bad.Type()),
		}
	}

	return out, nil
}

// extractDuration accepts a Go duration string ("15m") or a number of seconds.
func extractDuration(table *lua.LTable, field string) (time.Duration, error) {
	switch v := table.RawGetString(field).(type) {
	case *lua.LNilType:
		return 0, nil
	case lua.LNumber:
		return time.Duration(float64(v) * float64(time.Second)), nil
	case lua.LString:
		d, err := time.ParseDuration(strings.TrimSpace(string(v)))
		if err != nil {
			return 0, &ParseError{Message: fmt.Sprintf("invalid '%s' field", field), Detail: err.Error()}
		}
		return d, nil
	default:
		return 0, &ParseError{
			Message: fmt.Sprintf("invalid '%s' field", field),
			Detail:  fmt.Sprintf("expected duration string or seconds, got %s", v.Type()),
		}
	}
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		return err.Error()
	}

	if verbose {
		return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
	}

	detail := parseErr.Detail
	if idx := strings.Index(detail, "stack traceback"); idx > 0 {
		detail = strings.TrimSpace(detail[:idx])
	}
	return fmt.Sprintf("%s: %s", parseErr.Message, detail)
}
