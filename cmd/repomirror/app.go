package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ZebulonRouseFrantzich/repomirror/internal/config"
	"github.com/ZebulonRouseFrantzich/repomirror/internal/git"
	"github.com/ZebulonRouseFrantzich/repomirror/internal/mirror"
	"github.com/ZebulonRouseFrantzich/repomirror/internal/platform"
)

// envToken authenticates requests to the code host when set
const envToken = "GITHUB_TOKEN"

// loadConfig parses the config selected by --config, $REPOMIRROR_CONFIG or
// the XDG default, in that order.
func (o *globalOptions) loadConfig(ctx context.Context) (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = config.DefaultPath()
	}

	o.logger.Debug("Loading config", zap.String("path", path))

	cfg, err := config.NewParser(platform.NewDetector()).ParseFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// newSyncer wires a mirror.Syncer from cfg.
func (o *globalOptions) newSyncer(ctx context.Context, cfg *config.Config) (*mirror.Syncer, error) {
	logger := newMirrorLogger(o.logger)

	info, err := platform.NewDetector().Detect(ctx)
	if err != nil {
		o.logger.Debug("Platform detection failed", zap.Error(err))
		info = nil
	}
	userAgent := platform.UserAgent(config.AppName, Version, info)
	token := os.Getenv(envToken)

	source, err := newRevisionSource(cfg, userAgent, token)
	if err != nil {
		return nil, err
	}

	fetcher := mirror.NewFetcher(mirror.FetcherConfig{
		ArchiveBaseURL: cfg.ArchiveURL,
		UserAgent:      userAgent,
	})

	extractor, err := mirror.NewExtractor().WithLogger(logger).WithExclude(cfg.Exclude)
	if err != nil {
		return nil, err
	}

	var verifier *mirror.Verifier
	if cfg.Verify.Enabled() {
		verifier, err = mirror.NewVerifier(cfg.Verify.Keyring, cfg.Verify.SignatureURL)
		if err != nil {
			return nil, fmt.Errorf("configure signature verification: %w", err)
		}
	}

	return mirror.NewSyncer(mirror.Config{
		Locator:   cfg.Locator(),
		DataDir:   cfg.DataDir,
		Source:    source,
		Fetcher:   fetcher,
		Extractor: extractor,
		Verifier:  verifier,
		Logger:    logger,
	})
}

func newRevisionSource(cfg *config.Config, userAgent, token string) (mirror.RevisionSource, error) {
	switch cfg.Source {
	case config.SourceGit:
		template := cfg.GitURL
		if template == "" {
			template = git.DefaultURLTemplate
		}
		source, err := git.NewRemoteSource(template)
		if err != nil {
			return nil, err
		}
		return source.WithToken(token), nil
	default:
		return mirror.NewGitHubSource(cfg.APIURL, userAgent).WithToken(token), nil
	}
}

// setup loads the config and builds the syncer for a subcommand.
func (o *globalOptions) setup(ctx context.Context) (*config.Config, *mirror.Syncer, error) {
	cfg, err := o.loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}

	syncer, err := o.newSyncer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, syncer, nil
}
