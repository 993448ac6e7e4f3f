// Package git resolves branch tips over the git smart protocol using go-git.
// It serves remotes that are not GitHub (or when the REST API is rate
// limited): only the advertised references are fetched, never objects.
package git

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/ZebulonRouseFrantzich/repomirror/internal/mirror"
)

// DefaultURLTemplate builds clone URLs for GitHub repositories
const DefaultURLTemplate = "https://github.com/{owner}/{repo}.git"

var (
	ErrEmptyTemplate = errors.New("git URL template cannot be empty")
	ErrNoRefs        = errors.New("remote advertised no references")
)

// lister returns the references advertised by the remote at url
type lister func(ctx context.Context, url string, auth transport.AuthMethod) ([]*plumbing.Reference, error)

// RemoteSource implements mirror.RevisionSource with a git ls-remote.
type RemoteSource struct {
	template string
	auth     transport.AuthMethod
	list     lister
}

// NewRemoteSource creates a revision source for URLs built from template.
// The template may reference {owner}, {repo} and {branch}.
func NewRemoteSource(template string) (*RemoteSource, error) {
	if strings.TrimSpace(template) == "" {
		return nil, ErrEmptyTemplate
	}

	return &RemoteSource{
		template: template,
		list:     listRemote,
	}, nil
}

// WithToken authenticates HTTPS requests with a personal access token.
func (s *RemoteSource) WithToken(token string) *RemoteSource {
	if token != "" {
		s.auth = &githttp.BasicAuth{Username: "x-access-token", Password: token}
	}
	return s
}

// URL returns the remote URL for loc.
func (s *RemoteSource) URL(loc mirror.Locator) string {
	r := strings.NewReplacer(
		"{owner}", url.PathEscape(loc.Owner),
		"{repo}", url.PathEscape(loc.Name),
		"{branch}", url.PathEscape(loc.Branch),
	)
	return r.Replace(s.template)
}

// LatestRevision returns the hash the remote advertises for loc.Branch.
// A branch the remote does not have yields an empty revision and no error.
func (s *RemoteSource) LatestRevision(ctx context.Context, loc mirror.Locator) (mirror.RevisionID, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	refs, err := s.list(ctx, s.URL(loc), s.auth)
	if err != nil {
		return "", fmt.Errorf("%w: list remote refs: %w", mirror.ErrRevisionQuery, err)
	}

	hash, ok := findBranch(refs, loc.Branch)
	if !ok {
		return "", nil
	}
	return mirror.RevisionID(hash.String()), nil
}

// listRemote runs the equivalent of git ls-remote against an in-memory
// repository, so nothing is written to disk.
func listRemote(ctx context.Context, url string, auth transport.AuthMethod) ([]*plumbing.Reference, error) {
	remote := gogit.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: gitconfig.DefaultRemoteName,
		URLs: []string{url},
	})

	refs, err := remote.ListContext(ctx, &gogit.ListOptions{Auth: auth})
	if err != nil {
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return nil, ErrNoRefs
		}
		return nil, err
	}
	return refs, nil
}

// findBranch locates refs/heads/<branch> in refs. Symbolic references are
// followed one level, which covers a branch advertised only through HEAD.
func findBranch(refs []*plumbing.Reference, branch string) (plumbing.Hash, bool) {
	want := plumbing.NewBranchReferenceName(branch)

	byName := make(map[plumbing.ReferenceName]*plumbing.Reference, len(refs))
	for _, ref := range refs {
		byName[ref.Name()] = ref
	}

	ref, ok := byName[want]
	if !ok {
		return plumbing.ZeroHash, false
	}

	if ref.Type() == plumbing.SymbolicReference {
		target, ok := byName[ref.Target()]
		if !ok || target.Type() != plumbing.HashReference {
			return plumbing.ZeroHash, false
		}
		ref = target
	}

	if ref.Hash().IsZero() {
		return plumbing.ZeroHash, false
	}
	return ref.Hash(), true
}
