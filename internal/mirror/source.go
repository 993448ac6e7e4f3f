package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	// DefaultAPIBaseURL is the GitHub REST API root
	DefaultAPIBaseURL = "https://api.github.com"
	// maxCommitResponseBytes bounds the commit lookup body we are willing to decode
	maxCommitResponseBytes = 8 << 20
)

// RevisionSource reports the tip revision of a branch.
// A zero RevisionID with a nil error means the revision is not available.
type RevisionSource interface {
	LatestRevision(ctx context.Context, loc Locator) (RevisionID, error)
}

// GitHubSource queries the GitHub commits API for the branch tip.
type GitHubSource struct {
	client    *http.Client
	baseURL   string
	userAgent string
	token     string
}

// NewGitHubSource creates a revision source for the given API root.
// An empty baseURL selects DefaultAPIBaseURL.
func NewGitHubSource(baseURL, userAgent string) *GitHubSource {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &GitHubSource{
		client:    newHTTPClient(),
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
	}
}

// WithToken sets a bearer token for authenticated (higher rate limit) requests.
func (s *GitHubSource) WithToken(token string) *GitHubSource {
	s.token = token
	return s
}

type commitResponse struct {
	SHA string `json:"sha"`
}

// CommitURL returns the commit lookup endpoint for a locator.
func (s *GitHubSource) CommitURL(loc Locator) string {
	return fmt.Sprintf("%s/repos/%s/%s/commits/%s",
		s.baseURL, url.PathEscape(loc.Owner), url.PathEscape(loc.Name), escapeRef(loc.Branch))
}

// LatestRevision returns the tip revision of loc.Branch.
// Any non-200 response yields an empty revision and no error, so callers can
// treat an unreachable API the same as "no update available".
func (s *GitHubSource) LatestRevision(ctx context.Context, loc Locator) (RevisionID, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.CommitURL(loc), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRevisionQuery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", nil
	}

	var body commitResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxCommitResponseBytes)).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode commit response: %w", ErrRevisionQuery, err)
	}

	return RevisionID(strings.TrimSpace(body.SHA)), nil
}

// escapeRef escapes each segment of a ref, keeping slashes in branch names.
func escapeRef(ref string) string {
	parts := strings.Split(ref, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
