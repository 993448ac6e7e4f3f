package mirror

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 5 * time.Minute
	// DefaultRetries is the default number of download retries
	DefaultRetries = 3
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "repomirror/1.0"
	// DefaultArchiveBaseURL is the root archive URLs are built from
	DefaultArchiveBaseURL = "https://github.com"
	// maxRedirects matches what code hosts need for archive -> codeload hops
	maxRedirects = 10
)

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

// Fetcher downloads repository archives with retry logic.
type Fetcher struct {
	client         *http.Client
	archiveBaseURL string
	tempDir        string
	userAgent      string
	retries        int
	initialBackoff time.Duration
}

// FetcherConfig configures a Fetcher. Zero values select defaults.
type FetcherConfig struct {
	// ArchiveBaseURL is the host root, e.g. https://github.com
	ArchiveBaseURL string
	// TempDir receives downloaded archives (default: os.TempDir())
	TempDir   string
	UserAgent string
	Retries   int
}

// NewFetcher creates a new fetcher
func NewFetcher(cfg FetcherConfig) *Fetcher {
	f := &Fetcher{
		client:         newHTTPClient(),
		archiveBaseURL: strings.TrimRight(cfg.ArchiveBaseURL, "/"),
		tempDir:        cfg.TempDir,
		userAgent:      cfg.UserAgent,
		retries:        cfg.Retries,
		initialBackoff: time.Second,
	}
	if f.archiveBaseURL == "" {
		f.archiveBaseURL = DefaultArchiveBaseURL
	}
	if f.userAgent == "" {
		f.userAgent = DefaultUserAgent
	}
	if f.retries <= 0 {
		f.retries = DefaultRetries
	}
	return f
}

// ArchiveURL returns the zip download URL for a revision.
func (f *Fetcher) ArchiveURL(loc Locator, rev RevisionID) string {
	return fmt.Sprintf("%s/%s/%s/archive/%s.zip",
		f.archiveBaseURL, url.PathEscape(loc.Owner), url.PathEscape(loc.Name), url.PathEscape(string(rev)))
}

// DownloadArchive streams the archive at url into a new temporary file and
// returns its path. The caller owns the file and must remove it.
func (f *Fetcher) DownloadArchive(ctx context.Context, url string) (string, error) {
	return f.download(ctx, url, "repomirror-*.zip")
}

// DownloadSignature fetches a detached signature into a temporary file.
func (f *Fetcher) DownloadSignature(ctx context.Context, url string) (string, error) {
	return f.download(ctx, url, "repomirror-*.sig")
}

func (f *Fetcher) download(ctx context.Context, url, pattern string) (string, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.initialBackoff

	path, err := backoff.Retry(ctx, func() (string, error) {
		return f.downloadOnce(ctx, url, pattern)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(f.retries+1)),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", ErrFetchFailed, ctx.Err())
		}
		return "", fmt.Errorf("%w: download failed after %d retries: %w", ErrFetchFailed, f.retries, err)
	}

	return path, nil
}

// downloadOnce performs a single download attempt
func (f *Fetcher) downloadOnce(ctx context.Context, url, pattern string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		// Client errors will not get better by retrying
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	tmpFile, err := os.CreateTemp(f.tempDir, pattern)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("create temp file: %w", err))
	}

	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpFile.Name())
		}
	}()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		return "", fmt.Errorf("copy response body: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	cleanupNeeded = false
	return tmpFile.Name(), nil
}
