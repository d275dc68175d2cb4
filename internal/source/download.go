package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/pendergraft/sitelaunch/internal/logging"
	"github.com/pendergraft/sitelaunch/internal/transport"
)

// Fetcher downloads one URL into w
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, w io.Writer) error
}

// Downloader stores archives under a working directory. HTTP(S) URLs use
// the primary fetcher and, if that fails, the fallback once. s3:// URLs
// use the S3 fetcher only.
type Downloader struct {
	dir      string
	primary  Fetcher
	fallback Fetcher
	s3       Fetcher
	logger   *slog.Logger
}

// DownloaderOption configures a Downloader
type DownloaderOption func(*Downloader)

// WithFallback sets the fetcher tried after the primary fails
func WithFallback(f Fetcher) DownloaderOption {
	return func(d *Downloader) {
		d.fallback = f
	}
}

// WithS3 sets the fetcher for s3:// URLs
func WithS3(f Fetcher) DownloaderOption {
	return func(d *Downloader) {
		d.s3 = f
	}
}

// WithDownloadLogger sets the logger
func WithDownloadLogger(logger *slog.Logger) DownloaderOption {
	return func(d *Downloader) {
		d.logger = logger
	}
}

// NewDownloader creates a downloader writing into dir
func NewDownloader(dir string, primary Fetcher, opts ...DownloaderOption) *Downloader {
	d := &Downloader{dir: dir, primary: primary, logger: logging.Discard()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download fetches rawURL and returns the local path, named after the URL basename
func (d *Downloader) Download(ctx context.Context, rawURL string) (string, error) {
	if err := ValidateURL(rawURL); err != nil {
		return "", err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return "", fmt.Errorf("creating download directory: %w", err)
	}
	dest := filepath.Join(d.dir, path.Base(u.Path))

	if u.Scheme == "s3" {
		if d.s3 == nil {
			return "", fmt.Errorf("%w: no S3 transport configured for %s", ErrDownloadFailed, rawURL)
		}
		if err := d.fetchTo(ctx, d.s3, rawURL, dest); err != nil {
			return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
		}
		return dest, nil
	}

	err = d.fetchTo(ctx, d.primary, rawURL, dest)
	if err == nil {
		return dest, nil
	}
	if d.fallback == nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	d.logger.Warn("primary download failed, trying fallback", "error", err)
	if ferr := d.fetchTo(ctx, d.fallback, rawURL, dest); ferr != nil {
		return "", fmt.Errorf("%w: primary: %v; fallback: %v", ErrDownloadFailed, err, ferr)
	}
	return dest, nil
}

// fetchTo writes into a temporary file and renames it into place, so a
// failed attempt never leaves a partial archive at dest
func (d *Downloader) fetchTo(ctx context.Context, f Fetcher, rawURL, dest string) error {
	tmp, err := os.CreateTemp(d.dir, ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := f.Fetch(ctx, rawURL, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	info, err := os.Stat(tmp.Name())
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return errors.New("downloaded file is empty")
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return err
	}

	d.logger.Info("archive downloaded", "path", dest, "bytes", info.Size())
	return nil
}

// HTTPFetcher downloads with the Go HTTP client
type HTTPFetcher struct {
	client *transport.HTTPClient
}

// NewHTTPFetcher creates the primary fetcher
func NewHTTPFetcher(client *transport.HTTPClient) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

// Fetch implements Fetcher
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s", transport.ErrHTTPStatus, resp.Status)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	return nil
}

// CurlFetcher downloads by running curl
type CurlFetcher struct {
	runner transport.Runner
	binary string
}

// NewCurlFetcher creates the fallback fetcher
func NewCurlFetcher(runner transport.Runner) *CurlFetcher {
	return &CurlFetcher{runner: runner, binary: "curl"}
}

// Fetch implements Fetcher. curl writes straight to the file when w is one.
func (f *CurlFetcher) Fetch(ctx context.Context, rawURL string, w io.Writer) error {
	file, ok := w.(*os.File)
	if !ok {
		return errors.New("curl fetcher needs a file destination")
	}

	res, err := f.runner.Run(ctx, f.binary, "--fail", "--silent", "--show-error", "--location", "--output", file.Name(), rawURL)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("curl exited %d: %s", res.ExitCode, res.Stderr)
	}
	return nil
}
