// Package source resolves, downloads and deploys the site archive.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/pendergraft/sitelaunch/internal/logging"
	"github.com/pendergraft/sitelaunch/internal/prompt"
	"github.com/pendergraft/sitelaunch/internal/validation"
)

// Common source errors
var (
	ErrUnsupportedArchive = errors.New("unsupported archive type")
	ErrInvalidURL         = errors.New("invalid source URL")
	ErrDownloadFailed     = errors.New("download failed")
)

// CustomURL is the menu entry that asks for a URL
const CustomURL = "custom URL"

// maxURLAttempts bounds re-prompting for a custom URL
const maxURLAttempts = 3

// Resolver turns a source name or URL into an archive URL
type Resolver struct {
	sources map[string]string
	prompt  prompt.Prompter
	logger  *slog.Logger
}

// NewResolver creates a resolver over the named sources table
func NewResolver(sources map[string]string, p prompt.Prompter, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Resolver{sources: sources, prompt: p, logger: logger}
}

// Resolve accepts an absolute archive URL as-is, looks a name up in the
// sources table, and otherwise offers the named sources plus CustomURL.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)

	if isAbsoluteURL(ref) {
		if err := ValidateURL(ref); err != nil {
			return "", err
		}
		return ref, nil
	}

	if ref != "" {
		if u, ok := r.sources[ref]; ok && strings.TrimSpace(u) != "" {
			u = strings.TrimSpace(u)
			if err := ValidateURL(u); err != nil {
				return "", fmt.Errorf("source %q: %w", ref, err)
			}
			r.logger.Debug("source resolved from table", "name", ref, "url", u)
			return u, nil
		}
		r.logger.Warn("source not found in configuration", "name", ref)
	}

	return r.choose(ctx)
}

func (r *Resolver) choose(ctx context.Context) (string, error) {
	names := r.Names()
	options := append(append([]string{}, names...), CustomURL)

	idx, err := r.prompt.Choose("Select source archive", options)
	if err != nil {
		return "", fmt.Errorf("selecting source: %w", err)
	}
	if idx < len(names) {
		u := strings.TrimSpace(r.sources[names[idx]])
		if err := ValidateURL(u); err != nil {
			return "", fmt.Errorf("source %q: %w", names[idx], err)
		}
		return u, nil
	}

	var lastErr error
	for attempt := 0; attempt < maxURLAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		u, err := r.prompt.Input("Archive URL", "")
		if err != nil {
			return "", err
		}
		u = strings.TrimSpace(u)
		if lastErr = ValidateURL(u); lastErr == nil {
			return u, nil
		}
		r.logger.Warn("rejected archive URL", "error", lastErr)
	}
	return "", lastErr
}

// Names returns the configured source names with a non-empty URL, sorted
func (r *Resolver) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name, u := range r.sources {
		if strings.TrimSpace(u) != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ValidateURL requires an absolute http, https or s3 URL ending in a recognized archive extension
func ValidateURL(raw string) error {
	if !isAbsoluteURL(raw) {
		return fmt.Errorf("%w: %q must be an absolute http, https or s3 URL", ErrInvalidURL, raw)
	}
	if !validation.HasArchiveExtension(raw) {
		return fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedArchive, raw, strings.Join(validation.ArchiveExtensions, " "))
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "http", "https", "s3":
		return true
	}
	return false
}
