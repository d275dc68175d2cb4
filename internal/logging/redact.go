package logging

import (
	"sort"
	"strings"
	"sync"
)

// Mask replaces every secret in log output.
const Mask = "****"

// minSecretLen keeps short values like "1" or "no" from being treated as secrets.
const minSecretLen = 4

// Redactor masks known secret substrings. It is shared by the log handler and
// by the transport, which logs request URLs and command lines.
type Redactor struct {
	mu      sync.RWMutex
	secrets []string
}

// NewRedactor creates a Redactor seeded with secrets
func NewRedactor(secrets ...string) *Redactor {
	r := &Redactor{}
	r.Add(secrets...)
	return r
}

// Add registers additional secrets. Empty and very short values are ignored.
func (r *Redactor) Add(secrets ...string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range secrets {
		s = strings.TrimSpace(s)
		if len(s) < minSecretLen || r.has(s) {
			continue
		}
		r.secrets = append(r.secrets, s)
	}
	// Longest first so a secret containing another is masked whole.
	sort.Slice(r.secrets, func(i, j int) bool {
		return len(r.secrets[i]) > len(r.secrets[j])
	})
}

func (r *Redactor) has(s string) bool {
	for _, existing := range r.secrets {
		if existing == s {
			return true
		}
	}
	return false
}

// Redact returns s with every registered secret replaced by Mask
func (r *Redactor) Redact(s string) string {
	if r == nil || s == "" {
		return s
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, secret := range r.secrets {
		if strings.Contains(s, secret) {
			s = strings.ReplaceAll(s, secret, Mask)
		}
	}
	return s
}

// RedactArgs masks each element of a command line
func (r *Redactor) RedactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Redact(a)
	}
	return out
}

// MaskKey shortens a credential for display, keeping only a recognizable prefix and suffix
func MaskKey(key string) string {
	if len(key) <= 8 {
		return Mask
	}
	return key[:4] + "..." + key[len(key)-4:]
}
