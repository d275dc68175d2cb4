package pipeline

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// PasswordLength is the length of generated database passwords
	PasswordLength = 16

	passwordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	recordTimeFormat = "20060102_150405"
)

// CredentialsRecord is written once per run after the database is created
type CredentialsRecord struct {
	RunID      string    `yaml:"run_id"`
	Domain     string    `yaml:"domain"`
	Registrar  string    `yaml:"registrar"`
	Panel      string    `yaml:"panel"`
	DBName     string    `yaml:"db_name"`
	DBUser     string    `yaml:"db_user"`
	DBPassword string    `yaml:"db_password"`
	Timestamp  time.Time `yaml:"timestamp"`
}

// GeneratePassword returns PasswordLength random characters from [A-Za-z0-9]
func GeneratePassword() (string, error) {
	max := big.NewInt(int64(len(passwordAlphabet)))
	b := make([]byte, PasswordLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating password: %w", err)
		}
		b[i] = passwordAlphabet[n.Int64()]
	}
	return string(b), nil
}

// WriteRecord stores rec as "<dir>/<domain>_<timestamp>.yaml", readable by the
// owner only. An existing file is never overwritten; a numeric suffix is added.
func WriteRecord(dir string, rec CredentialsRecord) (string, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("creating records directory: %w", err)
	}

	data, err := yaml.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encoding credentials record: %w", err)
	}

	base := fmt.Sprintf("%s_%s", rec.Domain, rec.Timestamp.Format(recordTimeFormat))
	for i := 0; i < 100; i++ {
		name := base + ".yaml"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.yaml", base, i)
		}
		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("creating credentials record: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("writing credentials record: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("writing credentials record: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free credentials record name for %s", rec.Domain)
}
