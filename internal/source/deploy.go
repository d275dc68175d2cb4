package source

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/moby/go-archive"

	"github.com/pendergraft/sitelaunch/internal/logging"
	"github.com/pendergraft/sitelaunch/internal/validation"
)

// Permissions applied to deployed content
const (
	DirMode  os.FileMode = 0755
	FileMode os.FileMode = 0644
)

// backupTimeFormat is the suffix layout of backup directories
const backupTimeFormat = "20060102_150405"

// ignoredTopLevel are archive entries that are never part of the site
var ignoredTopLevel = map[string]bool{"__MACOSX": true}

// Deployment describes a finished deploy
type Deployment struct {
	WebRoot string
	// Backup is the directory the previous content was moved to, if any
	Backup string
	// Unwrapped is the top-level directory whose contents became the web root
	Unwrapped string
	Files     int
}

// Deployer extracts archives into a web root
type Deployer struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewDeployer creates a deployer
func NewDeployer(logger *slog.Logger) *Deployer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Deployer{logger: logger, now: time.Now}
}

// Deploy replaces the contents of webRoot with the archive. Existing content
// is moved to a timestamped backup first and is left in place on failure.
func (d *Deployer) Deploy(ctx context.Context, archivePath, webRoot string) (*Deployment, error) {
	ext := validation.ArchiveExtension(archivePath)
	if ext == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArchive, filepath.Base(archivePath))
	}
	webRoot = filepath.Clean(webRoot)
	result := &Deployment{WebRoot: webRoot}

	uid, gid, haveOwner := d.originalOwner(webRoot)

	empty, err := isEmptyDir(webRoot)
	if err != nil {
		return nil, err
	}
	if !empty {
		backup, err := BackupPath(webRoot, d.now())
		if err != nil {
			return nil, err
		}
		if err := os.Rename(webRoot, backup); err != nil {
			return nil, fmt.Errorf("moving existing web root aside: %w", err)
		}
		result.Backup = backup
		d.logger.Info("existing web root backed up", "backup", backup)
	}
	if err := os.MkdirAll(webRoot, DirMode); err != nil {
		return result, fmt.Errorf("creating web root: %w", err)
	}

	staging, err := os.MkdirTemp(filepath.Dir(webRoot), ".sitelaunch-staging-")
	if err != nil {
		return result, fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := extract(ctx, archivePath, ext, staging); err != nil {
		return result, err
	}

	payload, unwrapped, err := payloadRoot(staging)
	if err != nil {
		return result, err
	}
	result.Unwrapped = unwrapped

	n, err := copyTree(ctx, payload, webRoot)
	if err != nil {
		return result, fmt.Errorf("copying into web root: %w", err)
	}
	result.Files = n

	if haveOwner {
		if err := chownTree(webRoot, uid, gid); err != nil {
			return result, fmt.Errorf("restoring ownership: %w", err)
		}
	}
	if err := normalizeModes(webRoot); err != nil {
		return result, fmt.Errorf("setting permissions: %w", err)
	}

	d.logger.Info("archive deployed", "web_root", webRoot, "files", n, "unwrapped", unwrapped)
	return result, nil
}

// originalOwner reads the owner of webRoot, or of its parent when it does
// not exist yet
func (d *Deployer) originalOwner(webRoot string) (uid, gid int, ok bool) {
	uid, gid, ok = fileOwner(webRoot)
	if !ok {
		uid, gid, ok = fileOwner(filepath.Dir(webRoot))
	}
	return uid, gid, ok
}

// BackupPath returns "<webRoot>_bak_<YYYYMMDD_HHMMSS>", adding "_N" until
// the name is unused
func BackupPath(webRoot string, now time.Time) (string, error) {
	base := webRoot + "_bak_" + now.Format(backupTimeFormat)
	candidate := base
	for i := 1; i < 1000; i++ {
		if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("checking backup path: %w", err)
		}
		candidate = base + "_" + strconv.Itoa(i)
	}
	return "", fmt.Errorf("no free backup name for %s", webRoot)
}

func isEmptyDir(dir string) (bool, error) {
	f, err := os.Open(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("opening web root: %w", err)
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if err == io.EOF {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading web root: %w", err)
	}
	return false, nil
}

func extract(ctx context.Context, archivePath, ext, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ext == ".zip" {
		return extractZip(archivePath, dest)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	// Untar detects gzip and bzip2 compression itself
	if err := archive.Untar(f, dest, &archive.TarOptions{NoLchown: true}); err != nil {
		return fmt.Errorf("extracting %s: %w", filepath.Base(archivePath), err)
	}
	return nil
}

func extractZip(archivePath, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening zip: %w", err)
	}
	defer zr.Close()

	root := filepath.Clean(dest) + string(os.PathSeparator)
	for _, zf := range zr.File {
		target := filepath.Join(dest, filepath.FromSlash(zf.Name))
		if !strings.HasPrefix(target+string(os.PathSeparator), root) {
			return fmt.Errorf("zip entry %q escapes the extraction directory", zf.Name)
		}

		mode := zf.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, DirMode); err != nil {
				return err
			}
		case mode&os.ModeSymlink != 0:
			if err := extractZipSymlink(zf, target, root); err != nil {
				return err
			}
		default:
			if err := extractZipFile(zf, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func extractZipFile(zf *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), DirMode); err != nil {
		return err
	}
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("reading %s: %w", zf.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, FileMode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extracting %s: %w", zf.Name, err)
	}
	return out.Close()
}

func extractZipSymlink(zf *zip.File, target, root string) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	link, err := io.ReadAll(io.LimitReader(rc, 4096))
	if err != nil {
		return err
	}
	dest := filepath.Join(filepath.Dir(target), string(link))
	if filepath.IsAbs(string(link)) || !strings.HasPrefix(dest+string(os.PathSeparator), root) {
		return fmt.Errorf("zip symlink %q points outside the extraction directory", zf.Name)
	}
	if err := os.MkdirAll(filepath.Dir(target), DirMode); err != nil {
		return err
	}
	return os.Symlink(string(link), target)
}

// payloadRoot returns the directory whose contents are the site. A single
// top-level directory is unwrapped; its name is returned as unwrapped.
func payloadRoot(staging string) (root, unwrapped string, err error) {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return "", "", err
	}

	var kept []fs.DirEntry
	for _, e := range entries {
		if !ignoredTopLevel[e.Name()] {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		return "", "", errors.New("archive is empty")
	}
	if len(kept) == 1 && kept[0].IsDir() {
		return filepath.Join(staging, kept[0].Name()), kept[0].Name(), nil
	}
	return staging, "", nil
}

// copyTree copies the contents of src into dst and returns the number of files copied
func copyTree(ctx context.Context, src, dst string) (int, error) {
	files := 0
	err := filepath.WalkDir(src, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if ignoredTopLevel[strings.Split(filepath.ToSlash(rel), "/")[0]] {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(dst, rel)

		switch {
		case entry.IsDir():
			return os.MkdirAll(target, DirMode)
		case entry.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case entry.Type().IsRegular():
			files++
			return copyFile(p, target)
		default:
			// Devices, sockets and pipes are not site content
			return nil
		}
	})
	return files, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, FileMode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func chownTree(root string, uid, gid int) error {
	return filepath.WalkDir(root, func(p string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return os.Lchown(p, uid, gid)
	})
}

func normalizeModes(root string) error {
	return filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		switch {
		case entry.IsDir():
			return os.Chmod(p, DirMode)
		case entry.Type().IsRegular():
			return os.Chmod(p, FileMode)
		}
		return nil
	})
}
