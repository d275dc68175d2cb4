package source

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	s3aws "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/sitelaunch/internal/prompt"
	"github.com/pendergraft/sitelaunch/internal/transport"
)

var testSources = map[string]string{
	"wordpress": "https://wordpress.org/latest.zip",
	"joomla":    "https://downloads.example.org/joomla.tar.gz",
	"empty":     "",
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		ref     string
		answers []string
		want    string
		wantErr error
	}{
		{name: "absolute URL", ref: "https://example.org/app.zip", want: "https://example.org/app.zip"},
		{name: "s3 URL", ref: "s3://sites/app.tar.gz", want: "s3://sites/app.tar.gz"},
		{name: "absolute URL with bad extension", ref: "https://example.org/app.rar", wantErr: ErrUnsupportedArchive},
		{name: "named source", ref: "wordpress", want: "https://wordpress.org/latest.zip"},
		{name: "unknown name falls back to menu", ref: "drupal", answers: []string{"1"}, want: "https://downloads.example.org/joomla.tar.gz"},
		{name: "empty ref shows menu", ref: "", answers: []string{"wordpress"}, want: "https://wordpress.org/latest.zip"},
		{name: "custom URL", answers: []string{"3", "https://example.org/site.tgz"}, want: "https://example.org/site.tgz"},
		{name: "custom URL re-prompts", answers: []string{"3", "ftp://example.org/a.zip", "https://example.org/a.exe", "https://example.org/a.tar"}, want: "https://example.org/a.tar"},
		{name: "custom URL gives up", answers: []string{"3", "x", "y", "https://example.org/a.exe"}, wantErr: ErrUnsupportedArchive},
		{name: "menu out of range", answers: []string{"4"}, wantErr: prompt.ErrInvalidChoice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(testSources, prompt.NewScripted(tt.answers...), nil)
			got, err := r.Resolve(ctx, tt.ref)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolverNamesSkipsEmpty(t *testing.T) {
	r := NewResolver(testSources, nil, nil)
	assert.Equal(t, []string{"joomla", "wordpress"}, r.Names())
}

func TestResolveRejectsBadTableEntry(t *testing.T) {
	r := NewResolver(map[string]string{"bad": "https://example.org/app.exe"}, prompt.NewScripted(), nil)
	_, err := r.Resolve(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrUnsupportedArchive)
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("https://example.org/path/site.tar.bz2"))
	assert.NoError(t, ValidateURL("http://example.org/site.TGZ?token=1"))
	assert.ErrorIs(t, ValidateURL("example.org/site.zip"), ErrInvalidURL)
	assert.ErrorIs(t, ValidateURL("file:///tmp/site.zip"), ErrInvalidURL)
	assert.ErrorIs(t, ValidateURL("https://example.org/.zip"), ErrUnsupportedArchive)
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := ParseS3URL("s3://sites/releases/app.zip")
	require.NoError(t, err)
	assert.Equal(t, "sites", bucket)
	assert.Equal(t, "releases/app.zip", key)

	_, _, err = ParseS3URL("s3://sites/")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

// fetcherFunc adapts a function to Fetcher
type fetcherFunc func(ctx context.Context, rawURL string, w io.Writer) error

func (f fetcherFunc) Fetch(ctx context.Context, rawURL string, w io.Writer) error {
	return f(ctx, rawURL, w)
}

func failing(msg string) Fetcher {
	return fetcherFunc(func(context.Context, string, io.Writer) error { return errors.New(msg) })
}

func writing(content string) Fetcher {
	return fetcherFunc(func(_ context.Context, _ string, w io.Writer) error {
		_, err := io.WriteString(w, content)
		return err
	})
}

func TestDownloadHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/releases/app.zip", r.URL.Path)
		w.Write([]byte("PK-archive-bytes"))
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "downloads")
	d := NewDownloader(dir, NewHTTPFetcher(transport.NewHTTPClient(5*time.Second)))

	path, err := d.Download(context.Background(), server.URL+"/releases/app.zip")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "app.zip"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PK-archive-bytes", string(data))
}

func TestDownloadFallback(t *testing.T) {
	dir := t.TempDir()

	t.Run("fallback used once primary fails", func(t *testing.T) {
		d := NewDownloader(dir, failing("connection reset"), WithFallback(writing("from-curl")))
		path, err := d.Download(context.Background(), "https://example.org/app.tar.gz")
		require.NoError(t, err)
		data, _ := os.ReadFile(path)
		assert.Equal(t, "from-curl", string(data))
	})

	t.Run("both fail", func(t *testing.T) {
		d := NewDownloader(dir, failing("connection reset"), WithFallback(failing("curl: (6) could not resolve host")))
		_, err := d.Download(context.Background(), "https://example.org/other.zip")
		assert.ErrorIs(t, err, ErrDownloadFailed)
		assert.Contains(t, err.Error(), "connection reset")
		assert.Contains(t, err.Error(), "could not resolve host")
		assert.NoFileExists(t, filepath.Join(dir, "other.zip"))
	})

	t.Run("empty body is a failure", func(t *testing.T) {
		d := NewDownloader(dir, writing(""))
		_, err := d.Download(context.Background(), "https://example.org/empty.zip")
		assert.ErrorIs(t, err, ErrDownloadFailed)
	})

	t.Run("unsupported extension never fetches", func(t *testing.T) {
		called := false
		d := NewDownloader(dir, fetcherFunc(func(context.Context, string, io.Writer) error {
			called = true
			return nil
		}))
		_, err := d.Download(context.Background(), "https://example.org/app.rar")
		assert.ErrorIs(t, err, ErrUnsupportedArchive)
		assert.False(t, called)
	})
}

type fakeS3 struct {
	bucket, key string
	body        string
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3aws.GetObjectInput, _ ...func(*s3aws.Options)) (*s3aws.GetObjectOutput, error) {
	f.bucket, f.key = *in.Bucket, *in.Key
	return &s3aws.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestDownloadS3(t *testing.T) {
	client := &fakeS3{body: "tarball"}
	dir := t.TempDir()
	d := NewDownloader(dir, failing("http must not be used"), WithS3(NewS3Fetcher(client)))

	path, err := d.Download(context.Background(), "s3://sites/releases/app.tgz")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "app.tgz"), path)
	assert.Equal(t, "sites", client.bucket)
	assert.Equal(t, "releases/app.tgz", client.key)

	_, err = NewDownloader(dir, failing("x")).Download(context.Background(), "s3://sites/app.zip")
	assert.ErrorIs(t, err, ErrDownloadFailed)
}

type fakeCurl struct {
	args []string
	exit int
}

func (f *fakeCurl) Run(ctx context.Context, name string, args ...string) (*transport.Result, error) {
	f.args = append([]string{name}, args...)
	if f.exit != 0 {
		return &transport.Result{ExitCode: f.exit, Stderr: "curl: (22) 404"}, nil
	}
	out := args[len(args)-2]
	return &transport.Result{}, os.WriteFile(out, []byte("curl-bytes"), 0644)
}

func (f *fakeCurl) LookPath(name string) (string, error) { return name, nil }

func TestCurlFetcher(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeCurl{}
	d := NewDownloader(dir, failing("tls handshake timeout"), WithFallback(NewCurlFetcher(runner)))

	path, err := d.Download(context.Background(), "https://example.org/app.zip")
	require.NoError(t, err)
	data, _ := os.ReadFile(path)
	assert.Equal(t, "curl-bytes", string(data))
	assert.Equal(t, "curl", runner.args[0])
	assert.Equal(t, "https://example.org/app.zip", runner.args[len(runner.args)-1])

	runner.exit = 22
	_, err = d.Download(context.Background(), "https://example.org/app.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "curl exited 22")
}

// archive helpers

type entry struct {
	name string
	body string
	dir  bool
}

func writeZip(t *testing.T, path string, entries []entry) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		if e.dir {
			_, err := zw.Create(e.name + "/")
			require.NoError(t, err)
			continue
		}
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func writeTarGz(t *testing.T, path string, entries []entry) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		if e.dir {
			require.NoError(t, tw.WriteHeader(&tar.Header{Name: e.name + "/", Mode: 0700, Typeflag: tar.TypeDir}))
			continue
		}
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: e.name, Mode: 0600, Size: int64(len(e.body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func fixedDeployer(at time.Time) *Deployer {
	d := NewDeployer(nil)
	d.now = func() time.Time { return at }
	return d
}

func TestDeployZipUnwrapsSingleDirectory(t *testing.T) {
	base := t.TempDir()
	archivePath := filepath.Join(base, "app.zip")
	writeZip(t, archivePath, []entry{
		{name: "wordpress", dir: true},
		{name: "wordpress/index.php", body: "<?php echo 'hi';"},
		{name: "wordpress/wp-content/themes/style.css", body: "body{}"},
	})
	webRoot := filepath.Join(base, "example.com", "public_html")
	require.NoError(t, os.MkdirAll(webRoot, 0750))

	res, err := NewDeployer(nil).Deploy(context.Background(), archivePath, webRoot)
	require.NoError(t, err)
	assert.Empty(t, res.Backup, "empty web root is not backed up")
	assert.Equal(t, "wordpress", res.Unwrapped)
	assert.Equal(t, 2, res.Files)

	assert.FileExists(t, filepath.Join(webRoot, "index.php"))
	assert.FileExists(t, filepath.Join(webRoot, "wp-content", "themes", "style.css"))
	assert.NoDirExists(t, filepath.Join(webRoot, "wordpress"))

	info, err := os.Stat(filepath.Join(webRoot, "index.php"))
	require.NoError(t, err)
	assert.Equal(t, FileMode, info.Mode().Perm())
	info, err = os.Stat(filepath.Join(webRoot, "wp-content"))
	require.NoError(t, err)
	assert.Equal(t, DirMode, info.Mode().Perm())
	info, err = os.Stat(webRoot)
	require.NoError(t, err)
	assert.Equal(t, DirMode, info.Mode().Perm())

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(webRoot), ".sitelaunch-staging-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestDeployBacksUpExistingContent(t *testing.T) {
	base := t.TempDir()
	archivePath := filepath.Join(base, "site.tar.gz")
	writeTarGz(t, archivePath, []entry{
		{name: "index.html", body: "new"},
		{name: "assets", dir: true},
		{name: "assets/app.js", body: "js"},
	})
	webRoot := filepath.Join(base, "public_html")
	require.NoError(t, os.MkdirAll(webRoot, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(webRoot, "old.html"), []byte("old"), 0644))

	at := time.Date(2026, 10, 16, 14, 5, 9, 0, time.UTC)
	res, err := fixedDeployer(at).Deploy(context.Background(), archivePath, webRoot)
	require.NoError(t, err)

	assert.Equal(t, webRoot+"_bak_20261016_140509", res.Backup)
	assert.FileExists(t, filepath.Join(res.Backup, "old.html"))
	assert.NoFileExists(t, filepath.Join(webRoot, "old.html"), "old and new content never mix")
	assert.Empty(t, res.Unwrapped, "two top-level entries are not unwrapped")

	data, err := os.ReadFile(filepath.Join(webRoot, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	info, err := os.Stat(filepath.Join(webRoot, "assets", "app.js"))
	require.NoError(t, err)
	assert.Equal(t, FileMode, info.Mode().Perm())
}

func TestDeployBackupNamesAreDistinct(t *testing.T) {
	base := t.TempDir()
	archivePath := filepath.Join(base, "site.zip")
	writeZip(t, archivePath, []entry{{name: "index.html", body: "v"}})
	webRoot := filepath.Join(base, "public_html")
	require.NoError(t, os.MkdirAll(webRoot, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(webRoot, "v0.html"), []byte("v0"), 0644))

	d := fixedDeployer(time.Date(2026, 10, 16, 14, 5, 9, 0, time.UTC))
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		res, err := d.Deploy(context.Background(), archivePath, webRoot)
		require.NoError(t, err)
		require.NotEmpty(t, res.Backup)
		assert.False(t, seen[res.Backup], "backup %s reused", res.Backup)
		seen[res.Backup] = true
	}
	assert.True(t, seen[webRoot+"_bak_20261016_140509"])
	assert.True(t, seen[webRoot+"_bak_20261016_140509_1"])
	assert.True(t, seen[webRoot+"_bak_20261016_140509_2"])
}

func TestDeployCreatesMissingWebRoot(t *testing.T) {
	base := t.TempDir()
	archivePath := filepath.Join(base, "site.zip")
	writeZip(t, archivePath, []entry{{name: "__MACOSX", dir: true}, {name: "__MACOSX/._index.html", body: "x"}, {name: "app", dir: true}, {name: "app/index.html", body: "hi"}})
	webRoot := filepath.Join(base, "new-site", "public_html")

	res, err := NewDeployer(nil).Deploy(context.Background(), archivePath, webRoot)
	require.NoError(t, err)
	assert.Equal(t, "app", res.Unwrapped)
	assert.FileExists(t, filepath.Join(webRoot, "index.html"))
	assert.NoDirExists(t, filepath.Join(webRoot, "__MACOSX"))
}

func TestDeployFailures(t *testing.T) {
	t.Run("unsupported archive", func(t *testing.T) {
		_, err := NewDeployer(nil).Deploy(context.Background(), "/tmp/site.rar", t.TempDir())
		assert.ErrorIs(t, err, ErrUnsupportedArchive)
	})

	t.Run("corrupt archive keeps the backup", func(t *testing.T) {
		base := t.TempDir()
		archivePath := filepath.Join(base, "broken.zip")
		require.NoError(t, os.WriteFile(archivePath, []byte("not a zip"), 0644))
		webRoot := filepath.Join(base, "public_html")
		require.NoError(t, os.MkdirAll(webRoot, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(webRoot, "keep.html"), []byte("keep"), 0644))

		res, err := NewDeployer(nil).Deploy(context.Background(), archivePath, webRoot)
		require.Error(t, err)
		require.NotNil(t, res)
		assert.FileExists(t, filepath.Join(res.Backup, "keep.html"))
	})

	t.Run("zip slip", func(t *testing.T) {
		base := t.TempDir()
		archivePath := filepath.Join(base, "evil.zip")
		writeZip(t, archivePath, []entry{{name: "../../escape.txt", body: "x"}})

		_, err := NewDeployer(nil).Deploy(context.Background(), archivePath, filepath.Join(base, "www", "public_html"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "escapes")
	})

	t.Run("empty archive", func(t *testing.T) {
		base := t.TempDir()
		archivePath := filepath.Join(base, "empty.zip")
		writeZip(t, archivePath, nil)

		_, err := NewDeployer(nil).Deploy(context.Background(), archivePath, filepath.Join(base, "public_html"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})
}
