package engine

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/moduleloader"
	"github.com/emberrun/sandbox/internal/packages"
	"github.com/emberrun/sandbox/internal/pkg/fsutil"
	"github.com/emberrun/sandbox/internal/pool"
)

type fakeMetadataStore struct {
	fn *domain.Function
}

func (f *fakeMetadataStore) GetFunction(ctx context.Context, id string) (*domain.Function, error) {
	if f.fn == nil || f.fn.ID != id {
		return nil, domain.ErrNotFound
	}
	return f.fn, nil
}

type fakePolicyStore struct{}

func (fakePolicyStore) GetPolicy(ctx context.Context, projectID string) (domain.NetworkPolicy, error) {
	return domain.NetworkPolicy{}, nil
}

type fakeKV struct{}

func (fakeKV) Get(project, key string) ([]byte, bool, error)              { return nil, false, nil }
func (fakeKV) Set(project, key string, value []byte, ttl time.Duration) error { return nil }
func (fakeKV) Delete(project, key string) error                           { return nil }
func (fakeKV) Has(project, key string) (bool, error)                      { return false, nil }
func (fakeKV) Keys(project string) ([]string, error)                      { return nil, nil }

// fakeS3 serves a single zip archive's bytes regardless of the requested
// key, enough to exercise packages.Provider without a real bucket.
type fakeS3 struct {
	archive []byte
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.archive))}, nil
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// archiveDigest computes the same digest packages.Provider verifies
// downloaded packages against, so tests can set a PackageDigest that
// actually matches the fake archive's bytes.
func archiveDigest(t *testing.T, archive []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.zip")
	if err := os.WriteFile(path, archive, 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	sum, err := fsutil.HashFile(path)
	if err != nil {
		t.Fatalf("hash archive: %v", err)
	}
	return sum
}

func newTestEngine(t *testing.T, fn *domain.Function, source string) *Engine {
	t.Helper()

	archive := buildZip(t, map[string]string{"index.js": source})
	if fn != nil {
		fn.PackageDigest = archiveDigest(t, archive)
	}
	pkgProvider := packages.New(&fakeS3{archive: archive}, "test-bucket", t.TempDir())

	guestPool := pool.New(pool.Config{BasePoolSize: 1, MaxPoolSize: 1, MemoryLimitMB: 64})
	t.Cleanup(func() { guestPool.Shutdown(time.Second) })

	scripts := moduleloader.NewScriptCache(16, true)

	return New(Config{FunctionTimeout: 2 * time.Second}, &fakeMetadataStore{fn: fn}, fakePolicyStore{}, pkgProvider, guestPool, fakeKV{}, scripts)
}

func TestExecuteFunctionReturnsHandlerOutput(t *testing.T) {
	fn := &domain.Function{
		ID:            "fn1",
		Project:       "proj1",
		ActiveVersion: 1,
		PackageDigest: "digest1",
		PackagePath:   "fn1/v1.zip",
		MemoryMB:      64,
		TimeoutMs:     1000,
	}
	e := newTestEngine(t, fn, `module.exports = function(req, res) { return { ok: true }; };`)

	resp, err := e.ExecuteFunction(context.Background(), &domain.InvokeRequest{FunctionID: "fn1"})
	if err != nil {
		t.Fatalf("ExecuteFunction returned error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200; error=%q", resp.StatusCode, resp.Error)
	}
	if string(resp.Data) != `{"ok":true}` {
		t.Fatalf("data = %s, want {\"ok\":true}", resp.Data)
	}
}

func TestExecuteFunctionMissingFunctionReturns404(t *testing.T) {
	e := newTestEngine(t, nil, `module.exports = function() {};`)

	resp, err := e.ExecuteFunction(context.Background(), &domain.InvokeRequest{FunctionID: "missing"})
	if err != nil {
		t.Fatalf("ExecuteFunction returned error: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestExecuteFunctionTimesOut(t *testing.T) {
	fn := &domain.Function{
		ID:            "slow",
		Project:       "proj1",
		ActiveVersion: 1,
		PackageDigest: "digest-slow",
		PackagePath:   "slow/v1.zip",
		MemoryMB:      64,
		TimeoutMs:     50,
	}
	e := newTestEngine(t, fn, `module.exports = function() { while (true) {} };`)

	resp, err := e.ExecuteFunction(context.Background(), &domain.InvokeRequest{FunctionID: "slow"})
	if err != nil {
		t.Fatalf("ExecuteFunction returned error: %v", err)
	}
	if resp.StatusCode != 504 {
		t.Fatalf("status = %d, want 504", resp.StatusCode)
	}
}
