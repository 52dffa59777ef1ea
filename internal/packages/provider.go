// Package packages implements the Package provider collaborator (§6.3):
// given a functionId it returns a stable host directory rooted by
// index.js, downloading and extracting from S3 on first reference and
// reusing a content-addressed on-disk cache thereafter. The on-disk
// cache's dedup-by-hash idiom is grounded on internal/codeloader's
// LayerCache (content hash -> path map, hard-link where possible); the
// download path itself has no direct precedent (nothing in the source
// materializes package directories rather than VM disk images), so the
// S3 call shape follows the SDK's own documented API instead (see
// DESIGN.md).
package packages

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/errx"
	"github.com/emberrun/sandbox/internal/logging"
	"github.com/emberrun/sandbox/internal/pkg/fsutil"
)

// S3API is the subset of *s3.Client this provider calls, narrowed for
// testability.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Provider downloads and extracts function packages from an S3-compatible
// bucket, caching extracted directories on disk keyed by digest so
// concurrent invocations of the same version never re-download or
// re-extract (§6.3 "concurrent downloads ... serialised by a lock").
type Provider struct {
	client   S3API
	bucket   string
	cacheDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a Provider rooted at cacheDir, downloading from bucket via
// client.
func New(client S3API, bucket, cacheDir string) *Provider {
	return &Provider{
		client:   client,
		bucket:   bucket,
		cacheDir: cacheDir,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Package is what the provider hands back: a host directory whose index.js
// is ready to be rooted by the VFS, plus the digest/version it resolved.
type Package struct {
	HostDir string
	Digest  string
	Version int
}

// Materialize downloads and extracts fn's active package version if it is
// not already cached on disk, returning the stable host directory. The
// directory is treated read-only by every caller for the lifetime of one
// invocation (§6.3).
func (p *Provider) Materialize(ctx context.Context, fn *domain.Function) (*Package, error) {
	lock := p.lockFor(fn.PackageDigest)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Join(p.cacheDir, fn.PackageDigest)
	if entryInfo, err := os.Stat(filepath.Join(dir, "index.js")); err == nil && !entryInfo.IsDir() {
		return &Package{HostDir: dir, Digest: fn.PackageDigest, Version: fn.ActiveVersion}, nil
	}

	logging.Op().Info("downloading function package", "function_id", fn.ID, "digest", fn.PackageDigest)

	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(fn.PackagePath),
	})
	if err != nil {
		return nil, errx.Wrap(domain.ErrInternal, fmt.Errorf("download package %s: %w", fn.PackagePath, err))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errx.Wrap(domain.ErrInternal, err)
	}

	tmp := dir + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return nil, errx.Wrap(domain.ErrInternal, err)
	}

	archivePath := tmp + ".zip"
	if err := os.WriteFile(archivePath, data, 0o644); err != nil {
		return nil, errx.Wrap(domain.ErrInternal, err)
	}
	defer os.Remove(archivePath)

	if fn.PackageDigest != "" {
		sum, err := fsutil.HashFile(archivePath)
		if err != nil {
			return nil, errx.Wrap(domain.ErrInternal, err)
		}
		if sum != fn.PackageDigest {
			return nil, errx.With(domain.ErrInvalidArgument, ": package %s failed integrity check (got %s)", fn.PackageDigest, sum)
		}
	}

	if err := extractZip(data, tmp); err != nil {
		os.RemoveAll(tmp)
		return nil, errx.Wrap(domain.ErrInvalidArgument, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		os.RemoveAll(tmp)
		return nil, errx.Wrap(domain.ErrInternal, err)
	}
	if err := os.Rename(tmp, dir); err != nil {
		return nil, errx.Wrap(domain.ErrInternal, err)
	}

	if _, err := os.Stat(filepath.Join(dir, "index.js")); err != nil {
		return nil, errx.With(domain.ErrInvalidArgument, ": package %s has no index.js entry point", fn.PackageDigest)
	}

	return &Package{HostDir: dir, Digest: fn.PackageDigest, Version: fn.ActiveVersion}, nil
}

func (p *Provider) lockFor(digest string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[digest]
	if !ok {
		l = &sync.Mutex{}
		p.locks[digest] = l
	}
	return l
}

func extractZip(data []byte, destDir string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	for _, f := range zr.File {
		target := filepath.Join(destDir, f.Name)
		if !isWithin(destDir, target) {
			return fmt.Errorf("package entry %q escapes extraction root", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractOne(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractOne(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

func isWithin(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !filepathHasDotDotPrefix(rel)
}

func filepathHasDotDotPrefix(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
