// Package vfs presents a package directory as a guest-visible POSIX tree and
// enforces confinement: every resolved path must land inside the package
// root. Grounded on the provider/router split used by the example pack's
// FUSE-backed virtual filesystem (a Provider serving Stat/ReadDir/Open
// against one rooted tree), simplified here to a single host-rooted
// provider since a function package is one directory, not a multi-mount
// tree.
package vfs

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/errx"
)

// FileInfo is the guest-visible stat record (§4.1): times are formatted as
// ISO-8601 strings by the bridge layer, not here.
type FileInfo struct {
	Name      string
	Size      int64
	Mode      os.FileMode
	ModTime   time.Time
	AccTime   time.Time
	ChangeTime time.Time
	IsDir     bool
	IsSymlink bool
}

// DirEntry is one sorted entry returned by ReadDir.
type DirEntry struct {
	Name  string
	IsDir bool
}

// FS roots a guest-visible tree at a host directory and confines every
// operation to stay under it. The zero value is not usable; use New.
type FS struct {
	root string // canonical (symlink-resolved) host root
}

// New confines all future operations to hostRoot. hostRoot must exist.
func New(hostRoot string) (*FS, error) {
	canon, err := filepath.EvalSymlinks(hostRoot)
	if err != nil {
		return nil, errx.With(domain.ErrNotFound, ": package root %v", err)
	}
	return &FS{root: canon}, nil
}

// Root returns the confined host root. Used only by collaborators that need
// to materialise the directory (e.g. the module loader); never exposed to
// guest code.
func (fs *FS) Root() string { return fs.root }

// Resolve turns a guest path into a confined host path. It implements the
// confinement algorithm from §4.1: normalize, prefix with root, canonicalise
// symlinks on the existing portion, and verify the canonical form is
// lexicographically under the canonical root. Any escape is
// PermissionDenied; the error never includes the host path.
func (fs *FS) Resolve(guestPath string) (string, error) {
	// Join cleans root and guestPath together, so a ".." that climbs above
	// the root lands outside it and fails the containment check below.
	candidate := filepath.Join(fs.root, guestPath)

	resolved, err := resolveSymlinkPrefix(candidate)
	if err != nil {
		return "", errx.With(domain.ErrNotFound, "")
	}

	if resolved != fs.root && !strings.HasPrefix(resolved, fs.root+string(os.PathSeparator)) {
		return "", errx.With(domain.ErrPermissionDenied, ": path escapes package root")
	}
	return resolved, nil
}

// resolveSymlinkPrefix canonicalises the longest existing prefix of path and
// rejoins the remaining (possibly not-yet-created) suffix, so that writes to
// not-yet-existing files can still be confinement-checked.
func resolveSymlinkPrefix(path string) (string, error) {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real, nil
	}
	dir, base := filepath.Split(path)
	dir = strings.TrimSuffix(dir, string(os.PathSeparator))
	if dir == "" || dir == path {
		return path, nil
	}
	realDir, err := resolveSymlinkPrefix(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(realDir, base), nil
}

func mapOSErr(err error) error {
	switch {
	case os.IsNotExist(err):
		return errx.Wrap(domain.ErrNotFound, err)
	case os.IsPermission(err):
		return errx.Wrap(domain.ErrPermissionDenied, err)
	default:
		return errx.Wrap(domain.ErrInternal, err)
	}
}

// ReadFile reads the whole confined file.
func (fs *FS) ReadFile(guestPath string) ([]byte, error) {
	host, err := fs.Resolve(guestPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(host)
	if err != nil {
		return nil, mapOSErr(err)
	}
	return data, nil
}

// WriteFile writes data to a confined path, creating or truncating it.
func (fs *FS) WriteFile(guestPath string, data []byte, mode os.FileMode) error {
	host, err := fs.Resolve(guestPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(host, data, mode); err != nil {
		return mapOSErr(err)
	}
	return nil
}

// AppendFile appends data to a confined path, creating it if absent.
func (fs *FS) AppendFile(guestPath string, data []byte, mode os.FileMode) error {
	host, err := fs.Resolve(guestPath)
	if err != nil {
		return err
	}
	f, oerr := os.OpenFile(host, os.O_CREATE|os.O_WRONLY|os.O_APPEND, mode)
	if oerr != nil {
		return mapOSErr(oerr)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return mapOSErr(err)
	}
	return nil
}

// Stat returns file metadata for a confined path.
func (fs *FS) Stat(guestPath string) (FileInfo, error) {
	host, err := fs.Resolve(guestPath)
	if err != nil {
		return FileInfo{}, err
	}
	info, serr := os.Lstat(host)
	if serr != nil {
		return FileInfo{}, mapOSErr(serr)
	}
	fi := FileInfo{
		Name:      info.Name(),
		Size:      info.Size(),
		Mode:      info.Mode(),
		ModTime:   info.ModTime(),
		IsDir:     info.IsDir(),
		IsSymlink: info.Mode()&os.ModeSymlink != 0,
	}
	fi.AccTime, fi.ChangeTime = statTimes(info)
	return fi, nil
}

// Exists reports whether guestPath resolves to something, without throwing.
func (fs *FS) Exists(guestPath string) bool {
	host, err := fs.Resolve(guestPath)
	if err != nil {
		return false
	}
	_, err = os.Lstat(host)
	return err == nil
}

// ReadDir lists a confined directory, sorted by name.
func (fs *FS) ReadDir(guestPath string) ([]DirEntry, error) {
	host, err := fs.Resolve(guestPath)
	if err != nil {
		return nil, err
	}
	entries, rerr := os.ReadDir(host)
	if rerr != nil {
		return nil, mapOSErr(rerr)
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Mkdir creates a confined directory.
func (fs *FS) Mkdir(guestPath string, mode os.FileMode) error {
	host, err := fs.Resolve(guestPath)
	if err != nil {
		return err
	}
	if err := os.Mkdir(host, mode); err != nil {
		return mapOSErr(err)
	}
	return nil
}

// Unlink removes a confined file.
func (fs *FS) Unlink(guestPath string) error {
	host, err := fs.Resolve(guestPath)
	if err != nil {
		return err
	}
	if err := os.Remove(host); err != nil {
		return mapOSErr(err)
	}
	return nil
}

// Rmdir removes a confined, empty directory.
func (fs *FS) Rmdir(guestPath string) error {
	return fs.Unlink(guestPath)
}

// Rename moves a confined path to another confined path.
func (fs *FS) Rename(oldGuestPath, newGuestPath string) error {
	oldHost, err := fs.Resolve(oldGuestPath)
	if err != nil {
		return err
	}
	newHost, err := fs.Resolve(newGuestPath)
	if err != nil {
		return err
	}
	if err := os.Rename(oldHost, newHost); err != nil {
		return mapOSErr(err)
	}
	return nil
}

// CopyFile copies a confined file's bytes to another confined path.
func (fs *FS) CopyFile(srcGuestPath, dstGuestPath string) error {
	data, err := fs.ReadFile(srcGuestPath)
	if err != nil {
		return err
	}
	info, err := fs.Stat(srcGuestPath)
	if err != nil {
		return err
	}
	return fs.WriteFile(dstGuestPath, data, info.Mode.Perm())
}

// Chmod changes the mode of a confined, guest-owned path. Host-owned files
// (outside the package root, which Resolve already rejects) are never
// reachable here, but Chmod still refuses to touch anything Resolve did not
// confirm is under root.
func (fs *FS) Chmod(guestPath string, mode os.FileMode) error {
	host, err := fs.Resolve(guestPath)
	if err != nil {
		return err
	}
	if err := os.Chmod(host, mode); err != nil {
		return mapOSErr(err)
	}
	return nil
}

// Chown is always PermissionDenied: guest packages never own host uid/gid
// and changing ownership of extracted package files is never permitted.
func (fs *FS) Chown(guestPath string, uid, gid int) error {
	if _, err := fs.Resolve(guestPath); err != nil {
		return err
	}
	return errx.With(domain.ErrPermissionDenied, ": chown is not permitted")
}

// Truncate resizes a confined file.
func (fs *FS) Truncate(guestPath string, size int64) error {
	host, err := fs.Resolve(guestPath)
	if err != nil {
		return err
	}
	if err := os.Truncate(host, size); err != nil {
		return mapOSErr(err)
	}
	return nil
}
