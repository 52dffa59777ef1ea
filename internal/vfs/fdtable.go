package vfs

import (
	"os"
	"sync"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/errx"
)

// FDTable is the small per-context fd space described in §4.1: guest fds are
// local integers mapped to host file descriptors. closeSync is mandatory;
// CloseAll is the cleanup-time backstop for leaked fds.
type FDTable struct {
	mu   sync.Mutex
	next int
	open map[int]*os.File
}

// NewFDTable returns an empty fd table.
func NewFDTable() *FDTable {
	return &FDTable{next: 3, open: make(map[int]*os.File)}
}

// Open resolves guestPath under fs, opens it with the given flags/mode, and
// returns a new guest-local fd.
func (t *FDTable) Open(fs *FS, guestPath string, flags int, mode os.FileMode) (int, error) {
	host, err := fs.Resolve(guestPath)
	if err != nil {
		return 0, err
	}
	f, oerr := os.OpenFile(host, flags, mode)
	if oerr != nil {
		return 0, mapOSErr(oerr)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	fd := t.next
	t.next++
	t.open[fd] = f
	return fd, nil
}

// Read reads up to len(buf) bytes at the fd's current offset.
func (t *FDTable) Read(fd int, buf []byte) (int, error) {
	f, err := t.lookup(fd)
	if err != nil {
		return 0, err
	}
	n, rerr := f.Read(buf)
	if rerr != nil && rerr.Error() != "EOF" {
		return n, mapOSErr(rerr)
	}
	return n, nil
}

// Write writes buf at the fd's current offset.
func (t *FDTable) Write(fd int, buf []byte) (int, error) {
	f, err := t.lookup(fd)
	if err != nil {
		return 0, err
	}
	n, werr := f.Write(buf)
	if werr != nil {
		return n, mapOSErr(werr)
	}
	return n, nil
}

// Close releases fd. Closing an unknown fd is PermissionDenied: guest code
// must only ever close fds it was handed.
func (t *FDTable) Close(fd int) error {
	t.mu.Lock()
	f, ok := t.open[fd]
	if ok {
		delete(t.open, fd)
	}
	t.mu.Unlock()
	if !ok {
		return errx.With(domain.ErrPermissionDenied, ": unknown fd")
	}
	return f.Close()
}

func (t *FDTable) lookup(fd int) (*os.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.open[fd]
	if !ok {
		return nil, errx.With(domain.ErrPermissionDenied, ": unknown fd")
	}
	return f, nil
}

// CloseAll closes every fd still open in the table. Called by execctx
// cleanup on every exit path, including timeout, error, and panic.
func (t *FDTable) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for fd, f := range t.open {
		f.Close()
		delete(t.open, fd)
	}
}
