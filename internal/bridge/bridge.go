// Package bridge exposes the fixed, audited set of host functions a guest
// context may call (§4.2). Every sub-surface is a flat set of Go functions
// installed onto the runtime's global object under an underscore-prefixed
// name (_fs_readFileSync, _crypto_createHash, ...); the bootstrap script
// (internal/bootstrap) composes them into the usual module shapes behind
// require(). No dynamic reflection and no host object is ever reachable
// from guest code except through these references.
package bridge

import (
	"time"

	"github.com/dop251/goja"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/guest"
	"github.com/emberrun/sandbox/internal/policy"
	"github.com/emberrun/sandbox/internal/vfs"
)

// KV is the project-scoped key/value collaborator (§6.5).
type KV interface {
	Get(project, key string) ([]byte, bool, error)
	Set(project, key string, value []byte, ttl time.Duration) error
	Delete(project, key string) error
	Has(project, key string) (bool, error)
	Keys(project string) ([]string, error)
}

// Bridge holds everything one invocation's host functions need: the
// confined filesystem, per-context handle tables, the console log buffer,
// the network policy decision for this project, and the KV collaborator.
// A Bridge is created fresh per invocation and discarded at cleanup.
type Bridge struct {
	FS      *vfs.FS
	FDs     *vfs.FDTable
	Hashes    *handleTable
	Ciphers   *handleTable
	Signs     *handleTable
	Sockets   *handleTable
	Streams   *handleTable
	Resolvers *handleTable
	URLSP     *handleTable

	Console  []domain.LogEntry
	Request  *goja.Object
	Response *responseState

	Policy    *policy.Decider
	ProjectID string
	KV        KV

	ctx *guest.Context
}

// New returns a Bridge ready to Install onto a fresh guest context.
func New(fs *vfs.FS, gctx *guest.Context, decider *policy.Decider, projectID string, kv KV) *Bridge {
	return &Bridge{
		FS:        fs,
		FDs:       vfs.NewFDTable(),
		Hashes:    newHandleTable(),
		Ciphers:   newHandleTable(),
		Signs:     newHandleTable(),
		Sockets:   newHandleTable(),
		Streams:   newHandleTable(),
		Resolvers: newHandleTable(),
		URLSP:     newHandleTable(),
		Policy:    decider,
		ProjectID: projectID,
		KV:        kv,
		ctx:       gctx,
	}
}

// Install registers every sub-surface's host functions onto vm's globals.
func (b *Bridge) Install(vm *goja.Runtime) error {
	installers := []func(*goja.Runtime) error{
		b.installFS,
		b.installPath,
		b.installHash,
		b.installCipher,
		b.installSign,
		b.installSigning,
		b.installRandom,
		b.installCompress,
		b.installURL,
		b.installDNS,
		b.installNet,
		b.installTLS,
		b.installConsole,
		b.installReqRes,
		b.installTimers,
		b.installKV,
	}
	for _, install := range installers {
		if err := install(vm); err != nil {
			return err
		}
	}
	return nil
}

// Cleanup releases every handle and fd still open. Must run on every exit
// path (§4.4).
func (b *Bridge) Cleanup() {
	b.FDs.CloseAll()
	b.Hashes.CloseAll()
	b.Ciphers.CloseAll()
	b.Signs.CloseAll()
	b.Sockets.CloseAll()
	b.Streams.CloseAll()
	b.Resolvers.CloseAll()
	b.URLSP.CloseAll()
}

// set is a small helper wrapping vm.Set and returning its error unchanged;
// kept as a function so every installer reads the same way.
func set(vm *goja.Runtime, name string, fn any) error {
	return vm.Set(name, fn)
}
