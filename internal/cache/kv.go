package cache

import (
	"context"
	"strings"
	"time"
)

// ProjectKV adapts a Cache into the bridge's project-scoped KV surface
// (§4.2 "KV store"), namespacing every key by project so tenants never see
// each other's entries in a shared backend.
type ProjectKV struct {
	cache Cache
}

// NewProjectKV wraps cache for per-project key/value access.
func NewProjectKV(cache Cache) *ProjectKV {
	return &ProjectKV{cache: cache}
}

func (k *ProjectKV) namespace(project string) string {
	return "kv:" + project + ":"
}

func (k *ProjectKV) Get(project, key string) ([]byte, bool, error) {
	val, err := k.cache.Get(context.Background(), k.namespace(project)+key)
	if err == ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (k *ProjectKV) Set(project, key string, value []byte, ttl time.Duration) error {
	return k.cache.Set(context.Background(), k.namespace(project)+key, value, ttl)
}

func (k *ProjectKV) Delete(project, key string) error {
	return k.cache.Delete(context.Background(), k.namespace(project)+key)
}

func (k *ProjectKV) Has(project, key string) (bool, error) {
	return k.cache.Exists(context.Background(), k.namespace(project)+key)
}

func (k *ProjectKV) Keys(project string) ([]string, error) {
	prefix := k.namespace(project)
	keys, err := k.cache.Keys(context.Background(), prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(keys))
	for i, key := range keys {
		out[i] = strings.TrimPrefix(key, prefix)
	}
	return out, nil
}
