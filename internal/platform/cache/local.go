package cache

import (
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// localBackend is the in-process store used when no Redis address is configured.
// The version is part of every key, so a bump only has to drop the old entries.
type localBackend struct {
	version atomic.Int64
	items   *gocache.Cache
}

func newLocalBackend(ttl time.Duration) *localBackend {
	b := &localBackend{items: gocache.New(ttl, 2*ttl)}
	b.version.Store(1)
	return b
}

func (b *localBackend) currentVersion() int64 {
	return b.version.Load()
}

func (b *localBackend) get(key string) ([]byte, bool) {
	v, ok := b.items.Get(key)
	if !ok {
		return nil, false
	}
	payload, ok := v.([]byte)
	return payload, ok
}

func (b *localBackend) set(key string, payload []byte, ttl time.Duration) {
	b.items.Set(key, payload, ttl)
}

func (b *localBackend) bump() int64 {
	ver := b.version.Add(1)
	b.items.Flush()
	return ver
}
