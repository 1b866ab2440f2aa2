package wire

import (
	"container/list"
	"sync"

	"github.com/wayneeseguin/convergent/pkg/hash"
	"github.com/wayneeseguin/convergent/pkg/tree"
)

// EncodeCacheCapacity bounds the shared wire-encode cache, matching the
// original's 50-entry repoze.lru.LRUCache keyed by the object being
// encoded.
const EncodeCacheCapacity = 50

type encodeCacheEntry struct {
	key   hash.Sum
	bytes []byte
}

// encodeCache is a small hand-rolled LRU: a doubly-linked list for
// recency order plus a map for O(1) lookup, evicting the least-recently
// touched entry once capacity is exceeded.
type encodeCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[hash.Sum]*list.Element
}

func newEncodeCache(capacity int) *encodeCache {
	if capacity <= 0 {
		capacity = EncodeCacheCapacity
	}
	return &encodeCache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[hash.Sum]*list.Element),
	}
}

func (c *encodeCache) get(key hash.Sum) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*encodeCacheEntry).bytes, true
}

func (c *encodeCache) put(key hash.Sum, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*encodeCacheEntry).bytes = data
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&encodeCacheEntry{key: key, bytes: data})
	c.items[key] = el

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*encodeCacheEntry).key)
	}
}

func (c *encodeCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// sharedEncodeCache is process-wide, the same way the original's
// _wire_encode_cache is a single module-level LRUCache(50) shared by
// every connection's network sends and the log action recording the same
// payload (LOG_SEND_CLUSTER_STATE et al.), rather than one cache per
// connection.
var sharedEncodeCache = newEncodeCache(EncodeCacheCapacity)

// CachedEncodeTyped returns v's typed wire encoding, reusing the bytes
// from a prior call keyed by h when present. h is normally a value's
// content hash the caller already computed for other reasons (the
// generation tracker's latest hash, for instance), so this never pays
// for hashing just to populate the cache key.
//
// Its caller, pkg/control's UPDATE_FULL builder, uses it so that the same
// snapshot sent to several agents is encoded once; no log action reads
// from this cache.
func CachedEncodeTyped(h hash.Sum, v tree.Value) ([]byte, error) {
	if data, ok := sharedEncodeCache.get(h); ok {
		return data, nil
	}
	data, err := EncodeTyped(v)
	if err != nil {
		return nil, err
	}
	sharedEncodeCache.put(h, data)
	return data, nil
}
