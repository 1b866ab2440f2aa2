// Package generation implements the bounded snapshot history the
// controller consults to turn "the agent last acknowledged hash H" into
// "here is the patch from H to the current latest value", without
// recomputing a diff against full history on every broadcast.
package generation

import (
	"github.com/wayneeseguin/convergent/pkg/diff"
	"github.com/wayneeseguin/convergent/pkg/hash"
	"github.com/wayneeseguin/convergent/pkg/tree"
	"github.com/wayneeseguin/convergent/pkg/wire"
)

// DefaultCapacity is the tracker size used by the controller's
// configuration and state trackers unless overridden by configuration.
const DefaultCapacity = 100

type entry struct {
	value        tree.Value
	patchToLatest diff.Patch
}

// Tracker remembers the most recent snapshots of a single tree value
// stream (either configuration or aggregate state), keyed by content
// hash, each with a precomputed patch to the current latest value.
type Tracker struct {
	capacity int

	order []hash.Sum // insertion order, oldest first, for FIFO eviction
	byHash map[hash.Sum]entry

	latest     tree.Value
	latestHash hash.Sum
	hasLatest  bool
}

// New returns an empty Tracker bounded to capacity entries.
func New(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{
		capacity: capacity,
		byHash:   make(map[hash.Sum]entry, capacity),
	}
}

// InsertLatest records value as the new latest snapshot. If value hashes
// equal to the current latest, this is a no-op. Otherwise the old latest
// is kept in history (keyed by its own hash) with a patch forward to the
// new value, and the oldest entry is evicted if capacity is now exceeded.
func (t *Tracker) InsertLatest(value tree.Value) error {
	newHash, err := sumOf(value)
	if err != nil {
		return err
	}

	if t.hasLatest && newHash == t.latestHash {
		return nil
	}

	if t.hasLatest {
		forward := diff.Compute(t.latest, value)

		// Every existing entry's patch currently lands on the old
		// latest; extend it with the new forward delta so it lands on
		// the new one instead.
		for h, e := range t.byHash {
			t.byHash[h] = entry{value: e.value, patchToLatest: diff.Compose(e.patchToLatest, forward)}
		}

		t.remember(t.latestHash, t.latest, forward)
	}

	t.latest = value
	t.latestHash = newHash
	t.hasLatest = true

	t.evictIfNeeded()
	return nil
}

func (t *Tracker) remember(h hash.Sum, v tree.Value, patchToLatest diff.Patch) {
	if _, exists := t.byHash[h]; !exists {
		t.order = append(t.order, h)
	}
	t.byHash[h] = entry{value: v, patchToLatest: patchToLatest}
}

func (t *Tracker) evictIfNeeded() {
	for len(t.order) > t.capacity {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.byHash, oldest)
	}
}

// GetLatest returns the current latest value.
func (t *Tracker) GetLatest() (tree.Value, bool) {
	return t.latest, t.hasLatest
}

// GetLatestHash returns the content hash of the current latest value.
func (t *Tracker) GetLatestHash() (hash.Sum, bool) {
	return t.latestHash, t.hasLatest
}

// GetDiffFromHashToLatest returns the patch that turns the value
// associated with h into the current latest, and true, or false if h is
// unknown (too old, or never seen). If h equals the latest hash, the
// empty patch is returned.
func (t *Tracker) GetDiffFromHashToLatest(h hash.Sum) (diff.Patch, bool) {
	if t.hasLatest && h == t.latestHash {
		return nil, true
	}
	e, ok := t.byHash[h]
	if !ok {
		return nil, false
	}
	return e.patchToLatest, true
}

// Len reports the number of historical (non-latest) entries currently
// retained.
func (t *Tracker) Len() int {
	return len(t.order)
}

func sumOf(v tree.Value) (hash.Sum, error) {
	data, err := wire.Encode(v)
	if err != nil {
		return hash.Sum{}, err
	}
	return hash.Sum128(data)
}
