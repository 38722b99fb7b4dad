package cache

import (
	"container/list"
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/l0p7/catalogcache/internal/catalog/clock"
)

// Entry is one Tier-1 record. Value is opaque to LocalCache: it is stored and
// returned by identity, never encoded.
type Entry struct {
	Value        any
	ExpiresAt    time.Time
	InsertedAt   time.Time
	LastAccessAt time.Time
	SizeHint     int
}

// Stats is the point-in-time snapshot LocalCache.Stats returns.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// LocalOptions configures a LocalCache instance.
type LocalOptions struct {
	// MaxSize bounds the total number of entries across all shards; must be >= 1.
	MaxSize int
	// TTLWrite is the absolute entry lifetime from the last write.
	TTLWrite time.Duration
	// TTLAccess is the idle lifetime since the last read; zero disables it.
	TTLAccess time.Duration
	// SweepInterval controls how often the background reaper walks each
	// shard looking for entries that expired without being touched again.
	// Zero disables the periodic sweep (lazy eviction on Get still applies).
	SweepInterval time.Duration
	Clock         clock.Clock
	// Metrics receives ObserveCacheEviction("l1") for every entry removed by
	// capacity pressure, lazy TTL expiry on Get, or the background sweep.
	// Defaults to NoopMetrics.
	Metrics MetricsSink
}

const defaultShardCount = 16

// element is what each shard's LRU list stores.
type element struct {
	key   Key
	entry Entry
}

// shard is one independently-locked slice of the keyspace. Splitting the
// cache into shards means Get/Put on distinct keys only contend when they
// happen to hash into the same shard, instead of serializing on one global
// lock the way a naive map+mutex cache would.
type shard struct {
	mu    sync.Mutex
	index map[Key]*list.Element
	order *list.List

	hits, misses, evictions atomic.Int64
}

// LocalCache is the bounded, concurrent, in-process (Tier-1) cache.
type LocalCache struct {
	opts    LocalOptions
	shards  []*shard
	perCap  int

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// NewLocal constructs a LocalCache. MaxSize/TTLWrite fall back to the
// defaults the catalog service applies (10_000 / 5m) when left unset.
func NewLocal(opts LocalOptions) *LocalCache {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 10_000
	}
	if opts.TTLWrite <= 0 {
		opts.TTLWrite = 5 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = clock.System
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetrics
	}

	shardCount := defaultShardCount
	if opts.MaxSize < shardCount {
		shardCount = opts.MaxSize
	}
	if shardCount < 1 {
		shardCount = 1
	}
	perCap := opts.MaxSize / shardCount
	if perCap < 1 {
		perCap = 1
	}

	c := &LocalCache{opts: opts, perCap: perCap}
	c.shards = make([]*shard, shardCount)
	for i := range c.shards {
		c.shards[i] = &shard{index: make(map[Key]*list.Element), order: list.New()}
	}
	if opts.SweepInterval > 0 {
		c.stopSweep = make(chan struct{})
		c.sweepDone = make(chan struct{})
		go c.sweepLoop()
	}
	return c
}

func (c *LocalCache) shardFor(key Key) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.Wire()))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Get returns the cached value for key if present and not expired. A hit
// refreshes LastAccessAt and moves the entry to the front of its shard's LRU
// list.
func (c *LocalCache) Get(_ context.Context, key Key) (any, bool) {
	now := c.opts.Clock.Now()
	s := c.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.index[key]
	if !ok {
		s.misses.Add(1)
		return nil, false
	}
	e := el.Value.(*element)
	if c.expired(e.entry, now) {
		s.remove(el)
		s.misses.Add(1)
		c.opts.Metrics.ObserveCacheEviction("l1")
		return nil, false
	}
	e.entry.LastAccessAt = now
	s.order.MoveToFront(el)
	s.hits.Add(1)
	return e.entry.Value, true
}

// Put stores value under key, stamping ExpiresAt from TTLWrite and resetting
// LastAccessAt. If the owning shard is over its per-shard capacity
// afterward, the least-recently-used entry in that shard is evicted (ties
// broken by insertion order, which the list's back-to-front order already
// encodes).
func (c *LocalCache) Put(_ context.Context, key Key, value any, sizeHint int) {
	now := c.opts.Clock.Now()
	entry := Entry{
		Value:        value,
		InsertedAt:   now,
		LastAccessAt: now,
		ExpiresAt:    now.Add(c.opts.TTLWrite),
		SizeHint:     sizeHint,
	}

	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.index[key]; ok {
		el.Value.(*element).entry = entry
		s.order.MoveToFront(el)
	} else {
		el := s.order.PushFront(&element{key: key, entry: entry})
		s.index[key] = el
	}

	for s.order.Len() > c.perCap {
		back := s.order.Back()
		if back == nil {
			break
		}
		s.remove(back)
		s.evictions.Add(1)
		c.opts.Metrics.ObserveCacheEviction("l1")
	}
}

// Invalidate unconditionally removes key.
func (c *LocalCache) Invalidate(_ context.Context, key Key) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.index[key]; ok {
		s.remove(el)
	}
}

// InvalidateNamespace drops every key belonging to namespace, walking every
// shard.
func (c *LocalCache) InvalidateNamespace(_ context.Context, namespace string) {
	prefix := NamespacePrefix(namespace)
	for _, s := range c.shards {
		s.mu.Lock()
		for key, el := range s.index {
			if strings.HasPrefix(key.Wire(), prefix) {
				s.remove(el)
			}
		}
		s.mu.Unlock()
	}
}

// InvalidateAll drops every entry across every shard.
func (c *LocalCache) InvalidateAll(_ context.Context) {
	for _, s := range c.shards {
		s.mu.Lock()
		s.index = make(map[Key]*list.Element)
		s.order.Init()
		s.mu.Unlock()
	}
}

// Stats returns a snapshot of hit/miss/eviction counters and current size
// aggregated across all shards.
func (c *LocalCache) Stats() Stats {
	var st Stats
	for _, s := range c.shards {
		s.mu.Lock()
		st.Size += s.order.Len()
		s.mu.Unlock()
		st.Hits += s.hits.Load()
		st.Misses += s.misses.Load()
		st.Evictions += s.evictions.Load()
	}
	return st
}

// Close stops the background sweep goroutine, if one was started.
func (c *LocalCache) Close() {
	if c.stopSweep == nil {
		return
	}
	close(c.stopSweep)
	<-c.sweepDone
}

func (c *LocalCache) expired(e Entry, now time.Time) bool {
	if !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt) {
		return true
	}
	if c.opts.TTLAccess > 0 && now.Sub(e.LastAccessAt) > c.opts.TTLAccess {
		return true
	}
	return false
}

// remove deletes the list element and its index entry. Callers must hold
// s.mu.
func (s *shard) remove(el *list.Element) {
	e := el.Value.(*element)
	delete(s.index, e.key)
	s.order.Remove(el)
}

func (c *LocalCache) sweepLoop() {
	defer close(c.sweepDone)
	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			c.sweepExpired()
		}
	}
}

func (c *LocalCache) sweepExpired() {
	now := c.opts.Clock.Now()
	for _, s := range c.shards {
		s.mu.Lock()
		for el := s.order.Back(); el != nil; {
			prev := el.Prev()
			e := el.Value.(*element)
			if c.expired(e.entry, now) {
				s.remove(el)
				s.evictions.Add(1)
				c.opts.Metrics.ObserveCacheEviction("l1")
			}
			el = prev
		}
		s.mu.Unlock()
	}
}
