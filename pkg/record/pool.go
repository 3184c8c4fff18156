package record

import (
	"sync"
	"sync/atomic"
	"time"
)

// Pool is a generic object pool with type safety. It wraps sync.Pool with
// statistics tracking and automatic reset. Safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	new   func() T
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
	}
}

// NewPool creates a typed pool with custom allocation and reset functions.
// The reset function, when non-nil, is called before an object returns to
// the pool.
func NewPool[T any](new func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{
		new:   new,
		reset: reset,
	}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return new()
	}
	return p
}

// Get retrieves an object from the pool, creating one when the pool is empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool for reuse, resetting it first when a
// reset function was provided.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns the total number of objects the pool has allocated and the
// number currently checked out.
func (p *Pool[T]) Stats() (allocated, inUse int64) {
	return atomic.LoadInt64(&p.stats.allocated),
		atomic.LoadInt64(&p.stats.inUse)
}

// Global pools shared by parsers and the pipeline.
var (
	// recordPool recycles Record objects. Records are pre-allocated with a
	// 16-capacity data map and fully cleared before reuse.
	recordPool = NewPool(
		func() *Record {
			return &Record{
				Data: make(map[string]interface{}, 16),
			}
		},
		func(r *Record) {
			r.ID = ""
			r.RawData = nil
			for k := range r.Data {
				delete(r.Data, k)
			}
			if r.Metadata.Custom != nil {
				for k := range r.Metadata.Custom {
					delete(r.Metadata.Custom, k)
				}
			}
			r.Metadata = Metadata{}
		},
	)

	// mapPool recycles map[string]interface{} payloads.
	mapPool = NewPool(
		func() map[string]interface{} {
			return make(map[string]interface{}, 16)
		},
		func(m map[string]interface{}) {
			for k := range m {
				delete(m, k)
			}
		},
	)
)

// idCounter provides atomic unique ID generation
var idCounter uint64

// Get retrieves a Record from the global pool with a fresh timestamp.
// Return it with Put or record.Release when done.
func Get() *Record {
	r := recordPool.Get()
	r.Metadata.Timestamp = time.Now()
	return r
}

// Put returns a Record to the global pool, recycling its pooled maps.
// Safe to call with nil.
func Put(r *Record) {
	if r == nil {
		return
	}
	if r.Metadata.Custom != nil {
		PutMap(r.Metadata.Custom)
		r.Metadata.Custom = nil
	}
	recordPool.Put(r)
}

// GetMap retrieves an empty map[string]interface{} from the global pool.
func GetMap() map[string]interface{} {
	return mapPool.Get()
}

// PutMap returns a map to the global pool. Safe to call with nil.
func PutMap(m map[string]interface{}) {
	if m != nil {
		mapPool.Put(m)
	}
}

// GenerateID generates a unique "prefix-N" ID from an atomic counter.
// Safe for concurrent use.
func GenerateID(prefix string) string {
	id := atomic.AddUint64(&idCounter, 1)

	buf := make([]byte, 0, len(prefix)+21)
	buf = append(buf, prefix...)
	buf = append(buf, '-')
	buf = appendUint64(buf, id)
	return string(buf)
}

// appendUint64 efficiently appends uint64 to byte slice
func appendUint64(buf []byte, n uint64) []byte {
	if n == 0 {
		return append(buf, '0')
	}

	temp := n
	digits := 0
	for temp > 0 {
		temp /= 10
		digits++
	}

	start := len(buf)
	buf = buf[:start+digits]

	for i := digits - 1; i >= 0; i-- {
		buf[start+i] = byte('0' + n%10)
		n /= 10
	}

	return buf
}

// PoolStats reports allocation counts for the global pools, keyed by pool
// name. Useful for leak detection in long-running agents.
type PoolStats struct {
	Allocated int64
	InUse     int64
}

// GlobalPoolStats returns statistics for the global record and map pools.
func GlobalPoolStats() map[string]PoolStats {
	recAlloc, recInUse := recordPool.Stats()
	mapAlloc, mapInUse := mapPool.Stats()
	return map[string]PoolStats{
		"record": {Allocated: recAlloc, InUse: recInUse},
		"map":    {Allocated: mapAlloc, InUse: mapInUse},
	}
}
