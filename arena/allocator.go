package arena

import (
	"sync/atomic"
)

// Allocator is the backing memory source of an [Arena]. A nil result from
// Malloc or Realloc means the request was refused.
type Allocator interface {
	Malloc(size int) []byte
	Realloc(buf []byte, size int) []byte
	Free(buf []byte)
}

// GoAllocator allocates from the Go heap. Free is a no-op.
type GoAllocator struct{}

var _ Allocator = GoAllocator{}

func (GoAllocator) Malloc(size int) []byte { return make([]byte, size) }

func (GoAllocator) Realloc(buf []byte, size int) []byte {
	if size <= cap(buf) {
		return buf[:size]
	}
	b := make([]byte, size)
	copy(b, buf)
	return b
}

func (GoAllocator) Free([]byte) {}

// LimitedAllocator wraps another allocator, refusing any request that would
// take the outstanding total past Limit bytes.
type LimitedAllocator struct {
	// Allocator is the underlying allocator, defaulting to [GoAllocator].
	Allocator Allocator
	Limit     int64
	used      atomic.Int64
}

var _ Allocator = (*LimitedAllocator)(nil)

func (x *LimitedAllocator) base() Allocator {
	if x.Allocator == nil {
		return GoAllocator{}
	}
	return x.Allocator
}

// Used returns the number of bytes currently outstanding.
func (x *LimitedAllocator) Used() int64 { return x.used.Load() }

func (x *LimitedAllocator) Malloc(size int) []byte {
	if x.used.Add(int64(size)) > x.Limit {
		x.used.Add(-int64(size))
		return nil
	}
	b := x.base().Malloc(size)
	if b == nil {
		x.used.Add(-int64(size))
	}
	return b
}

func (x *LimitedAllocator) Realloc(buf []byte, size int) []byte {
	delta := int64(size - len(buf))
	if x.used.Add(delta) > x.Limit {
		x.used.Add(-delta)
		return nil
	}
	b := x.base().Realloc(buf, size)
	if b == nil {
		x.used.Add(-delta)
	}
	return b
}

func (x *LimitedAllocator) Free(buf []byte) {
	x.used.Add(-int64(len(buf)))
	x.base().Free(buf)
}
