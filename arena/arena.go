// Package arena implements a bump allocator whose allocations are released
// collectively.
//
// Arenas may be fused, joining their lifetimes into one equivalence class.
// Fusion is transitive and monotonic. Each arena holds one reference to its
// class, and the class's memory is returned to the backing allocators when
// the last member is freed.
//
// An Arena is not safe for concurrent allocation. Fuse and Free may be
// called from different goroutines on arenas owned by different actors.
package arena

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/joeycumines/goja-upb/status"
)

const (
	// Align is the alignment of every allocation, relative to its block.
	Align = 16

	defaultMaxBlockSize = 1 << 20
	minBlockSize        = 256
)

// ErrFreed is the cause reported when an arena is used after [Arena.Free].
var ErrFreed = errors.New("arena: use after free")

// fuseMu guards the union-find fields of every arena.
var fuseMu sync.Mutex

// Arena is a monotonically growing allocator.
type Arena struct {
	alloc Allocator

	// blocks obtained from alloc, excluding any seed block
	blocks [][]byte
	cur    []byte

	// parent, refCount and members are guarded by fuseMu; refCount and
	// members are only meaningful on a class root
	parent  *Arena
	members []*Arena

	used          int
	lastOff       int
	lastBlockSize int
	maxBlockSize  int
	refCount      int
	space         int64

	released bool
}

// New returns an arena holding one reference to a new class.
func New(opts ...Option) *Arena {
	cfg := resolveOptions(opts)
	a := &Arena{
		alloc:         cfg.allocator,
		cur:           cfg.initial,
		lastOff:       -1,
		lastBlockSize: len(cfg.initial),
		maxBlockSize:  cfg.maxBlockSize,
		refCount:      1,
	}
	a.members = []*Arena{a}
	return a
}

// IsFixed reports whether a has no backing allocator.
func (a *Arena) IsFixed() bool { return a.alloc == nil }

func alignUp(n int) int {
	return (n + Align - 1) &^ (Align - 1)
}

// Malloc returns size zeroed bytes, at an offset aligned to [Align]. The
// result has len and cap equal to size.
func (a *Arena) Malloc(size int) ([]byte, error) {
	if size < 0 {
		panic("arena: negative size")
	}
	if a.released {
		return nil, status.Wrap(status.OutOfMemory, ErrFreed, "malloc")
	}
	off := alignUp(a.used)
	if off+size > len(a.cur) {
		if err := a.grow(size); err != nil {
			return nil, err
		}
		off = 0
	}
	buf := a.cur[off : off+size : off+size]
	clear(buf)
	a.used = off + size
	a.lastOff = off
	return buf, nil
}

func (a *Arena) grow(size int) error {
	if a.alloc == nil {
		return status.Errorf(status.OutOfMemory, "fixed arena exhausted, requested %d bytes", size)
	}
	n := min(max(a.lastBlockSize*2, minBlockSize), a.maxBlockSize)
	n = max(n, alignUp(size))
	buf := a.alloc.Malloc(n)
	if buf == nil {
		return status.Errorf(status.OutOfMemory, "allocator refused %d bytes", n)
	}
	a.blocks = append(a.blocks, buf)
	a.cur = buf
	a.used = 0
	a.lastOff = -1
	a.lastBlockSize = n
	a.space += int64(n)
	return nil
}

// isLast reports whether buf is exactly the most recent allocation.
func (a *Arena) isLast(buf []byte) bool {
	return a.lastOff >= 0 &&
		len(buf) > 0 &&
		a.lastOff+len(buf) == a.used &&
		unsafe.SliceData(buf) == &a.cur[a.lastOff]
}

// Realloc resizes buf, which must have been returned by a previous call to
// Malloc or Realloc on a. The most recent allocation is resized in place
// when it fits, and a shrink of it returns the tail to the block. Shrinking
// any other allocation is a no-op. Otherwise the content is copied to a new
// allocation. Bytes past the old length are zeroed.
func (a *Arena) Realloc(buf []byte, size int) ([]byte, error) {
	if size < 0 {
		panic("arena: negative size")
	}
	if a.released {
		return nil, status.Wrap(status.OutOfMemory, ErrFreed, "realloc")
	}
	if a.isLast(buf) {
		if off := a.lastOff; off+size <= len(a.cur) {
			out := a.cur[off : off+size : off+size]
			if size > len(buf) {
				clear(out[len(buf):])
			}
			a.used = off + size
			return out, nil
		}
	} else if size <= len(buf) {
		return buf[:size:size], nil
	}
	out, err := a.Malloc(size)
	if err != nil {
		return nil, err
	}
	copy(out, buf)
	return out, nil
}

// root finds the class root, splitting the path as it goes. Callers must
// hold fuseMu.
func (a *Arena) root() *Arena {
	for a.parent != nil {
		next := a.parent
		if next.parent != nil {
			a.parent = next.parent
		}
		a = next
	}
	return a
}

// Fuse joins the classes of a and b. It fails if either arena is fixed
// size or already freed. Fusing arenas already in the same class succeeds.
func (a *Arena) Fuse(b *Arena) bool {
	if a == b {
		return true
	}
	if a.alloc == nil || b.alloc == nil {
		return false
	}

	fuseMu.Lock()
	defer fuseMu.Unlock()

	if a.released || b.released {
		return false
	}

	ra, rb := a.root(), b.root()
	if ra == rb {
		return true
	}
	if ra.refCount < rb.refCount {
		ra, rb = rb, ra
	}
	rb.parent = ra
	ra.refCount += rb.refCount
	ra.members = append(ra.members, rb.members...)
	rb.members = nil
	return true
}

// IsFused reports whether a and b share a class.
func (a *Arena) IsFused(b *Arena) bool {
	if a == b {
		return true
	}
	fuseMu.Lock()
	defer fuseMu.Unlock()
	return a.root() == b.root()
}

// RefCount returns the number of live references to a's class.
func (a *Arena) RefCount() int {
	fuseMu.Lock()
	defer fuseMu.Unlock()
	return a.root().refCount
}

// SpaceAllocated returns the bytes obtained from allocators by every member
// of a's class.
func (a *Arena) SpaceAllocated() int64 {
	fuseMu.Lock()
	defer fuseMu.Unlock()
	var n int64
	for _, m := range a.root().members {
		n += m.space
	}
	return n
}

// Free drops a's reference to its class. When the last reference goes, the
// blocks of every member are returned to their allocators. Calling Free more
// than once on the same arena is a no-op.
func (a *Arena) Free() {
	fuseMu.Lock()
	defer fuseMu.Unlock()

	if a.released {
		return
	}
	a.released = true

	r := a.root()
	r.refCount--
	if r.refCount > 0 {
		return
	}
	for _, m := range r.members {
		for _, b := range m.blocks {
			m.alloc.Free(b)
		}
		m.blocks = nil
		m.cur = nil
		m.used = 0
		m.lastOff = -1
		m.released = true
	}
}
