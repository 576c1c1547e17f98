package gojaupb

import (
	"runtime"
	"sync"
	"unsafe"
	"weak"

	"github.com/dop251/goja"
	"github.com/joeycumines/goja-upb/message"
)

// objectCache maps core messages, and the repeated and map fields of
// core messages, to the JS objects that wrap them, so repeated reads of one
// value return one object. Entries are weak, and are pruned once their
// object is collected.
type objectCache struct {
	mu   sync.Mutex
	objs map[cacheKey]weak.Pointer[goja.Object]
}

// cacheKey identifies a message, or one of its container fields when field
// is non-zero.
type cacheKey struct {
	msg   uintptr
	field uint32
}

func newObjectCache() *objectCache {
	return &objectCache{objs: make(map[cacheKey]weak.Pointer[goja.Object])}
}

func keyOf(msg *message.Message, field uint32) cacheKey {
	return cacheKey{msg: uintptr(unsafe.Pointer(msg)), field: field}
}

// get returns the live object for key, or nil.
func (c *objectCache) get(key cacheKey) *goja.Object {
	c.mu.Lock()
	defer c.mu.Unlock()
	if wp, ok := c.objs[key]; ok {
		return wp.Value()
	}
	return nil
}

func (c *objectCache) put(key cacheKey, obj *goja.Object) {
	c.mu.Lock()
	c.objs[key] = weak.Make(obj)
	c.mu.Unlock()
	runtime.AddCleanup(obj, c.prune, key)
}

// prune drops key if its object is gone. A newer object may have replaced
// it in the meantime.
func (c *objectCache) prune(key cacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if wp, ok := c.objs[key]; ok && wp.Value() == nil {
		delete(c.objs, key)
	}
}

func (c *objectCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.objs)
}
