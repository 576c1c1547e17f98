package arena

// arenaOptions holds configuration for an [Arena].
type arenaOptions struct {
	allocator    Allocator
	initial      []byte
	maxBlockSize int
}

// Option configures an [Arena].
type Option interface {
	applyOption(*arenaOptions)
}

// optionFunc implements [Option] via a closure.
type optionFunc struct {
	fn func(*arenaOptions)
}

func (o *optionFunc) applyOption(opts *arenaOptions) {
	o.fn(opts)
}

// WithAllocator sets the backing allocator. Passing nil together with
// [WithInitialBlock] makes a fixed-size arena, which cannot grow or fuse.
func WithAllocator(a Allocator) Option {
	return &optionFunc{fn: func(opts *arenaOptions) {
		opts.allocator = a
	}}
}

// WithInitialBlock seeds the arena with caller-owned memory, which is used
// before any request reaches the allocator, and is never passed to it.
func WithInitialBlock(buf []byte) Option {
	return &optionFunc{fn: func(opts *arenaOptions) {
		opts.initial = buf
	}}
}

// WithMaxBlockSize caps the doubling growth of blocks. Requests larger than
// the cap still receive a dedicated block.
func WithMaxBlockSize(n int) Option {
	return &optionFunc{fn: func(opts *arenaOptions) {
		if n > 0 {
			opts.maxBlockSize = n
		}
	}}
}

func resolveOptions(opts []Option) *arenaOptions {
	cfg := &arenaOptions{
		allocator:    GoAllocator{},
		maxBlockSize: defaultMaxBlockSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyOption(cfg)
	}
	if cfg.allocator == nil && len(cfg.initial) == 0 {
		// nothing to allocate from
		cfg.allocator = GoAllocator{}
	}
	return cfg
}
