package gojaupb

import (
	"errors"

	"github.com/joeycumines/goja-upb/arena"
	"github.com/joeycumines/goja-upb/def"
	"github.com/joeycumines/goja-upb/wire"
	"github.com/joeycumines/logiface"
)

// moduleOptions holds configuration for a [Module] instance.
type moduleOptions struct {
	pool       *def.Pool
	logger     *logiface.Logger[logiface.Event]
	allocator  arena.Allocator
	decodeOpts []wire.DecodeOption
	encodeOpts []wire.EncodeOption
}

// Option configures a [Module] instance. Options are applied during
// module construction.
type Option interface {
	applyOption(*moduleOptions) error
}

// optionFunc implements [Option] via a closure.
type optionFunc struct {
	fn func(*moduleOptions) error
}

func (o *optionFunc) applyOption(opts *moduleOptions) error {
	return o.fn(opts)
}

// WithPool configures the descriptor pool that message types are resolved
// from. The pool may be shared between modules. If not set, each module
// gets a new pool.
func WithPool(pool *def.Pool) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		if pool == nil {
			return errors.New("pool must not be nil")
		}
		opts.pool = pool
		return nil
	}}
}

// WithLogger configures structured logging. A nil logger disables it.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithAllocator configures the block allocator backing the arena of every
// message the module creates. If not set, the Go heap is used.
func WithAllocator(a arena.Allocator) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		opts.allocator = a
		return nil
	}}
}

// WithDecodeOptions configures default options for decode. Options given
// from JavaScript are applied after these.
func WithDecodeOptions(o ...wire.DecodeOption) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		opts.decodeOpts = append(opts.decodeOpts, o...)
		return nil
	}}
}

// WithEncodeOptions configures default options for encode. Options given
// from JavaScript are applied after these.
func WithEncodeOptions(o ...wire.EncodeOption) Option {
	return &optionFunc{fn: func(opts *moduleOptions) error {
		opts.encodeOpts = append(opts.encodeOpts, o...)
		return nil
	}}
}

// resolveOptions applies the given options to a default [moduleOptions].
func resolveOptions(opts []Option) (*moduleOptions, error) {
	cfg := &moduleOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
