package def

import (
	"github.com/joeycumines/logiface"
)

// poolOptions holds configuration for a [Pool].
type poolOptions struct {
	logger             *logiface.Logger[logiface.Event]
	strictEnumDefaults bool
}

// PoolOption configures a [Pool].
type PoolOption interface {
	applyOption(*poolOptions)
}

// optionFunc implements [PoolOption] via a closure.
type optionFunc struct {
	fn func(*poolOptions)
}

func (o *optionFunc) applyOption(opts *poolOptions) {
	o.fn(opts)
}

// WithLogger configures structured logging of file installation. A nil
// logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) PoolOption {
	return &optionFunc{fn: func(opts *poolOptions) {
		opts.logger = logger
	}}
}

// WithStrictEnumDefaults rejects enum fields whose default is given as a
// number, rather than rewriting the default to the matching value name.
func WithStrictEnumDefaults() PoolOption {
	return &optionFunc{fn: func(opts *poolOptions) {
		opts.strictEnumDefaults = true
	}}
}

func resolveOptions(opts []PoolOption) *poolOptions {
	cfg := &poolOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyOption(cfg)
	}
	return cfg
}
