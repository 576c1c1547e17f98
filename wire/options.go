package wire

import (
	"github.com/joeycumines/goja-upb/minitable"
)

// DefaultMaxNesting is the default limit on sub-message depth, for both
// encoding and decoding.
const DefaultMaxNesting = 100

type decodeOptions struct {
	extensions     *minitable.ExtensionRegistry
	maxNesting     int
	aliasString    bool
	checkRequired  bool
	discardUnknown bool
}

type encodeOptions struct {
	maxNesting    int
	deterministic bool
	skipUnknown   bool
	checkRequired bool
}

// DecodeOption configures [Decode].
type DecodeOption interface {
	applyDecode(*decodeOptions)
}

// EncodeOption configures [Encode], [Append] and [Size].
type EncodeOption interface {
	applyEncode(*encodeOptions)
}

// Option configures both directions.
type Option interface {
	DecodeOption
	EncodeOption
}

type decodeOptionFunc struct {
	fn func(*decodeOptions)
}

func (o *decodeOptionFunc) applyDecode(opts *decodeOptions) { o.fn(opts) }

type encodeOptionFunc struct {
	fn func(*encodeOptions)
}

func (o *encodeOptionFunc) applyEncode(opts *encodeOptions) { o.fn(opts) }

type checkRequiredOption struct{}

func (checkRequiredOption) applyDecode(opts *decodeOptions) { opts.checkRequired = true }

func (checkRequiredOption) applyEncode(opts *encodeOptions) { opts.checkRequired = true }

// CheckRequired fails with [status.MissingRequired] when a required field
// of any message is unset. Without it, required fields are advisory.
func CheckRequired() Option { return checkRequiredOption{} }

// AliasString makes decoded string and bytes fields reference the input
// buffer rather than copies on the arena. The caller must keep the input
// alive, and unmodified, for as long as the message.
func AliasString() DecodeOption {
	return &decodeOptionFunc{fn: func(opts *decodeOptions) {
		opts.aliasString = true
	}}
}

// MaxNesting overrides [DefaultMaxNesting] for decoding.
func MaxNesting(n int) DecodeOption {
	return &decodeOptionFunc{fn: func(opts *decodeOptions) {
		opts.maxNesting = n
	}}
}

// WithExtensionRegistry resolves extension fields on decode. Without one,
// extensions are kept as unknown fields.
func WithExtensionRegistry(r *minitable.ExtensionRegistry) DecodeOption {
	return &decodeOptionFunc{fn: func(opts *decodeOptions) {
		opts.extensions = r
	}}
}

// DiscardUnknown drops unknown fields instead of preserving them.
func DiscardUnknown() DecodeOption {
	return &decodeOptionFunc{fn: func(opts *decodeOptions) {
		opts.discardUnknown = true
	}}
}

// Deterministic sorts map entries by key.
func Deterministic() EncodeOption {
	return &encodeOptionFunc{fn: func(opts *encodeOptions) {
		opts.deterministic = true
	}}
}

// SkipUnknown omits preserved unknown fields from the output.
func SkipUnknown() EncodeOption {
	return &encodeOptionFunc{fn: func(opts *encodeOptions) {
		opts.skipUnknown = true
	}}
}

// EncodeMaxNesting overrides [DefaultMaxNesting] for encoding.
func EncodeMaxNesting(n int) EncodeOption {
	return &encodeOptionFunc{fn: func(opts *encodeOptions) {
		opts.maxNesting = n
	}}
}

func resolveDecodeOptions(opts []DecodeOption) decodeOptions {
	cfg := decodeOptions{maxNesting: DefaultMaxNesting}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyDecode(&cfg)
	}
	return cfg
}

func resolveEncodeOptions(opts []EncodeOption) encodeOptions {
	cfg := encodeOptions{maxNesting: DefaultMaxNesting}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyEncode(&cfg)
	}
	return cfg
}
