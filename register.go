package gojaupb

import (
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// Require returns a [require.ModuleLoader] for the protobuf module, to be
// registered under a name of the caller's choosing:
//
//	registry := require.NewRegistry()
//	registry.RegisterNativeModule("protobuf", gojaupb.Require(gojaupb.WithPool(pool)))
//	registry.Enable(runtime)
//
// Each runtime that loads the module gets its own [Module], built from
// opts. Invalid options surface as a thrown GoError from require().
func Require(opts ...Option) require.ModuleLoader {
	return func(rt *goja.Runtime, module *goja.Object) {
		m, err := New(rt, opts...)
		if err != nil {
			panic(rt.NewGoError(err))
		}
		m.setupExports(module.Get("exports").ToObject(rt))
		m.logger.Debug().
			Int("files", len(m.pool.Files())).
			Log("protobuf module required")
	}
}
