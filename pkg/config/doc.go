// Package config loads transform protocols.
//
// # Overview
//
// A protocol is an ordered list of transform steps plus the store they run
// on. It can be written in CUE, YAML, JSON or HCL; every format is decoded to
// the same document and goes through one pipeline:
//
//  1. CUE schema validation against the built-in #Protocol definition
//  2. strict decoding into Protocol (unknown fields are rejected)
//  3. struct tag validation with go-playground/validator
//  4. the optional Starlark script, whose numeric globals become variables
//  5. condition trees are built from the where/within specs
//
// Problems are reported as ValidationErrors carrying the file, the line of
// the offending step where the format records it and the field path, wrapped
// in a configuration error.
//
// # Components
//
// Parser: loads files, directories (as CUE packages) and inline content.
//
// SchemaRegistry: compiled CUE schemas. Custom schemas can be registered
// alongside the protocol schema.
//
// StarlarkEvaluator: runs protocol scripts with a timeout and a step budget.
//
// Watcher: reloads a protocol when its file changes.
//
// Executor: plans and runs the steps of a protocol against an engine.
//
// # Usage Example
//
//	proto, err := config.Load(ctx, "smooth.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store, err := stores.Open(ctx, proto.Store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	x := &config.Executor{Engine: engine.NewTransformEngine(store, engine.WithParallelism(proto.Parallelism))}
//	if _, err := x.Execute(ctx, proto); err != nil {
//	    log.Fatal(err)
//	}
//
// # Conditions
//
// A condition node sets exactly one of:
//
//	all, any          lists of conditions
//	not               a condition
//	numeric           {track, op, value, value2}
//	overlaps          {track, mode, type}
//	sequences         a glob over sequence names
//	in_collection     a sequence collection name
//	expr              a Starlark boolean expression
//	rego              {module, query}
//	property          {name, op, value} over the region being evaluated
package config
