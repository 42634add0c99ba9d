package config

import (
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with the built-in protocol schema.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema("protocol", builtinProtocolSchema, "#Protocol"); err != nil {
		panic(err)
	}

	return sr
}

// RegisterSchema compiles schema and registers the definition named def
// (or the whole value when def is empty) under name.
func (sr *SchemaRegistry) RegisterSchema(name, schema, def string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	if def != "" {
		val = val.LookupPath(cue.ParsePath(def))
		if !val.Exists() {
			return fmt.Errorf("schema %s has no definition %s", name, def)
		}
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Validate checks data against a named schema and returns the problems found.
func (sr *SchemaRegistry) Validate(schemaName string, data any) ([]ValidationError, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return nil, fmt.Errorf("schema %s not found", schemaName)
	}

	// cue.Context is not safe for concurrent use
	sr.mu.Lock()
	defer sr.mu.Unlock()

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return nil, fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(err), nil
	}

	return nil, nil
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinProtocolSchema = `
#Scalar: number | string | bool

#Condition: {
	all?: [...#Condition]
	any?: [...#Condition]
	not?: #Condition
	numeric?: {
		track:   string & != ""
		op:      string
		value:   #Scalar
		value2?: #Scalar
	}
	overlaps?: {
		track: string & != ""
		mode?: "overlaps" | "inside" | "covers"
		type?: string
	}
	sequences?:     string
	in_collection?: string
	expr?:          string
	rego?: {
		module: string
		query:  string
	}
	property?: {
		name:   string & != ""
		op:     string
		value?: #Scalar
	}
}

#Step: {
	operation: string & != ""
	params?: {[string]: _}
	where?:  #Condition
	within?: #Condition
}

#Protocol: {
	name:         string & != ""
	parallelism?: number & >=1
	store?: {
		driver?: "memory" | "sqlite" | "postgres" | "s3"
		...
	}
	variables?: {[string]: number}
	script?:    string
	defaults?: {[string]: _}
	steps: [#Step, ...#Step]
}
`
