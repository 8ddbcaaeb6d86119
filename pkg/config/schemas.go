package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/openfroyo/configtpl/pkg/marshal"
	"github.com/openfroyo/configtpl/pkg/value"
)

// schemaDefinition is the definition used as the schema when a schema
// source declares one. Otherwise the whole source is the schema.
const schemaDefinition = "#Config"

// SchemaRegistry manages CUE schemas for validating built configuration.
// Schemas are stored as source and compiled per validation, since a
// cue.Context is not safe for concurrent use.
type SchemaRegistry struct {
	schemas map[string]string
	mu      sync.RWMutex
}

// NewSchemaRegistry creates an empty schema registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{
		schemas: make(map[string]string),
	}
}

// RegisterSchema compiles and registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	if _, err := compileSchema(cuecontext.New(), schema); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.schemas[name] = schema
	return nil
}

// RegisterSchemaFile registers the schema in path under name.
func (sr *SchemaRegistry) RegisterSchemaFile(name, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read schema %s: %w", path, err)
	}
	return sr.RegisterSchema(name, string(content))
}

// HasSchema reports whether a schema is registered under name.
func (sr *SchemaRegistry) HasSchema(name string) bool {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	_, ok := sr.schemas[name]
	return ok
}

// ValidateValue validates v against the named schema. The unified result
// must be concrete.
func (sr *SchemaRegistry) ValidateValue(ctx context.Context, schemaName string, v value.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sr.mu.RLock()
	source, ok := sr.schemas[schemaName]
	sr.mu.RUnlock()
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	cctx := cuecontext.New()
	schema, err := compileSchema(cctx, source)
	if err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", schemaName, err)
	}

	dataVal := cctx.Encode(marshal.ToGo(v))
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation against %s failed: %w", schemaName, (&CUEParser{}).convertCUEErrors(err))
	}
	return nil
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

func compileSchema(cctx *cue.Context, source string) (cue.Value, error) {
	val := cctx.CompileString(source)
	if err := val.Err(); err != nil {
		return cue.Value{}, err
	}
	if def := val.LookupPath(cue.ParsePath(schemaDefinition)); def.Exists() {
		return def, nil
	}
	return val, nil
}
