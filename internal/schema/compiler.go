package schema

import (
	"bytes"
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	js "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed proof_item.schema.json
var ProofItemSchema []byte

type Compiler struct {
	compiler *js.Compiler
	cache    *expirable.LRU[string, *js.Schema]
}

// NewCompilerWithCache creates a new compiler with cache
func NewCompilerWithCache(maxSize int) *Compiler {
	c := js.NewCompiler()
	c.Draft = js.Draft2020
	c.AssertFormat = true

	return &Compiler{
		compiler: c,
		cache:    expirable.NewLRU[string, *js.Schema](maxSize, nil, time.Hour),
	}
}

func (c *Compiler) key(schema []byte) string {
	sum := sha256.Sum256(schema)
	return hex.EncodeToString(sum[:])
}

// Prepare compiles and caches a schema
func (c *Compiler) Prepare(ctx context.Context, schema []byte) (*js.Schema, error) {
	key := c.key(schema)
	if compiled, ok := c.cache.Get(key); ok {
		return compiled, nil
	}

	resourceURL := fmt.Sprintf("mem://schema/%s.json", key[:16])
	if err := c.compiler.AddResource(resourceURL, bytes.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("failed to add resource: %w", err)
	}

	compiled, err := c.compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	c.cache.Add(key, compiled)
	return compiled, nil
}

// Validate validates any JSON-marshalable value against a schema
func (c *Compiler) Validate(ctx context.Context, schema []byte, value interface{}) error {
	compiled, err := c.Prepare(ctx, schema)
	if err != nil {
		return err
	}

	valueBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	var valueRaw interface{}
	if err := json.Unmarshal(valueBytes, &valueRaw); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}

	if err := compiled.Validate(valueRaw); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateProofItem checks one proof item against the embedded proof schema.
func (c *Compiler) ValidateProofItem(ctx context.Context, item interface{}) error {
	return c.Validate(ctx, ProofItemSchema, item)
}
