package schema

import (
	"context"
	"testing"

	"bountyexpo/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompiler_Prepare(t *testing.T) {
	compiler := NewCompilerWithCache(64)
	ctx := context.Background()

	first, err := compiler.Prepare(ctx, ProofItemSchema)
	require.NoError(t, err)

	second, err := compiler.Prepare(ctx, ProofItemSchema)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestCompiler_PrepareInvalidSchema(t *testing.T) {
	compiler := NewCompilerWithCache(64)

	_, err := compiler.Prepare(context.Background(), []byte(`{"type": 12}`))
	assert.Error(t, err)
}

func TestCompiler_Validate(t *testing.T) {
	compiler := NewCompilerWithCache(64)
	ctx := context.Background()
	schema := []byte(`{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`)

	assert.NoError(t, compiler.Validate(ctx, schema, map[string]interface{}{"name": "test"}))
	assert.Error(t, compiler.Validate(ctx, schema, map[string]interface{}{}))
}

func TestCompiler_ValidateProofItem(t *testing.T) {
	compiler := NewCompilerWithCache(64)
	ctx := context.Background()
	size := int64(2048)

	valid := []model.ProofItem{
		{Type: model.ProofTypeImage, Name: "after.jpg"},
		{ID: "p1", Type: model.ProofTypeFile, Name: "invoice.pdf", URL: "https://cdn.example.com/proofs/invoice.pdf", Size: &size, MIME: "application/pdf"},
	}
	for _, item := range valid {
		assert.NoError(t, compiler.ValidateProofItem(ctx, item), item.Name)
	}

	negative := int64(-1)
	invalid := map[string]model.ProofItem{
		"unknown type":  {Type: "video", Name: "clip.mp4"},
		"empty name":    {Type: model.ProofTypeImage},
		"bad url":       {Type: model.ProofTypeFile, Name: "a.pdf", URL: "::not a uri"},
		"negative size": {Type: model.ProofTypeFile, Name: "a.pdf", Size: &negative},
		"bad mime":      {Type: model.ProofTypeFile, Name: "a.pdf", MIME: "PDF"},
	}
	for name, item := range invalid {
		assert.Error(t, compiler.ValidateProofItem(ctx, item), name)
	}
}

func TestCompiler_ValidateProofItemRejectsUnknownFields(t *testing.T) {
	compiler := NewCompilerWithCache(64)

	err := compiler.ValidateProofItem(context.Background(), map[string]interface{}{
		"type": "image", "name": "a.png", "exif": "gps",
	})
	assert.Error(t, err)
}
