package storage

import (
	"testing"

	"bountyexpo/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestFilePolicyValidateFile(t *testing.T) {
	fp := NewFilePolicy(1, 0, []string{"image/*", "Application/PDF"}, []string{".JPG", "png", "pdf"})

	assert.NoError(t, fp.ValidateFile("a.jpg", "image/jpeg", 1024))
	assert.NoError(t, fp.ValidateFile("a.pdf", "application/pdf; charset=binary", 1024))
	assert.NoError(t, fp.ValidateFile("a.png", "", -1))
	assert.Error(t, fp.ValidateFile("a.jpg", "image/jpeg", 2*1024*1024))
	assert.Error(t, fp.ValidateFile("a.zip", "application/zip", 10))
	assert.Error(t, fp.ValidateFile("a.exe", "image/png", 10))
	assert.Error(t, fp.ValidateFile("noext", "image/png", 10))
}

func TestFilePolicyNilAndEmpty(t *testing.T) {
	var nilPolicy *FilePolicy
	assert.NoError(t, nilPolicy.ValidateFile("x", "whatever/thing", 1<<40))
	assert.NoError(t, nilPolicy.ValidateTotal(1<<40))

	empty := NewFilePolicy(0, 0, nil, nil)
	assert.NoError(t, empty.ValidateFile("x", "whatever/thing", 1<<40))
}

func TestFilePolicyValidateTotal(t *testing.T) {
	fp := NewFilePolicy(0, 2, nil, nil)
	assert.NoError(t, fp.ValidateTotal(2*1024*1024))
	assert.Error(t, fp.ValidateTotal(2*1024*1024+1))
}

func TestNormalizeProofItem(t *testing.T) {
	item := NormalizeProofItem(model.ProofItem{Name: "  After.JPG ", URL: " https://x/y "})
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, "After.JPG", item.Name)
	assert.Equal(t, "https://x/y", item.URL)
	assert.Equal(t, "image/jpeg", item.MIME)
	assert.Equal(t, model.ProofTypeImage, item.Type)

	doc := NormalizeProofItem(model.ProofItem{ID: "keep", Name: "report.pdf", Type: "FILE"})
	assert.Equal(t, "keep", doc.ID)
	assert.Equal(t, model.ProofTypeFile, doc.Type)
	assert.Equal(t, "application/pdf", doc.MIME)

	unknown := NormalizeProofItem(model.ProofItem{Name: "notes"})
	assert.Empty(t, unknown.MIME)
	assert.Equal(t, model.ProofTypeFile, unknown.Type)
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "proofs/u1/01ABC.png", ObjectName("u1", "01ABC", "Photo.PNG"))
}
