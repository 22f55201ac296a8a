package storage

import (
	"mime"
	"path/filepath"
	"strings"

	"bountyexpo/internal/model"

	"github.com/oklog/ulid/v2"
)

// NormalizeProofItem trims the item, fills an id, infers the MIME type from the
// file extension when missing and lowercases the type.
func NormalizeProofItem(item model.ProofItem) model.ProofItem {
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" {
		item.ID = ulid.Make().String()
	}
	item.Name = strings.TrimSpace(item.Name)
	item.URL = strings.TrimSpace(item.URL)
	item.Type = model.ProofType(strings.ToLower(strings.TrimSpace(string(item.Type))))

	item.MIME = strings.ToLower(strings.TrimSpace(item.MIME))
	if item.MIME == "" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(item.Name))); byExt != "" {
			if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
				item.MIME = mediaType
			}
		}
	}
	if item.Type == "" {
		item.Type = model.ProofTypeFile
		if strings.HasPrefix(item.MIME, "image/") {
			item.Type = model.ProofTypeImage
		}
	}
	return item
}

// ObjectName builds the storage key for a hunter's proof upload.
func ObjectName(userID, uploadID, fileName string) string {
	return "proofs/" + userID + "/" + uploadID + strings.ToLower(filepath.Ext(fileName))
}
