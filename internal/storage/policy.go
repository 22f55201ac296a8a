package storage

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// FilePolicy represents proof upload constraints
type FilePolicy struct {
	MaxTotalMB *float64 `json:"maxTotalMB,omitempty"`
	MaxFileMB  *float64 `json:"maxFileMB,omitempty"`
	MimeTypes  []string `json:"mime,omitempty"`
	Extensions []string `json:"extensions,omitempty"`
}

// NewFilePolicy builds a policy. Zero limits and empty lists mean no restriction.
func NewFilePolicy(maxFileMB, maxTotalMB float64, mimeTypes, extensions []string) *FilePolicy {
	fp := &FilePolicy{}
	if maxFileMB > 0 {
		fp.MaxFileMB = &maxFileMB
	}
	if maxTotalMB > 0 {
		fp.MaxTotalMB = &maxTotalMB
	}
	for _, m := range mimeTypes {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			fp.MimeTypes = append(fp.MimeTypes, m)
		}
	}
	for _, e := range extensions {
		if e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), ".")); e != "" {
			fp.Extensions = append(fp.Extensions, e)
		}
	}
	return fp
}

// ValidateFile validates a file against the policy. An empty content type or
// negative size skips the matching check.
func (fp *FilePolicy) ValidateFile(fileName, contentType string, fileSizeBytes int64) error {
	if fp == nil {
		return nil
	}

	if fp.MaxFileMB != nil && fileSizeBytes >= 0 {
		maxBytes := int64(*fp.MaxFileMB * 1024 * 1024)
		if fileSizeBytes > maxBytes {
			return fmt.Errorf("file size %d bytes exceeds maximum %d bytes (%.2f MB)",
				fileSizeBytes, maxBytes, *fp.MaxFileMB)
		}
	}

	if len(fp.MimeTypes) > 0 && contentType != "" {
		if !fp.matchesMimeType(contentType) {
			return fmt.Errorf("content type %s is not allowed. Allowed types: %v",
				contentType, fp.MimeTypes)
		}
	}

	if len(fp.Extensions) > 0 {
		if !fp.matchesExtension(fileName) {
			return fmt.Errorf("file extension is not allowed. Allowed extensions: %v",
				fp.Extensions)
		}
	}

	return nil
}

// ValidateTotal checks the combined size of all attachments on one submission.
func (fp *FilePolicy) ValidateTotal(totalBytes int64) error {
	if fp == nil || fp.MaxTotalMB == nil {
		return nil
	}
	maxBytes := int64(*fp.MaxTotalMB * 1024 * 1024)
	if totalBytes > maxBytes {
		return fmt.Errorf("attachments total %d bytes exceeds maximum %d bytes (%.2f MB)",
			totalBytes, maxBytes, *fp.MaxTotalMB)
	}
	return nil
}

// matchesMimeType checks if contentType matches any of the allowed MIME type patterns
func (fp *FilePolicy) matchesMimeType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}

	for _, allowed := range fp.MimeTypes {
		if strings.HasSuffix(allowed, "/*") {
			prefix := strings.TrimSuffix(allowed, "/*")
			if strings.HasPrefix(mediaType, prefix+"/") {
				return true
			}
		} else if mediaType == allowed {
			return true
		}
	}
	return false
}

func (fp *FilePolicy) matchesExtension(fileName string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	if ext == "" {
		return false
	}
	for _, allowed := range fp.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
