package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"bountyexpo/internal/auth"
	"bountyexpo/internal/storage"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (d Dependencies) signUpload(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
		Size        int64  `json:"size"`
	}
	if !decodeJSON(w, r, &body, d.Log) {
		return
	}
	if d.Proofs == nil {
		WriteError(w, http.StatusServiceUnavailable, "uploads_disabled", "Proof uploads are not configured", d.Log)
		return
	}

	upload, err := d.Proofs.SignUpload(r.Context(), auth.GetUserID(r.Context()), body.Name, body.ContentType, body.Size)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "policy_violation", err.Error(), d.Log)
		return
	}
	writeJSON(w, http.StatusOK, upload)
}

// putFile receives an upload made against a presigned local URL.
func (d Dependencies) putFile(w http.ResponseWriter, r *http.Request) {
	object := chi.URLParam(r, "*")
	q := r.URL.Query()
	contentType := q.Get("ct")
	if err := d.Files.Verify(http.MethodPut, object, contentType, q.Get("exp"), q.Get("sig")); err != nil {
		WriteError(w, http.StatusForbidden, "invalid_signature", err.Error(), d.Log)
		return
	}
	if got := r.Header.Get("Content-Type"); contentType != "" && !strings.EqualFold(got, contentType) {
		WriteError(w, http.StatusBadRequest, "content_type_mismatch", "Content-Type does not match the signed upload", d.Log)
		return
	}

	if err := d.Files.Put(r.Context(), object, r.Body); err != nil {
		if errors.Is(err, storage.ErrBadObject) {
			WriteError(w, http.StatusBadRequest, "invalid_object", err.Error(), d.Log)
			return
		}
		WriteError(w, http.StatusInternalServerError, "upload_failed", "Failed to store file", d.Log)
		return
	}
	d.Log.Info("Proof file stored", zap.String("object", object))
	w.WriteHeader(http.StatusCreated)
}

func (d Dependencies) getFile(w http.ResponseWriter, r *http.Request) {
	object := chi.URLParam(r, "*")
	q := r.URL.Query()
	if err := d.Files.Verify(http.MethodGet, object, "", q.Get("exp"), q.Get("sig")); err != nil {
		WriteError(w, http.StatusForbidden, "invalid_signature", err.Error(), d.Log)
		return
	}

	rc, err := d.Files.Get(r.Context(), object)
	if err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "File not found", d.Log)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = io.Copy(w, rc)
}
