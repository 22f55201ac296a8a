package api

import (
	"net/http"
	"strconv"

	"bountyexpo/internal/model"
	"bountyexpo/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (d Dependencies) listIncidents(w http.ResponseWriter, r *http.Request) {
	openOnly := true
	if v := r.URL.Query().Get("open"); v != "" {
		openOnly, _ = strconv.ParseBool(v)
	}
	incidents, err := d.Incidents.List(r.Context(), openOnly)
	if err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	if incidents == nil {
		incidents = []*model.Incident{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": incidents})
}

func (d Dependencies) resolveIncident(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Resolution string `json:"resolution"`
	}
	if !decodeJSON(w, r, &body, d.Log) {
		return
	}
	if err := d.Incidents.Resolve(r.Context(), chi.URLParam(r, "id"), body.Resolution); err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d Dependencies) runAudit(w http.ResponseWriter, r *http.Request) {
	findings, err := d.Auditor.Run(r.Context())
	if err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	if findings == nil {
		findings = []service.Finding{}
	}
	d.Log.Info("Audit run on demand", zap.Int("findings", len(findings)))
	writeJSON(w, http.StatusOK, map[string]interface{}{"findings": findings})
}
