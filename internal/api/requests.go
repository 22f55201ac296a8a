package api

import (
	"net/http"

	"bountyexpo/internal/auth"
	"bountyexpo/internal/model"

	"github.com/go-chi/chi/v5"
)

func (d Dependencies) applyToBounty(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &body, d.Log) {
		return
	}

	req, created, err := d.Requests.Apply(r.Context(), chi.URLParam(r, "id"), auth.GetUserID(r.Context()), body.Message)
	if err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, req)
}

func (d Dependencies) listRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := d.Requests.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	if reqs == nil {
		reqs = []*model.BountyRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": reqs})
}

func (d Dependencies) acceptRequest(w http.ResponseWriter, r *http.Request) {
	b, err := d.Requests.Accept(r.Context(), chi.URLParam(r, "id"), auth.GetUserID(r.Context()), idempotencyKey(r))
	if err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (d Dependencies) declineRequest(w http.ResponseWriter, r *http.Request) {
	req, err := d.Requests.Decline(r.Context(), chi.URLParam(r, "id"), auth.GetUserID(r.Context()))
	if err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
