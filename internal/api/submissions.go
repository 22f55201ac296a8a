package api

import (
	"net/http"

	"bountyexpo/internal/auth"
	"bountyexpo/internal/model"
	"bountyexpo/internal/service"

	"github.com/go-chi/chi/v5"
)

func (d Dependencies) submitCompletion(w http.ResponseWriter, r *http.Request) {
	var input service.SubmitInput
	if !decodeJSON(w, r, &input, d.Log) {
		return
	}
	input.BountyID = chi.URLParam(r, "id")
	input.HunterID = auth.GetUserID(r.Context())

	sub, created, err := d.Completion.Submit(r.Context(), input)
	if err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, sub)
}

func (d Dependencies) listSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := d.Completion.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	if subs == nil {
		subs = []*model.CompletionSubmission{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": subs})
}

func (d Dependencies) getSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := d.Completion.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (d Dependencies) approveSubmission(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Feedback *string `json:"feedback"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &body, d.Log) {
		return
	}

	sub, err := d.Completion.Approve(r.Context(), chi.URLParam(r, "id"), auth.GetUserID(r.Context()), body.Feedback, idempotencyKey(r))
	if err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (d Dependencies) rejectSubmission(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &body, d.Log) {
		return
	}

	sub, err := d.Completion.Reject(r.Context(), chi.URLParam(r, "id"), auth.GetUserID(r.Context()), body.Reason, idempotencyKey(r))
	if err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (d Dependencies) requestRevision(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Feedback string `json:"feedback"`
	}
	if !decodeJSON(w, r, &body, d.Log) {
		return
	}

	sub, err := d.Completion.RequestRevision(r.Context(), chi.URLParam(r, "id"), auth.GetUserID(r.Context()), body.Feedback)
	if err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
