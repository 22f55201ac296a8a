package api

import (
	"net/http"
	"strconv"

	"bountyexpo/internal/apperr"
	"bountyexpo/internal/auth"
	"bountyexpo/internal/lifecycle"
	"bountyexpo/internal/model"
	"bountyexpo/internal/service"

	"github.com/go-chi/chi/v5"
)

func (d Dependencies) createBounty(w http.ResponseWriter, r *http.Request) {
	var input service.CreateBountyInput
	if !decodeJSON(w, r, &input, d.Log) {
		return
	}
	input.PosterID = auth.GetUserID(r.Context())

	b, err := d.Bounties.Create(r.Context(), input)
	if err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// listBounties browses by status, or lists the caller's own bounties with ?mine=true.
func (d Dependencies) listBounties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		bounties []*model.Bounty
		err      error
	)
	if mine, _ := strconv.ParseBool(q.Get("mine")); mine {
		includeHidden, _ := strconv.ParseBool(q.Get("includeHidden"))
		bounties, err = d.Bounties.ListByPoster(r.Context(), auth.GetUserID(r.Context()), includeHidden)
	} else {
		status := model.BountyStatus(q.Get("status"))
		if status == "" {
			status = model.BountyStatusOpen
		}
		bounties, err = d.Bounties.Browse(r.Context(), status)
	}
	if err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	if bounties == nil {
		bounties = []*model.Bounty{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": bounties})
}

func (d Dependencies) getBounty(w http.ResponseWriter, r *http.Request) {
	b, err := d.Bounties.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bounty":      b,
		"transitions": lifecycle.Allowed(b.Status),
	})
}

func (d Dependencies) transitionBounty(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Transition lifecycle.Transition `json:"transition"`
	}
	if !decodeJSON(w, r, &body, d.Log) {
		return
	}

	b, err := d.Bounties.Transition(r.Context(), chi.URLParam(r, "id"), auth.GetUserID(r.Context()), body.Transition, idempotencyKey(r))
	if err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (d Dependencies) hideBounty(w http.ResponseWriter, r *http.Request) {
	if err := d.Bounties.Hide(r.Context(), chi.URLParam(r, "id"), auth.GetUserID(r.Context())); err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d Dependencies) bountyLedger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b, err := d.Bounties.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	actor := auth.GetUserID(r.Context())
	if actor != b.PosterID && actor != b.AssignedHunter() {
		writeAppError(w, apperr.Forbidden("bounty.ledger", "only the poster or the assigned hunter can view the ledger"), d.Log)
		return
	}

	txs, err := d.Wallet.BountyLedger(r.Context(), id)
	if err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	if txs == nil {
		txs = []*model.WalletTransaction{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": txs})
}
