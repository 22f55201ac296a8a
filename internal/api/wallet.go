package api

import (
	"net/http"

	"bountyexpo/internal/auth"
	"bountyexpo/internal/model"
	"bountyexpo/internal/service"
)

func (d Dependencies) walletHistory(w http.ResponseWriter, r *http.Request) {
	txs, err := d.Wallet.History(r.Context(), auth.GetUserID(r.Context()))
	if err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	if txs == nil {
		txs = []*model.WalletTransaction{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": txs})
}

func (d Dependencies) walletBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := d.Wallet.Balances(r.Context(), auth.GetUserID(r.Context()))
	if err != nil {
		writeAppError(w, err, d.Log)
		return
	}
	if balances == nil {
		balances = []service.Balance{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": balances})
}
