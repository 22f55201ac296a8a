package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", Conflictf("accept", "bounty %s already in progress", "b1"))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.True(t, errors.Is(err, Conflict))
	assert.False(t, errors.Is(err, NotFound))

	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{Validationf("op", "bad"), http.StatusBadRequest, "INVALID_ARGUMENT"},
		{Forbidden("op", "no"), http.StatusForbidden, "FORBIDDEN"},
		{Conflictf("op", "stale"), http.StatusConflict, "CONFLICT"},
		{NotFoundf("op", "gone"), http.StatusNotFound, "NOT_FOUND"},
		{New(KindPaymentDeclined, "op", "card declined"), http.StatusPaymentRequired, "PAYMENT_DECLINED"},
		{Wrap(KindFatal, "approve", errors.New("db down")), http.StatusInternalServerError, "manual_reconciliation_required"},
		{errors.New("x"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		status, code := HTTPStatus(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code)
	}
}

func TestMessageHidesInternals(t *testing.T) {
	assert.Equal(t, "internal error", Message(errors.New("pq: connection refused")))
	assert.Contains(t, Message(Wrap(KindFatal, "approve", errors.New("db down"))), "manual reconciliation")
	assert.Equal(t, "title is required", Message(Validationf("create", "title is required")))
}
