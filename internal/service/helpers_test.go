package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"bountyexpo/internal/lock"
	"bountyexpo/internal/model"
	"bountyexpo/internal/payment"
	"bountyexpo/internal/store"

	"github.com/stretchr/testify/require"
)

// MockEventBus implements EventBus for testing
type MockEventBus struct {
	mu     sync.Mutex
	events []map[string]interface{}
}

func (m *MockEventBus) PublishBounty(bountyID string, event map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockEventBus) PublishUser(userID string, event map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockEventBus) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		out = append(out, e["type"].(string))
	}
	return out
}

// MockJobClient records escalations
type MockJobClient struct {
	mu        sync.Mutex
	incidents []string
	notified  int
}

func (m *MockJobClient) EnqueueIncidentEscalation(incidentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incidents = append(m.incidents, incidentID)
	return nil
}

func (m *MockJobClient) EnqueueNotification(userID string, event map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified++
	return nil
}

type harness struct {
	store      *store.Memory
	processor  *payment.Sandbox
	bus        *MockEventBus
	jobs       *MockJobClient
	escrow     *EscrowCoordinator
	bounties   *BountyService
	requests   *RequestService
	completion *CompletionService
	incidents  *IncidentService
	auditor    *Auditor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := store.NewMemory()
	sb := payment.NewSandbox()
	bus := &MockEventBus{}
	jobs := &MockJobClient{}
	locker := lock.NewMutexMap()

	escalator := NewEscalator(st, nil)
	escalator.SetJobClient(jobs)
	policy := payment.RetryPolicy{MaxRetries: 3, Base: time.Millisecond, AttemptTimeout: time.Second}
	escrow := NewEscrowCoordinator(st, sb, policy, escalator, nil)

	h := &harness{
		store:      st,
		processor:  sb,
		bus:        bus,
		jobs:       jobs,
		escrow:     escrow,
		bounties:   NewBountyService(st, escrow, locker, bus, nil),
		requests:   NewRequestService(st, escrow, locker, bus, nil),
		completion: NewCompletionService(st, escrow, locker, nil, bus, nil),
		incidents:  NewIncidentService(st, nil),
		auditor:    NewAuditor(st, escalator, nil),
	}
	h.requests.SetJobClient(jobs)
	h.completion.SetJobClient(jobs)
	return h
}

func (h *harness) createBounty(t *testing.T, amount int64, honor bool) *model.Bounty {
	t.Helper()
	b, err := h.bounties.Create(context.Background(), CreateBountyInput{
		PosterID:    "poster",
		Title:       "Assemble a bookshelf",
		AmountCents: amount,
		Currency:    "USD",
		IsForHonor:  honor,
	})
	require.NoError(t, err)
	return b
}

func (h *harness) apply(t *testing.T, bountyID, hunterID string) *model.BountyRequest {
	t.Helper()
	r, created, err := h.requests.Apply(context.Background(), bountyID, hunterID, "I can do it")
	require.NoError(t, err)
	require.True(t, created)
	return r
}

// inProgress returns a bounty accepted for "hunter" with a pending submission.
func (h *harness) inProgress(t *testing.T, amount int64, honor bool) (*model.Bounty, *model.CompletionSubmission) {
	t.Helper()
	ctx := context.Background()
	b := h.createBounty(t, amount, honor)
	r := h.apply(t, b.ID, "hunter")
	_, err := h.requests.Accept(ctx, r.ID, "poster", "")
	require.NoError(t, err)

	sub, created, err := h.completion.Submit(ctx, SubmitInput{
		BountyID: b.ID,
		HunterID: "hunter",
		Message:  "Done, see photo",
		ProofItems: []model.ProofItem{
			{ID: "p1", Type: model.ProofTypeImage, Name: "shelf.jpg", URL: "https://cdn.example/shelf.jpg"},
		},
	})
	require.NoError(t, err)
	require.True(t, created)
	return b, sub
}

func transientErrors(n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = &payment.Error{Category: payment.CategoryServer, Op: "test"}
	}
	return errs
}
