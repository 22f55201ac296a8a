package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Sandbox is an in-memory Processor. Results are remembered per idempotency key
// so replays return the original id without a second effect.
type Sandbox struct {
	mu       sync.Mutex
	holds    map[string]*sandboxHold
	replies  map[string]string
	failures map[string][]error
	calls    map[string]int
}

type sandboxHold struct {
	amount   int64
	currency string
	state    string
}

const (
	OpCreateHold = "create_hold"
	OpCapture    = "capture"
	OpCancel     = "cancel"
)

func NewSandbox() *Sandbox {
	return &Sandbox{
		holds:    make(map[string]*sandboxHold),
		replies:  make(map[string]string),
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

// FailNext queues errors returned by the next calls to op, one per call.
func (s *Sandbox) FailNext(op string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], errs...)
}

// Calls returns how many times op was invoked, failures included.
func (s *Sandbox) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// TotalCalls returns the number of calls across all operations.
func (s *Sandbox) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// HoldState returns held, captured or cancelled for a known hold.
func (s *Sandbox) HoldState(holdID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.holds[holdID]; ok {
		return h.state
	}
	return ""
}

func (s *Sandbox) begin(ctx context.Context, op, key string) (string, bool, error) {
	s.calls[op]++
	if err := ctx.Err(); err != nil {
		return "", false, &Error{Category: CategoryNetwork, Op: op, Err: err}
	}
	if q := s.failures[op]; len(q) > 0 {
		err := q[0]
		s.failures[op] = q[1:]
		return "", false, err
	}
	if key != "" {
		if id, ok := s.replies[op+"|"+key]; ok {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (s *Sandbox) remember(op, key, id string) {
	if key != "" {
		s.replies[op+"|"+key] = id
	}
}

func (s *Sandbox) CreateHold(ctx context.Context, req HoldRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, replay, err := s.begin(ctx, OpCreateHold, req.IdempotencyKey); err != nil || replay {
		return id, err
	}
	if req.AmountCents <= 0 {
		return "", &Error{Category: CategoryValidation, Op: OpCreateHold, Code: "amount_invalid", Err: fmt.Errorf("amount must be positive")}
	}
	id := "hold_" + ulid.Make().String()
	s.holds[id] = &sandboxHold{amount: req.AmountCents, currency: req.Currency, state: "held"}
	s.remember(OpCreateHold, req.IdempotencyKey, id)
	return id, nil
}

func (s *Sandbox) CaptureAndTransfer(ctx context.Context, holdID, destination, idempotencyKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, replay, err := s.begin(ctx, OpCapture, idempotencyKey); err != nil || replay {
		return id, err
	}
	h, ok := s.holds[holdID]
	if !ok {
		return "", &Error{Category: CategoryValidation, Op: OpCapture, Code: "hold_not_found", Err: fmt.Errorf("hold %s not found", holdID)}
	}
	if h.state != "held" {
		return "", &Error{Category: CategoryDuplicate, Op: OpCapture, Code: "hold_" + h.state, Err: fmt.Errorf("hold %s is %s", holdID, h.state)}
	}
	h.state = "captured"
	id := "tr_" + ulid.Make().String()
	s.remember(OpCapture, idempotencyKey, id)
	return id, nil
}

func (s *Sandbox) CancelOrRefundHold(ctx context.Context, holdID, idempotencyKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, replay, err := s.begin(ctx, OpCancel, idempotencyKey); err != nil || replay {
		return id, err
	}
	h, ok := s.holds[holdID]
	if !ok {
		return "", &Error{Category: CategoryValidation, Op: OpCancel, Code: "hold_not_found", Err: fmt.Errorf("hold %s not found", holdID)}
	}
	if h.state != "held" {
		return "", &Error{Category: CategoryDuplicate, Op: OpCancel, Code: "hold_" + h.state, Err: fmt.Errorf("hold %s is %s", holdID, h.state)}
	}
	h.state = "cancelled"
	id := "re_" + ulid.Make().String()
	s.remember(OpCancel, idempotencyKey, id)
	return id, nil
}
