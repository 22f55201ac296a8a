package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bountyexpo/internal/apperr"

	"go.uber.org/zap"
)

// SagaStep is one forward action and the action that undoes it.
// A nil Compensate marks the step irreversible.
type SagaStep struct {
	Name       string
	Forward    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Saga runs steps in order and unwinds succeeded steps in reverse on failure.
type Saga struct {
	op      string
	steps   []SagaStep
	timeout time.Duration
	log     *zap.Logger
}

// SagaError reports a failed saga. Compensated is true when every earlier step
// was undone and the system is back where it started.
type SagaError struct {
	Step        string
	Compensated bool
	Err         error
}

func (e *SagaError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *SagaError) Unwrap() error { return e.Err }

func NewSaga(op string, compensationTimeout time.Duration, log *zap.Logger) *Saga {
	if log == nil {
		log = zap.NewNop()
	}
	if compensationTimeout <= 0 {
		compensationTimeout = 30 * time.Second
	}
	return &Saga{op: op, timeout: compensationTimeout, log: log}
}

func (s *Saga) Step(step SagaStep) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Run executes the saga. A failure after an irreversible step, or a failing
// compensation, returns a fatal apperr.Error wrapping the SagaError.
func (s *Saga) Run(ctx context.Context) error {
	for i, step := range s.steps {
		err := step.Forward(ctx)
		if err == nil {
			continue
		}
		sagaErr := &SagaError{Step: step.Name, Err: err}
		if i == 0 {
			sagaErr.Compensated = true
			return sagaErr
		}
		return s.unwind(ctx, i, sagaErr)
	}
	return nil
}

func (s *Saga) unwind(ctx context.Context, failed int, sagaErr *SagaError) error {
	compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	for j := failed - 1; j >= 0; j-- {
		done := s.steps[j]
		if done.Compensate == nil {
			s.log.Error("Saga failed after irreversible step",
				zap.String("op", s.op),
				zap.String("irreversible_step", done.Name),
				zap.String("failed_step", sagaErr.Step),
				zap.Error(sagaErr.Err),
			)
			return &apperr.Error{
				Kind:    apperr.KindFatal,
				Op:      s.op,
				Message: fmt.Sprintf("%s succeeded but %s failed", done.Name, sagaErr.Step),
				Err:     sagaErr,
			}
		}
		if err := done.Compensate(compCtx); err != nil {
			s.log.Error("Saga compensation failed",
				zap.String("op", s.op),
				zap.String("step", done.Name),
				zap.NamedError("cause", sagaErr.Err),
				zap.Error(err),
			)
			return &apperr.Error{
				Kind:    apperr.KindFatal,
				Op:      s.op,
				Message: fmt.Sprintf("manual intervention required: undoing %s failed", done.Name),
				Err:     errors.Join(sagaErr, err),
			}
		}
	}
	sagaErr.Compensated = true
	return sagaErr
}
