package payment

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Category classifies a payment failure for the retry policy.
type Category string

const (
	CategoryNetwork      Category = "network"
	CategoryProcessing   Category = "processing"
	CategoryServer       Category = "server"
	CategoryRateLimit    Category = "rate_limit"
	CategoryCardDeclined Category = "card_declined"
	CategoryValidation   Category = "validation"
	CategoryFraud        Category = "fraud"
	CategoryDuplicate    Category = "duplicate"
)

// Retryable reports whether failures in this category are transient.
func (c Category) Retryable() bool {
	switch c {
	case CategoryNetwork, CategoryProcessing, CategoryServer, CategoryRateLimit:
		return true
	default:
		return false
	}
}

// Error is a categorized payment capability failure.
type Error struct {
	Category Category
	Op       string
	Code     string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("payment %s failed (%s", e.Op, e.Category)
	if e.Code != "" {
		msg += "/" + e.Code
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// ErrExhausted wraps the last transient failure once the retry budget is spent.
var ErrExhausted = errors.New("payment retries exhausted")

// CategoryOf classifies any error returned by a Processor.
// Timeouts and cancellations are unconfirmed outcomes and count as network failures.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Category
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryNetwork
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return CategoryNetwork
	}
	return CategoryProcessing
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	return err != nil && !CategoryOf(err).Retryable()
}
