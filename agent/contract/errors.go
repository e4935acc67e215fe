package contract

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrModelInvoke   = errors.New("model invoke failed")
	ErrPromptMissing = errors.New("required prompt is missing")
	ErrValidation    = errors.New("validation failed")
	ErrUnknownAgent  = errors.New("unknown agent")
)

// Failure classes attached to AgentExecutionError and payment attempts.
const (
	ClassTimeout     = "timeout"
	ClassDeclined    = "declined"
	ClassUnavailable = "gateway-unavailable"
	ClassInvalid     = "invalid-request"
	ClassOutOfStock  = "out-of-stock"
	ClassInternal    = "internal"
)

// Detailed errors expose a stable kind and metadata for rendering
// actionable messages.
type Detailed interface {
	error
	Kind() string
	Details() map[string]string
}

type Failure struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Describe finds the outermost Detailed error in err's chain. The message is
// that error's own, without the decoration of the layers wrapping it.
func Describe(err error) Failure {
	if err == nil {
		return Failure{}
	}
	var d Detailed
	if errors.As(err, &d) {
		return Failure{Kind: d.Kind(), Message: d.Error(), Details: d.Details()}
	}
	return Failure{Kind: "internal", Message: err.Error()}
}

type AgentExecutionError struct {
	Agent     AgentName
	Retryable bool
	Class     string
	Cause     error
}

func NewRetryable(agent AgentName, class string, cause error) *AgentExecutionError {
	return &AgentExecutionError{Agent: agent, Retryable: true, Class: class, Cause: cause}
}

func NewFatal(agent AgentName, class string, cause error) *AgentExecutionError {
	return &AgentExecutionError{Agent: agent, Retryable: false, Class: class, Cause: cause}
}

func (e *AgentExecutionError) Error() string {
	mode := "fatal"
	if e.Retryable {
		mode = "retryable"
	}
	return fmt.Sprintf("agent %s failed (%s, %s): %v", e.Agent, mode, e.Class, e.Cause)
}

func (e *AgentExecutionError) Unwrap() error { return e.Cause }

func (e *AgentExecutionError) Kind() string { return "agent_execution" }

func (e *AgentExecutionError) Details() map[string]string {
	return map[string]string{
		"agent":     string(e.Agent),
		"retryable": strconv.FormatBool(e.Retryable),
		"class":     e.Class,
	}
}

// IsRetryable reports whether err carries a retryable AgentExecutionError.
func IsRetryable(err error) bool {
	var aerr *AgentExecutionError
	return errors.As(err, &aerr) && aerr.Retryable
}

type PaymentAttempt struct {
	Gateway       string        `json:"gateway"`
	Outcome       string        `json:"outcome"` // "success" or a failure class
	Elapsed       time.Duration `json:"elapsed"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Err           string        `json:"error,omitempty"`
}

type PaymentExhaustedError struct {
	Attempts []PaymentAttempt
	// Interrupted is set when the run deadline ended the chain early.
	Interrupted bool
}

func (e *PaymentExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Gateway+"="+a.Outcome)
	}
	if e.Interrupted {
		return fmt.Sprintf("payment stopped by deadline after %d gateway attempts [%s]", len(e.Attempts), strings.Join(parts, ", "))
	}
	return fmt.Sprintf("payment failed on all %d gateways [%s]", len(e.Attempts), strings.Join(parts, ", "))
}

func (e *PaymentExhaustedError) Kind() string { return "payment_exhausted" }

func (e *PaymentExhaustedError) Details() map[string]string {
	details := map[string]string{"attempts": strconv.Itoa(len(e.Attempts))}
	if e.Interrupted {
		details["interrupted"] = "true"
	}
	for i, a := range e.Attempts {
		details[fmt.Sprintf("attempt_%d", i+1)] = fmt.Sprintf("%s:%s:%s", a.Gateway, a.Outcome, a.Elapsed)
	}
	return details
}

type StockUnavailableError struct {
	ProductID      string
	Quantity       int
	RequestedStore string
	ScannedStores  []string
}

func (e *StockUnavailableError) Error() string {
	return fmt.Sprintf("product %s x%d unavailable at %s and %d nearby stores, no alternatives",
		e.ProductID, e.Quantity, e.RequestedStore, len(e.ScannedStores))
}

func (e *StockUnavailableError) Kind() string { return "stock_unavailable" }

func (e *StockUnavailableError) Details() map[string]string {
	return map[string]string{
		"product_id":      e.ProductID,
		"quantity":        strconv.Itoa(e.Quantity),
		"requested_store": e.RequestedStore,
		"scanned_stores":  strings.Join(e.ScannedStores, ","),
	}
}

// RecalculationError names every sub-check that failed during a cart
// quantity change.
type RecalculationError struct {
	FailedChecks []string
	Causes       map[string]error
}

func (e *RecalculationError) Error() string {
	parts := make([]string, 0, len(e.FailedChecks))
	for _, name := range e.FailedChecks {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Causes[name]))
	}
	return "order recalculation failed: " + strings.Join(parts, "; ")
}

func (e *RecalculationError) Unwrap() []error {
	out := make([]error, 0, len(e.FailedChecks))
	for _, name := range e.FailedChecks {
		if cause := e.Causes[name]; cause != nil {
			out = append(out, cause)
		}
	}
	return out
}

func (e *RecalculationError) Kind() string { return "recalculation_failed" }

func (e *RecalculationError) Details() map[string]string {
	return map[string]string{"failed_checks": strings.Join(e.FailedChecks, ",")}
}

type RoutingError struct {
	Intent Intent
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("no route for intent %q", e.Intent)
}

func (e *RoutingError) Kind() string { return "routing" }

func (e *RoutingError) Details() map[string]string {
	return map[string]string{"intent": string(e.Intent)}
}
