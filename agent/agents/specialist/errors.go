package specialist

import (
	"context"
	"errors"

	"github.com/tanpawarit/omnichannel-retail-orchestrator/agent/catalog"
	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
	statex "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/state"
)

// wrapAgentError classifies err for the orchestrator's retry loop.
func wrapAgentError(agent contractx.AgentName, err error) error {
	if err == nil {
		return nil
	}
	var aerr *contractx.AgentExecutionError
	if errors.As(err, &aerr) {
		return err
	}

	var (
		stockErr   *contractx.StockUnavailableError
		paymentErr *contractx.PaymentExhaustedError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return contractx.NewRetryable(agent, contractx.ClassTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.As(err, &stockErr):
		return contractx.NewFatal(agent, contractx.ClassOutOfStock, err)
	case errors.As(err, &paymentErr):
		class := contractx.ClassUnavailable
		if n := len(paymentErr.Attempts); n > 0 {
			class = paymentErr.Attempts[n-1].Outcome
		}
		return contractx.NewFatal(agent, class, err)
	case errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, catalog.ErrStoreNotFound),
		errors.Is(err, contractx.ErrValidation),
		errors.Is(err, statex.ErrInvalidCart),
		errors.Is(err, statex.ErrInvalidChannel):
		return contractx.NewFatal(agent, contractx.ClassInvalid, err)
	case errors.Is(err, contractx.ErrModelInvoke):
		return contractx.NewRetryable(agent, contractx.ClassUnavailable, err)
	default:
		return contractx.NewFatal(agent, contractx.ClassInternal, err)
	}
}
