package policy

import (
	"context"

	contractx "github.com/tanpawarit/omnichannel-retail-orchestrator/agent/contract"
)

// Recalculate runs the sub-checks of a cart change concurrently against the
// same snapshot. Results are returned only when every check succeeded;
// otherwise a RecalculationError names each failing check.
func Recalculate(ctx context.Context, checks []Task[contractx.PartialResult]) ([]contractx.PartialResult, error) {
	outcomes := FanOut(ctx, checks)

	var failed *contractx.RecalculationError
	results := make([]contractx.PartialResult, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			if failed == nil {
				failed = &contractx.RecalculationError{Causes: make(map[string]error)}
			}
			failed.FailedChecks = append(failed.FailedChecks, o.Name)
			failed.Causes[o.Name] = o.Err
			continue
		}
		results = append(results, o.Value)
	}
	if failed != nil {
		return nil, failed
	}
	return results, nil
}
