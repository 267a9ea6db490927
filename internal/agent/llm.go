package agent

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"go-procurement-agent/internal/ai"
)

// complete calls the model with a per-call timeout, retrying transient
// failures. Exhausted retries become llm_unavailable.
func complete(ctx context.Context, llm ai.Client, req ai.Request, b Budgets) (string, error) {
	backoff := retry.WithMaxRetries(uint64(b.LLMRetries), retry.NewConstant(b.RetryBackoff))
	llm = ai.WithTimeout(llm, b.LLMTimeout)

	var out string
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		reply, err := llm.Complete(ctx, req)
		if err != nil {
			if ai.IsTransient(err) && ctx.Err() == nil {
				zap.S().Named("agent").Warnf("⚠️ LLM call attempt %d failed: %v", attempt, err)
				return retry.RetryableError(err)
			}
			return err
		}
		out = reply
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", newError(KindLLMUnavailable, fmt.Sprintf("language model call failed after %d attempt(s)", attempt), err)
	}
	return out, nil
}
