package pipelines

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/zoobzio/pipz"
)

// Option modifies a pipeline for reliability features.
type Option func(pipz.Chainable[*Request]) pipz.Chainable[*Request]

// WithTimeout adds timeout protection to the pipeline.
// Operations exceeding this duration will be canceled.
func WithTimeout(duration time.Duration) Option {
	return func(pipeline pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewTimeout("timeout", pipeline, duration)
	}
}

// WithCircuitBreaker adds circuit breaker protection to the pipeline.
// After 'failures' consecutive failures, the circuit opens for 'recovery' duration.
func WithCircuitBreaker(failures int, recovery time.Duration) Option {
	return func(pipeline pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewCircuitBreaker("circuit-breaker", pipeline, failures, recovery)
	}
}

// WithRateLimit adds rate limiting to the pipeline.
// rps = requests per second, burst = burst capacity.
func WithRateLimit(rps float64, burst int) Option {
	return func(pipeline pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		rateLimiter := pipz.NewRateLimiter[*Request]("rate-limit", rps, burst)
		return pipz.NewSequence("rate-limited", rateLimiter, pipeline)
	}
}

// WithErrorHandler adds error handling to the pipeline.
// The handler sees the failing request and the stage path; the original
// error is still returned to the caller.
func WithErrorHandler(handler pipz.Chainable[*pipz.Error[*Request]]) Option {
	return func(pipeline pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewHandle("error-handler", pipeline, handler)
	}
}

// WithDebug writes the synthesis prompt inputs and the final output to w.
func WithDebug(w io.Writer) Option {
	return func(pipeline pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.Apply("debug", func(ctx context.Context, req *Request) (*Request, error) {
			fmt.Fprintf(w, "\n=== DEBUG: Request %s ===\n", req.RequestID)
			fmt.Fprintf(w, "model: %s, messages: %d\n", req.ModelID, len(req.Messages))

			processed, err := pipeline.Process(ctx, req)
			if err != nil {
				fmt.Fprintf(w, "\n=== DEBUG: Error ===\n%v\n==================\n\n", err)
				return processed, err
			}

			fmt.Fprintln(w, "\n=== DEBUG: Search ===")
			fmt.Fprintln(w, processed.Search.Text)
			fmt.Fprintln(w, "\n=== DEBUG: Output ===")
			fmt.Fprintln(w, processed.Output)
			fmt.Fprintln(w, "=====================")
			return processed, nil
		})
	}
}
