// Package llm provides clients for the external reasoning service.
// Two wire formats are supported: the native ollama chat API (the default
// local setup) and the OpenAI-compatible chat/completions shape exposed by
// most hosted endpoints. Both are plain HTTP/JSON; the rest of the system
// only sees the Client interface.
package llm

import (
	"context"
	"errors"
	"net"
)

// Client is the interface to the reasoning service.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ErrTimeout marks a reasoning-service call that exceeded its deadline.
// The repair loop consumes it from the attempt budget rather than aborting:
// the underlying build failure is unchanged, so the service is simply asked
// again on the next cycle.
var ErrTimeout = errors.New("reasoning service timed out")

// ErrService marks a transport or API-level failure (connection refused,
// non-2xx status, error payload). Distinct from malformed content, which is
// a successful call whose text could not be used.
var ErrService = errors.New("reasoning service request failed")

func isDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// isClientTimeout catches http.Client-level timeouts, which surface as a
// net.Error with Timeout() true rather than context.DeadlineExceeded.
func isClientTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
