package llmoracle

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/mmprotest/openevolve/internal/obslog"
)

// Message is one turn of extra conversation context supplied alongside the
// assembled prompt.
type Message struct {
	Role    string
	Content string
}

// Request is the oracle call contract.
type Request struct {
	Prompt        string
	System        string
	Model         string
	N             int
	Temperature   float64
	ExtraMessages []Message
}

// Response is the oracle call result.
type Response struct {
	Candidates  []string
	RawResponse string
}

// TransientError marks a failure callers should retry with backoff;
// anything else is terminal.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient llm error: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Oracle generates candidate patch strings from a prompt.
type Oracle interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// maxBackoff caps the exponential backoff between retry attempts.
const maxBackoff = 10 * time.Second

// CallWithRetry invokes oracle.Generate, retrying transient failures with
// exponential backoff capped at maxBackoff. A terminal (non-transient)
// error is returned immediately.
func CallWithRetry(ctx context.Context, oracle Oracle, req Request, maxAttempts int) (Response, error) {
	timer := obslog.StartTimer(obslog.CategoryLLM, "CallWithRetry")
	defer timer.Stop()

	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := oracle.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}

		var transient *TransientError
		if !errors.As(err, &transient) {
			return Response{}, err
		}
		lastErr = err

		backoff := time.Duration(math.Min(
			float64(maxBackoff),
			float64(time.Second)*math.Pow(2, float64(attempt)),
		))
		obslog.Get(obslog.CategoryLLM).Warn("transient llm error (attempt %d/%d), retrying in %v: %v", attempt+1, maxAttempts, backoff, err)

		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return Response{}, lastErr
}
