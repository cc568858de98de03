package pipeline

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/rehabmohamed2/CodeGuard-project/internal/model"
)

// MaxRetries is the number of attempts made per batch.
const MaxRetries = 3

const (
	backoffBase = 500 * time.Millisecond
	backoffMax  = 10 * time.Second
)

// IsRetryable reports whether err came from a model server that was
// overloaded or briefly unavailable.
func IsRetryable(err error) bool {
	var retryErr *model.RetryableError
	return errors.As(err, &retryErr)
}

// Backoff returns the wait before retry n (0-indexed): exponential from
// backoffBase, capped at backoffMax, plus up to 50% jitter.
func Backoff(attempt int) time.Duration {
	d := backoffBase << uint(min(attempt, 16))
	if d > backoffMax || d <= 0 {
		d = backoffMax
	}
	return d + time.Duration(rand.Int64N(int64(d)/2+1))
}
