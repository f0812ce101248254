// Package retry runs an operation a fixed number of times with
// exponential backoff between attempts.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds an operation to Attempts tries. After failed attempt n
// (1-based) the next one waits 2^n × BaseDelay, so a 1s base gives 2s, 4s, …
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
}

// Default is the upload policy: three attempts, one second base.
var Default = Policy{Attempts: 3, BaseDelay: time.Second}

func (p Policy) backOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 2 * p.BaseDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = time.Duration(1<<62 - 1)
	eb.MaxElapsedTime = 0
	eb.Reset()

	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithMaxRetries(eb, uint64(attempts-1))
}

// Do calls op until it succeeds, the attempts are used up or ctx is done.
// It returns how many attempts were made and the last error.
func Do(ctx context.Context, p Policy, op func(attempt int) error) (int, error) {
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return op(attempts)
	}, backoff.WithContext(p.backOff(), ctx))
	return attempts, err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
