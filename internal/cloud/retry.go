// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cloud

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the attempts of a flaky call. Timeout applies to each
// attempt; Backoff doubles after every failure.
type RetryPolicy struct {
	Attempts int
	Timeout  time.Duration
	Backoff  time.Duration
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}

// schedule is the wait between attempts, capped at Attempts calls in total.
func (p RetryPolicy) schedule(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var wait backoff.BackOff = &backoff.ZeroBackOff{}
	if p.Backoff > 0 {
		wait = backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(p.Backoff),
			backoff.WithMultiplier(2),
			backoff.WithRandomizationFactor(0),
			backoff.WithMaxInterval(time.Minute),
			backoff.WithMaxElapsedTime(0),
		)
	}
	return backoff.WithContext(backoff.WithMaxRetries(wait, uint64(attempts-1)), ctx)
}

// Do calls fn until it succeeds, returns a permanent error, the attempts run
// out or ctx is done. The last error is returned unwrapped from Permanent.
//
// Inputs:
//   - ctx: bounds the whole call, waits between attempts included.
//   - fn: the operation; it receives a context limited by Timeout.
//
// Outputs:
//   - nil on success, otherwise the error of the last attempt or the error of ctx.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return backoff.Retry(func() error {
		return p.attempt(ctx, fn)
	}, p.schedule(ctx))
}

func (p RetryPolicy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return fn(attemptCtx)
}
