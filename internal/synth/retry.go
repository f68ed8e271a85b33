package synth

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// linearBackOff waits attempt*base between tries, matching the upstream
// API's guidance for overload responses.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (l *linearBackOff) Reset() { l.attempt = 0 }

func (l *linearBackOff) NextBackOff() time.Duration {
	l.attempt++
	return time.Duration(l.attempt) * l.base
}

// Retrier wraps a Synthesizer with bounded retry. Only transient
// (overload-class) failures are retried; anything else propagates
// immediately. After the attempt budget is spent the last error is returned.
type Retrier struct {
	inner    Synthesizer
	attempts uint
	base     time.Duration
}

func NewRetrier(inner Synthesizer, attempts int, base time.Duration) *Retrier {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrier{inner: inner, attempts: uint(attempts), base: base}
}

func (r *Retrier) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	operation := func() ([]byte, error) {
		audio, err := r.inner.Synthesize(ctx, req)
		if err != nil {
			var serr *SynthesisError
			if errors.As(err, &serr) && serr.Transient() {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return audio, nil
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(&linearBackOff{base: r.base}),
		backoff.WithMaxTries(r.attempts))
}
