// Copyright 2026 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package util

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Backoff controls the delay between two calls of an UntilCanceled callback.
type Backoff struct {
	// Delay after a successful call
	Initial time.Duration
	// Upper limit of the delay after failed calls
	Max time.Duration
	// Growth of the delay per failed call
	Factor float64
}

// DefaultBackoff is used by UntilCanceled unless overridden.
var DefaultBackoff = Backoff{
	Initial: time.Millisecond * 10,
	Max:     time.Second * 5,
	Factor:  1.5,
}

// next returns the delay that follows the given delay after a failure.
func (b Backoff) next(delay time.Duration) time.Duration {
	delay = time.Duration(float64(delay) * b.Factor)
	if delay > b.Max {
		return b.Max
	}
	return delay
}

type untilOptions struct {
	backoff       Backoff
	stopOnSuccess bool
}

// Option tunes UntilCanceled.
type Option func(*untilOptions)

// WithBackoff replaces DefaultBackoff.
func WithBackoff(b Backoff) Option {
	return func(o *untilOptions) { o.backoff = b }
}

// UntilSuccess makes UntilCanceled return after the first successful call.
func UntilSuccess(o *untilOptions) {
	o.stopOnSuccess = true
}

// UntilCanceled calls cb over and over until the given context is canceled.
// Failures are logged and increase the delay before the next call.
func UntilCanceled(ctx context.Context, log zerolog.Logger, description string, cb func() error, opts ...Option) error {
	options := untilOptions{backoff: DefaultBackoff}
	for _, o := range opts {
		o(&options)
	}
	delay := options.backoff.Initial
	for {
		if ctx.Err() != nil {
			// Context canceled
			return nil
		}
		if err := cb(); err != nil {
			log.Warn().Err(err).Msgf("%s failed", description)
			delay = options.backoff.next(delay)
		} else if options.stopOnSuccess {
			return nil
		} else {
			delay = options.backoff.Initial
		}
		select {
		case <-ctx.Done():
			// Context canceled
			log.Info().Msgf("Stopping %s; context canceled", description)
			return nil
		case <-time.After(delay):
			// Continue
		}
	}
}
