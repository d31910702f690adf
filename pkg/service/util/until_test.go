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
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBackoffNext(t *testing.T) {
	b := Backoff{Initial: time.Millisecond * 10, Max: time.Millisecond * 40, Factor: 2}
	delay := b.Initial
	expected := []time.Duration{20, 40, 40}
	for i, e := range expected {
		delay = b.next(delay)
		if delay != e*time.Millisecond {
			t.Errorf("step %d: expected %s, got %s", i, e*time.Millisecond, delay)
		}
	}
}

func TestUntilCanceledRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	err := UntilCanceled(ctx, zerolog.Nop(), "test", func() error {
		calls++
		if calls == 3 {
			cancel()
		}
		return errors.New("fail")
	}, WithBackoff(Backoff{Initial: time.Millisecond, Max: time.Millisecond, Factor: 1}))
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestUntilSuccess(t *testing.T) {
	calls := 0
	err := UntilCanceled(context.Background(), zerolog.Nop(), "test", func() error {
		calls++
		if calls < 2 {
			return errors.New("not yet")
		}
		return nil
	}, UntilSuccess, WithBackoff(Backoff{Initial: time.Millisecond, Max: time.Millisecond, Factor: 1}))
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}
