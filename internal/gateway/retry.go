/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package gateway

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/genai"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/logging"
)

// RetryOptions configures the retry behavior for generator calls
type RetryOptions struct {
	MaxAttempts       int           // Maximum number of retry attempts
	InitialBackoff    time.Duration // Initial backoff duration
	MaxBackoff        time.Duration // Maximum backoff duration
	BackoffMultiplier float64       // Multiplier for exponential backoff
}

// DefaultRetryOptions provides sensible default retry settings
var DefaultRetryOptions = RetryOptions{
	MaxAttempts:       3,
	InitialBackoff:    100 * time.Millisecond,
	MaxBackoff:        2 * time.Second,
	BackoffMultiplier: 2.0,
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	switch err.(type) {
	case *ErrInvalidInput, *ErrCancelled:
		return false
	}
	return genai.IsTransient(err)
}

// withRetry executes the given operation with retry logic. Only transient
// transport failures are retried; they never count as correction attempts.
func withRetry[T any](ctx context.Context, logger *zap.Logger, opts RetryOptions, op func(context.Context) (T, error)) (T, error) {
	var lastErr error
	var result T

	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return result, &ErrCancelled{Msg: "operation cancelled by context", Err: ctx.Err()}
		}

		backoff := time.Duration(float64(opts.InitialBackoff) * math.Pow(opts.BackoffMultiplier, float64(attempt)))
		if backoff > opts.MaxBackoff {
			backoff = opts.MaxBackoff
		}

		result, lastErr = op(ctx)
		if lastErr == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return result, &ErrCancelled{Msg: "operation cancelled by context", Err: ctx.Err()}
		}
		if !isRetryableError(lastErr) || attempt == maxAttempts-1 {
			return result, lastErr
		}

		logger.Warn("transient generator failure, retrying",
			zap.Int("try", attempt+1),
			zap.Duration("backoff", backoff),
			logging.Error(lastErr))
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, &ErrCancelled{Msg: "operation cancelled during backoff", Err: ctx.Err()}
		case <-timer.C:
		}
	}

	return result, lastErr
}
