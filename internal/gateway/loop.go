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
	"time"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/logging"
)

type loopState int

const (
	stateValidating loopState = iota
	stateExecuting
	stateCorrecting
	stateSucceeded
	stateFailed
)

func (s loopState) String() string {
	switch s {
	case stateValidating:
		return "validating"
	case stateExecuting:
		return "executing"
	case stateCorrecting:
		return "correcting"
	case stateSucceeded:
		return "succeeded"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// ExecuteWithRetry validates and executes initialSQL, asking the generator
// for a corrected statement after each failure. Attempts are strictly
// sequential and bounded by the policy's MaxAttempts. Exhausting the budget
// yields *RetryExhaustedError; a cancelled context yields *ErrCancelled and a
// generator failure *GenerationError, with no partial result in either case.
func (s *Service) ExecuteWithRetry(ctx context.Context, initialSQL, question string) (*Outcome, error) {
	maxAttempts := s.validator.Policy().MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	logger := s.requestLogger(ctx)

	var (
		history []AttemptRecord
		current AttemptRecord
		last    *AttemptError
		outcome *Outcome
		started time.Time
	)
	sql := initialSQL
	attempt := 0
	state := stateValidating

	// fail records the failure of the current attempt and picks the next state.
	fail := func(f *AttemptError) loopState {
		last = f
		current.Failure = f
		current.Elapsed = time.Since(started)
		history = append(history, current)
		logger.Warn("attempt failed",
			zap.Int("attempt", attempt),
			zap.String("kind", string(f.Kind)),
			zap.String("error", logging.Mask(f.Message)),
			logging.SQL(sql))
		if attempt >= maxAttempts-1 {
			return stateFailed
		}
		return stateCorrecting
	}

	for {
		switch state {
		case stateValidating:
			if err := ctx.Err(); err != nil {
				return nil, &ErrCancelled{Msg: "request cancelled before validation", Err: err}
			}
			started = time.Now()
			verdict := s.validator.Validate(sql)
			current = AttemptRecord{Index: attempt, SQL: sql, Verdict: &verdict}
			if verdict.Accepted {
				state = stateExecuting
				continue
			}
			state = fail(rejectionFailure(verdict.Rejection))

		case stateExecuting:
			rows, err := s.executor.Query(ctx, current.Verdict.SQL)
			if err != nil {
				if ctx.Err() != nil {
					return nil, &ErrCancelled{Msg: "request cancelled during execution", Err: ctx.Err()}
				}
				state = fail(executionFailure(err))
				continue
			}
			current.Elapsed = time.Since(started)
			history = append(history, current)
			outcome = &Outcome{SQL: current.Verdict.SQL, Rows: rows, Attempts: history}
			state = stateSucceeded

		case stateCorrecting:
			corrected, err := s.correct(ctx, sql, last, question)
			if err != nil {
				return nil, err
			}
			logger.Debug("received corrected SQL", zap.Int("attempt", attempt+1), logging.SQL(corrected))
			sql = corrected
			attempt++
			state = stateValidating

		case stateSucceeded:
			logger.Info("query succeeded",
				zap.Int("attempt", attempt),
				zap.Int("rows", outcome.Rows.Len()),
				zap.Bool("capped", outcome.Rows != nil && outcome.Rows.Capped))
			return outcome, nil

		case stateFailed:
			logger.Error("attempts exhausted",
				zap.Int("attempts", len(history)),
				zap.String("kind", string(last.Kind)))
			return nil, &RetryExhaustedError{Attempts: len(history), Last: last, History: history}
		}
	}
}
