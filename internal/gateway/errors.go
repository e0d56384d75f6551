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
	"errors"
	"fmt"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/database"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/logging"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/sqlguard"
)

// FailureKind names why one attempt of the correction loop failed.
type FailureKind string

const (
	FailureSyntax           FailureKind = "SyntaxError"
	FailureBlockedOperation FailureKind = "BlockedOperationError"
	FailureStatementType    FailureKind = "DisallowedStatementTypeError"
	FailureKAnonymity       FailureKind = "KAnonymityError"
	FailureTimeout          FailureKind = "ExecutionTimeoutError"
	FailureSemantic         FailureKind = "ExecutionSemanticError"
)

// AttemptError is the failure of a single validate/execute cycle. Message is
// the exact text handed to the generator for correction.
type AttemptError struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError is the only failure the correction loop reports once
// every attempt has been used.
type RetryExhaustedError struct {
	Attempts int
	Last     *AttemptError
	History  []AttemptRecord
}

func (e *RetryExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("query failed after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("query failed after %d attempts: %s", e.Attempts, logging.Mask(e.Last.Error()))
}

func (e *RetryExhaustedError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}

// GenerationError represents a failure of the SQL generator itself.
type GenerationError struct {
	Msg string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("sql generation error: %s: %s", e.Msg, logging.Mask(errString(e.Err)))
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// ErrInvalidInput represents errors related to invalid input parameters
type ErrInvalidInput struct {
	Msg string
	Err error
}

func (e *ErrInvalidInput) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid input error: %s", e.Msg)
	}
	return fmt.Sprintf("invalid input error: %s: %v", e.Msg, e.Err)
}

func (e *ErrInvalidInput) Unwrap() error {
	return e.Err
}

// ErrCancelled represents errors when an operation is cancelled
type ErrCancelled struct {
	Msg string
	Err error
}

func (e *ErrCancelled) Error() string {
	return fmt.Sprintf("operation cancelled: %s: %s", e.Msg, errString(e.Err))
}

func (e *ErrCancelled) Unwrap() error {
	return e.Err
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

func rejectionFailure(r *sqlguard.Rejection) *AttemptError {
	kind := FailureSyntax
	switch r.Kind {
	case sqlguard.BlockedOperationError:
		kind = FailureBlockedOperation
	case sqlguard.DisallowedStatementTypeError:
		kind = FailureStatementType
	case sqlguard.KAnonymityError:
		kind = FailureKAnonymity
	}
	return &AttemptError{Kind: kind, Message: r.Message, Err: r}
}

func executionFailure(err error) *AttemptError {
	kind := FailureSemantic
	if database.IsTimeout(err) {
		kind = FailureTimeout
	}
	msg := logging.Mask(err.Error())
	var qe *database.QueryError
	if errors.As(err, &qe) && qe.Err != nil {
		msg = logging.Mask(qe.Err.Error())
	}
	return &AttemptError{Kind: kind, Message: msg, Err: err}
}
