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
	"time"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/result"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/sqlguard"
)

// AttemptRecord describes one validate/execute cycle of a request.
type AttemptRecord struct {
	Index   int               // 0-based
	SQL     string            // Statement as produced by the generator
	Verdict *sqlguard.Verdict // Nil only if validation never ran
	Failure *AttemptError     // Nil for the successful attempt
	Elapsed time.Duration
}

// Outcome is a successful run of the correction loop.
type Outcome struct {
	SQL      string // Statement actually executed, after rewriting
	Rows     *result.RowSet
	Attempts []AttemptRecord
}

// QueryResult is the caller-facing answer to a question.
type QueryResult struct {
	Answer    string       `json:"answer,omitempty"` // Natural-language answer, empty when summarizing failed
	SQL       string       `json:"sql"`
	Data      []result.Row `json:"data"`
	RowCount  int          `json:"row_count"`
	Truncated bool         `json:"truncated"`
	Attempts  int          `json:"attempts"`
	RequestID string       `json:"request_id"`
}
