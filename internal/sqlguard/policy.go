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
package sqlguard

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultBlockedOperations are the keywords rejected anywhere in a candidate statement.
var DefaultBlockedOperations = []string{
	"DROP", "DELETE", "UPDATE", "INSERT",
	"CREATE", "ALTER", "TRUNCATE", "GRANT", "REVOKE",
}

// Policy holds the guardrails shared by every request. It is built once at
// startup and passed by value; nothing in this package mutates it.
type Policy struct {
	KAnonymity        int           // Minimum group size requested from the generator
	DefaultLimit      int           // Row cap appended to non-aggregated, unlimited queries
	MaxRowsReturn     int           // Hard cap on rows read back from the store
	QueryTimeout      time.Duration // Per-statement timeout enforced by the store session
	MaxAttempts       int           // Validate/execute cycles before giving up
	BlockedOperations []string
	EnforceKAnonymity bool // Reject GROUP BY queries lacking HAVING COUNT(*) >= KAnonymity
}

// DefaultPolicy returns the guardrails used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		KAnonymity:        20,
		DefaultLimit:      100,
		MaxRowsReturn:     10000,
		QueryTimeout:      10 * time.Second,
		MaxAttempts:       3,
		BlockedOperations: append([]string(nil), DefaultBlockedOperations...),
	}
}

// Validate checks that the policy can be enforced.
func (p Policy) Validate() error {
	if p.KAnonymity < 1 {
		return fmt.Errorf("k-anonymity threshold must be at least 1, got %d", p.KAnonymity)
	}
	if p.DefaultLimit < 1 {
		return fmt.Errorf("default query limit must be positive, got %d", p.DefaultLimit)
	}
	if p.DefaultLimit > math.MaxInt32 {
		return fmt.Errorf("default query limit must not exceed %d, got %d", math.MaxInt32, p.DefaultLimit)
	}
	if p.MaxRowsReturn < p.DefaultLimit {
		return fmt.Errorf("max rows returned (%d) must not be lower than the default limit (%d)", p.MaxRowsReturn, p.DefaultLimit)
	}
	if p.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive, got %s", p.QueryTimeout)
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if len(p.BlockedOperations) == 0 {
		return fmt.Errorf("blocked operations list cannot be empty")
	}
	for _, op := range p.BlockedOperations {
		if strings.TrimSpace(op) == "" || strings.ContainsAny(op, " \t\n") {
			return fmt.Errorf("invalid blocked operation keyword %q", op)
		}
	}
	return nil
}
